// Command gen-detections posts synthetic detection frames and embeddings to
// a running occupancy server for load and tuning experiments.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

type detection struct {
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	W          float32 `json:"w"`
	H          float32 `json:"h"`
	Confidence float32 `json:"confidence"`
}

type frame struct {
	Detections []detection `json:"detections"`
}

type embedding struct {
	CameraID string    `json:"camera_id"`
	TrackID  int64     `json:"track_id"`
	Vector   []float64 `json:"vector"`
	Quality  float64   `json:"quality"`
}

// person is one simulated walker. Each carries a fixed appearance vector so
// the resolver can fuse its tracks across cameras.
type person struct {
	appearance []float64
	x, y       float64
	vx, vy     float64
}

func newPerson(rng *rand.Rand, dims int) *person {
	vec := make([]float64, dims)
	norm := 0.0
	for i := range vec {
		vec[i] = rng.NormFloat64()
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return &person{
		appearance: vec,
		x:          rng.Float64() * 1920,
		y:          rng.Float64() * 1080,
		vx:         (rng.Float64() - 0.5) * 60,
		vy:         (rng.Float64() - 0.5) * 60,
	}
}

func (p *person) step(dt float64) {
	p.x += p.vx * dt
	p.y += p.vy * dt
	if p.x < 0 || p.x > 1920 {
		p.vx = -p.vx
	}
	if p.y < 0 || p.y > 1080 {
		p.vy = -p.vy
	}
}

// observedVector returns the appearance vector with per-observation noise,
// mimicking an embedding extractor looking at the person from one camera.
func (p *person) observedVector(rng *rand.Rand, noise float64) []float64 {
	out := make([]float64, len(p.appearance))
	for i, v := range p.appearance {
		out[i] = v + rng.NormFloat64()*noise
	}
	return out
}

func postJSON(client *http.Client, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return nil
}

func main() {
	server := flag.String("server", "http://localhost:8080", "occupancy server base URL")
	cameras := flag.String("cameras", "cam-1,cam-2", "comma-separated camera ids (all one room)")
	people := flag.Int("people", 4, "number of simulated walkers")
	frames := flag.Int("n", 300, "number of frames to send")
	fps := flag.Float64("fps", 15, "frame rate")
	embedEvery := flag.Int("embed-every", 5, "send embeddings every N frames")
	dims := flag.Int("dims", 128, "embedding dimensionality")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	client := &http.Client{Timeout: 5 * time.Second}

	var camIDs []string
	for _, c := range strings.Split(*cameras, ",") {
		if c = strings.TrimSpace(c); c != "" {
			camIDs = append(camIDs, c)
		}
	}
	if len(camIDs) == 0 {
		log.Fatal("at least one camera id is required")
	}

	walkers := make([]*person, *people)
	for i := range walkers {
		walkers[i] = newPerson(rng, *dims)
	}

	dt := 1.0 / *fps
	interval := time.Duration(float64(time.Second) * dt)

	for i := 0; i < *frames; i++ {
		for camIdx, camID := range camIDs {
			f := frame{}
			for _, p := range walkers {
				p.step(dt / float64(len(camIDs)))
				// Each camera sees the walker from its own viewpoint with a
				// fixed horizontal offset, so boxes differ per camera.
				offset := float64(camIdx) * 37
				f.Detections = append(f.Detections, detection{
					X:          float32(p.x + offset),
					Y:          float32(p.y),
					W:          60,
					H:          150,
					Confidence: float32(0.75 + rng.Float64()*0.2),
				})
			}
			url := fmt.Sprintf("%s/api/cameras/%s/detections", *server, camID)
			if err := postJSON(client, url, f); err != nil {
				log.Printf("frame %d camera %s: %v", i, camID, err)
			}

			if *embedEvery > 0 && i%*embedEvery == 0 {
				for trackIdx, p := range walkers {
					emb := embedding{
						CameraID: camID,
						TrackID:  int64(trackIdx + 1),
						Vector:   p.observedVector(rng, 0.05),
						Quality:  0.6 + rng.Float64()*0.4,
					}
					if err := postJSON(client, *server+"/api/embeddings", emb); err != nil {
						log.Printf("embedding %d camera %s: %v", trackIdx, camID, err)
					}
				}
			}
		}
		time.Sleep(interval)
		if (i+1)%50 == 0 {
			log.Printf("%d/%d frames", i+1, *frames)
		}
	}
	log.Printf("✓ Sent %d frames to %d cameras", *frames, len(camIDs))
}
