// Package engine implements the cross-camera identity resolution and room
// aggregation core: per-camera local tracks, appearance signature smoothing,
// the global identity registry, room-level deduplicated counting, periodic
// eviction, and threshold alerting.
package engine

import (
	"fmt"
	"time"
)

// BBox is an axis-aligned bounding box in pixel space.
type BBox struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	W float32 `json:"w"`
	H float32 `json:"h"`
}

// Valid reports whether the box has positive extent.
func (b BBox) Valid() bool {
	return b.W > 0 && b.H > 0
}

// CenterX returns the horizontal center of the box.
func (b BBox) CenterX() float32 { return b.X + b.W/2 }

// CenterY returns the vertical center of the box.
func (b BBox) CenterY() float32 { return b.Y + b.H/2 }

// Area returns the box area in square pixels.
func (b BBox) Area() float32 { return b.W * b.H }

// IoU computes intersection-over-union between two boxes. Returns 0 for
// disjoint or degenerate boxes.
func (b BBox) IoU(o BBox) float32 {
	if !b.Valid() || !o.Valid() {
		return 0
	}

	ix1 := maxf(b.X, o.X)
	iy1 := maxf(b.Y, o.Y)
	ix2 := minf(b.X+b.W, o.X+o.W)
	iy2 := minf(b.Y+b.H, o.Y+o.H)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Offset returns a copy of the box translated by (dx, dy).
func (b BBox) Offset(dx, dy float32) BBox {
	return BBox{X: b.X + dx, Y: b.Y + dy, W: b.W, H: b.H}
}

// Detection is a single per-frame person detection from one camera. It is
// ephemeral: produced once per frame per object and consumed immediately by
// the track manager.
type Detection struct {
	CameraID   string    `json:"camera_id"`
	Box        BBox      `json:"box"`
	Confidence float32   `json:"confidence"`
	At         time.Time `json:"at"`
}

// Validate checks a detection for structural problems. It distinguishes
// malformed input (error) from merely low-confidence input, which callers
// filter separately.
func (d Detection) Validate() error {
	if !d.Box.Valid() {
		return fmt.Errorf("malformed box: w=%v h=%v", d.Box.W, d.Box.H)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", d.Confidence)
	}
	return nil
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
