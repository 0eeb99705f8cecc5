// Package api exposes the occupancy engine over HTTP: room counts, alert
// and identity history, engine counters, and the ingest endpoints that
// detection and embedding collaborators push into.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/occupancy.report/internal/db"
	"github.com/banshee-data/occupancy.report/internal/engine"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server serves the occupancy API. The store may be nil (history endpoints
// then return 404), which keeps tests and the gen-detections tool light.
type Server struct {
	engine *engine.Engine
	store  *db.DB
	logger *log.Logger
}

// NewServer creates an API server over the engine and store.
func NewServer(eng *engine.Engine, store *db.DB, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		engine: eng,
		store:  store,
		logger: logger,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LogRequests wraps a handler with per-request status/latency logging.
func (s *Server) LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		s.logger.Printf("%s %s %s%s%s %.2fms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/rooms", s.listRooms)
	mux.HandleFunc("/api/rooms/", s.roomSubresource)
	mux.HandleFunc("/api/identities", s.listIdentities)
	mux.HandleFunc("/api/identities/events", s.listIdentityEvents)
	mux.HandleFunc("/api/alerts", s.listAlerts)
	mux.HandleFunc("/api/engine/stats", s.showStats)
	mux.HandleFunc("/api/engine/config", s.showConfig)
	mux.HandleFunc("/api/cameras/", s.cameraSubresource)
	mux.HandleFunc("/api/embeddings", s.ingestEmbedding)
	return mux
}
