package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sahithikokkula/sketchd/pkg/storage"
)

type JSON map[string]any

// Config holds the request-independent knobs of the handlers.
type Config struct {
	DefaultErrorBound float64
	DefaultConfidence float64
	RequestTimeout    time.Duration
}

func RegisterRoutes(r *mux.Router, h *Handler) {
	r.Use(requestLogger, h.withTimeout)

	// Core endpoints
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Sketch endpoints
	r.HandleFunc("/sketches", h.PostCreateSketch).Methods(http.MethodPost)
	r.HandleFunc("/sketches", h.GetSketches).Methods(http.MethodGet)
	r.HandleFunc("/sketches/{name}", h.GetSketch).Methods(http.MethodGet)
	r.HandleFunc("/sketches/{name}", h.DeleteSketch).Methods(http.MethodDelete)
	r.HandleFunc("/sketches/{name}/items", h.PostItems).Methods(http.MethodPost)
	r.HandleFunc("/sketches/{name}/estimate", h.GetEstimate).Methods(http.MethodGet)
	r.HandleFunc("/sketches/{name}/estimate", h.PostEstimate).Methods(http.MethodPost)
	r.HandleFunc("/sketches/{name}/topn", h.GetTopN).Methods(http.MethodGet)
	r.HandleFunc("/sketches/{name}/union", h.PostUnion).Methods(http.MethodPost)
}

type Handler struct {
	store *storage.Store
	cfg   Config
	locks *nameLocks
}

func NewHandler(store *storage.Store, cfg Config) *Handler {
	return &Handler{store: store, cfg: cfg, locks: newNameLocks()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
