package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"hostpulse/internal/models"
)

// StatsSource is the query surface of the monitor.
type StatsSource interface {
	CurrentStats(ctx context.Context) models.Stats
	Series() []models.Bucket
}

// SampleArchive serves long-range history.
type SampleArchive interface {
	RecentSamples(ctx context.Context, from time.Time, limit int) ([]models.ArchivedSample, error)
	Ping(ctx context.Context) error
}

type Server struct {
	stats      StatsSource
	archive    SampleArchive
	corsOrigin string
	log        *slog.Logger
}

func NewServer(stats StatsSource, archive SampleArchive, corsOrigin string, logger *slog.Logger) *Server {
	return &Server{stats: stats, archive: archive, corsOrigin: corsOrigin, log: logger}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/series", s.handleSeries)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	return logMiddleware(corsMiddleware(mux, s.corsOrigin), s.log)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, s.stats.CurrentStats(r.Context()))
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, s.stats.Series())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.archive == nil {
		http.Error(w, "archive disabled", http.StatusNotFound)
		return
	}
	rng := parseRange(r.URL.Query().Get("range"))
	samples, err := s.archive.RecentSamples(r.Context(), time.Now().Add(-rng), 4096)
	if err != nil {
		s.log.Error("query archive", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, samples)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.archive != nil {
		if err := s.archive.Ping(r.Context()); err != nil {
			http.Error(w, "archive not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func parseRange(v string) time.Duration {
	if v == "" {
		return 6 * time.Hour
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 6 * time.Hour
	}
	return d
}
