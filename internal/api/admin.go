package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"goprofile/internal/config"
)

// NewAdminRouter serves the operator endpoints on the profiling port:
// pprof and expvar under /debug, a heartbeat and the effective configuration
func NewAdminRouter(cfg *config.Config, hub *ProgressHub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.Mount("/debug", middleware.Profiler())

	r.Get("/config", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cfg)
	})
	r.Get("/subscribers/{source}", func(w http.ResponseWriter, req *http.Request) {
		count := 0
		if hub != nil {
			count = hub.ClientCount(chi.URLParam(req, "source"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"clients": count})
	})
	return r
}
