package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthHandler exposes liveness and readiness checks for s.
//
//	GET /health  always 200 while the process runs
//	GET /ready   200 while Serve accepts connections, 503 otherwise
func HealthHandler(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !s.Serving() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"stopped"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ready","connections":%d}`, s.ActiveConnections())
	})

	return r
}
