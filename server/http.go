package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"madigan/codec"
)

// Handler returns the HTTP API:
//
//	GET  /health                                      liveness and UI count
//	GET  /madigan-uis                                 connected UIs as JSON
//	GET  /madigan-state?id=                           recent messages, one per line
//	GET  /madigan-send?id=&type=&key=&value=          frame a command to a UI
//	GET  /metrics                                     prometheus counters
//
// /madigan-send also accepts POST with form values.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /madigan-uis", s.handleUIs)
	mux.HandleFunc("GET /madigan-state", s.handleState)
	mux.HandleFunc("GET /madigan-send", s.handleSend)
	mux.HandleFunc("POST /madigan-send", s.handleSend)
	mux.Handle("GET /metrics", promhttp.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.CorsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Origin", "Content-Type"},
		MaxAge:         int((12 * time.Hour).Seconds()),
	})
	return c.Handler(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	n := len(s.uis)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"id":     s.opts.ID,
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"uis":    n,
	})
}

func (s *Server) handleUIs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.UIs())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	msgs, err := s.History(id)
	if err != nil {
		http.Error(w, "No such UI", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, m := range msgs {
		fmt.Fprintln(w, m)
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.FormValue("id"))
	typ := strings.TrimSpace(r.FormValue("type"))
	if id == "" || typ == "" {
		http.Error(w, "id and type are required", http.StatusBadRequest)
		return
	}
	cmd := codec.EncodeRaw(typ, r.FormValue("key"), r.FormValue("value"))
	if err := s.SendText(id, cmd); err != nil {
		if errors.Is(err, ErrUnknownUI) {
			http.Error(w, "No such UI", http.StatusNotFound)
			return
		}
		s.logger.Warn().Err(err).Str("ui", id).Msg("send failed")
		http.Error(w, "Send failed", http.StatusBadGateway)
		return
	}
	fmt.Fprintf(w, "Sent to %s: %s", id, cmd)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
