package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/cors"

	"github.com/duelpicks/duelcore/internal/live"
	"github.com/duelpicks/duelcore/internal/queue"
)

// liveState retains the latest reconciled update for the debug endpoints.
type liveState struct {
	mu     sync.Mutex
	latest live.Update
	seen   bool
}

func (s *liveState) set(u live.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = u
	s.seen = true
}

func (s *liveState) get() (live.Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.seen
}

// newDebugServer exposes the session and feed as JSON for the team's local
// web inspector.
func newDebugServer(addr string, ctrl *queue.Controller, state *liveState) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/debug/session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, ctrl.Snapshot())
	})

	mux.HandleFunc("/debug/feed", func(w http.ResponseWriter, r *http.Request) {
		update, ok := state.get()
		if !ok {
			http.Error(w, "no live data yet", http.StatusNotFound)
			return
		}
		changed := make([]string, 0, len(update.Changed))
		for id := range update.Changed {
			changed = append(changed, id)
		}
		writeJSON(w, map[string]any{
			"feed":     update.Feed,
			"changed":  changed,
			"summary":  update.Summary,
			"momentum": update.Momentum,
			"scores":   update.Scores,
		})
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:    addr,
		Handler: c.Handler(mux),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
