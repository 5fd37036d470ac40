package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/market-stream/internal/broadcast"
	"github.com/rickgao/market-stream/internal/connection"
	"github.com/rickgao/market-stream/internal/market"
	"github.com/rickgao/market-stream/internal/version"
)

// newHandler serves health, metrics, registry debug info and, when the hub
// sink is enabled, a newline-delimited JSON event feed.
func newHandler(metricsPath string, registry *market.Registry, hub *broadcast.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := registry.Stats()

		health := struct {
			Status     string                 `json:"status"`
			Version    string                 `json:"version"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.String(),
			Components: make(map[string]interface{}),
		}

		for _, st := range stats {
			legs := make(map[string]string, len(st.Sessions))
			for _, s := range st.Sessions {
				legs[s.Name] = s.State
				if s.State == connection.StateTerminated.String() {
					health.Status = "unhealthy"
				} else if health.Status == "healthy" && s.State != connection.StateConnected.String() &&
					s.State != connection.StateDisconnected.String() {
					// Disconnected legs are idle with nothing subscribed.
					health.Status = "degraded"
				}
			}
			health.Components[st.ID] = map[string]interface{}{
				"family":  st.Family,
				"legs":    legs,
				"symbols": len(st.Symbols),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/streams", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":   registry.Len(),
			"streams": registry.Stats(),
		})
	})

	if hub != nil {
		mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
			serveEvents(w, r, hub, logger)
		})
	}

	return mux
}

// serveEvents streams hub events as JSON lines until the client goes away.
// ?tickers=A,B limits the feed.
func serveEvents(w http.ResponseWriter, r *http.Request, hub *broadcast.Hub, logger *slog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var filter broadcast.Filter
	if q := r.URL.Query().Get("tickers"); q != "" {
		filter = broadcast.ForTickers(strings.Split(q, ",")...)
	}
	sub := hub.Subscribe(filter)
	defer sub.Close()

	go func() {
		<-r.Context().Done()
		sub.Close()
	}()

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for {
		ev, ok := sub.Next()
		if !ok {
			return
		}
		if err := enc.Encode(ev); err != nil {
			logger.Debug("event feed closed", "error", err)
			return
		}
		flusher.Flush()
	}
}
