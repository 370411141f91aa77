package discord

import (
	"encoding/json"
	"net/http"
	"time"
)

type healthStatus struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	DiscordConnected bool   `json:"discord_connected"`
	Pending          int    `json:"pending_messages"`
	Timestamp        string `json:"timestamp"`
}

// HealthHandler reports uptime and whether the gateway session is usable.
func (b *Bot) HealthHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		connected := b.session != nil && b.session.State != nil && b.session.DataReady
		st := healthStatus{
			Status:           "healthy",
			Uptime:           time.Since(b.startTime).Round(time.Second).String(),
			DiscordConnected: connected,
			Pending:          len(b.inbox),
			Timestamp:        time.Now().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		if !connected {
			st.Status = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(st)
	})
	return mux
}

func NewHealthServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
