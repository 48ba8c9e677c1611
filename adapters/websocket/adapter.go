package websocket

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"cyberquest/core"
	"cyberquest/realtime"
)

const writeWait = 5 * time.Second

// Options tune the stream handler.
type Options struct {
	// AllowedOrigins lists accepted Origin headers; empty or "*" accepts any.
	AllowedOrigins []string
	Buffer         int
	Logger         *slog.Logger
}

// Handler returns an http.Handler that upgrades to WebSocket and streams events from the hub.
// A "session" query parameter limits the stream to one session.
func Handler(hub *realtime.Hub, opts Options) http.Handler {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	upgrader := gorillaws.Upgrader{CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(opts.AllowedOrigins) == 0 || slices.Contains(opts.AllowedOrigins, "*") {
			return true
		}
		return slices.Contains(opts.AllowedOrigins, origin)
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			opts.Logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()
		session := core.SessionID(r.URL.Query().Get("session"))
		id, ch := hub.SubscribeSession(opts.Buffer, session)
		defer hub.Unsubscribe(id)

		// the reader only exists to notice the client going away
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(gorillaws.TextMessage, realtime.MarshalJSON(ev)); err != nil {
					return
				}
			case <-gone:
				return
			case <-r.Context().Done():
				return
			}
		}
	})
}
