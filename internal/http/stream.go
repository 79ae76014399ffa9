package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"ascend-interview-agent/internal/models"
	"ascend-interview-agent/internal/observability/metrics"
)

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
	pingPeriod   = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local control API
	},
}

// streamEvents upgrades to a WebSocket and forwards session events as JSON.
// The optional "prefix" query parameter filters by event type prefix, e.g.
// ?prefix=interview.transcript. A client that falls behind loses events.
func streamEvents(src EventSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		metrics.DefaultMetrics.SubscriberConnected()
		defer metrics.DefaultMetrics.SubscriberDisconnected()
		log.Info().Str("remote", r.RemoteAddr).Str("prefix", prefix).Msg("Event stream client connected")

		out := make(chan models.Event, clientBuffer)
		unsubscribe := src.Subscribe(func(ev models.Event) {
			if prefix != "" && !strings.HasPrefix(ev.Type, prefix) {
				return
			}
			select {
			case out <- ev:
			default:
				metrics.DefaultMetrics.RecordEventDropped()
			}
		})
		defer unsubscribe()

		// Reads only detect the client going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()

		for {
			select {
			case ev := <-out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(ev); err != nil {
					log.Debug().Err(err).Msg("Event stream write failed")
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-gone:
				log.Info().Str("remote", r.RemoteAddr).Msg("Event stream client disconnected")
				return
			}
		}
	}
}
