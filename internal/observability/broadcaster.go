package observability

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/berntpopp/kidney-genetics-core/internal/ingestion"
)

// WebSocketBroadcaster implements ingestion.Broadcaster by publishing every
// event as JSON to every currently-registered *websocket.Conn. The
// dispatcher that accepts incoming connections and upgrades HTTP requests
// lives in the serving layer; this type only covers the outbound publish
// side an already-upgraded connection plugs into.
type WebSocketBroadcaster struct {
	log *logrus.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

// NewWebSocketBroadcaster creates an empty broadcaster.
func NewWebSocketBroadcaster(logger *logrus.Logger) *WebSocketBroadcaster {
	return &WebSocketBroadcaster{log: logger, conns: map[*websocket.Conn]bool{}}
}

// Register adds conn to the broadcast set. The caller owns the connection's
// read loop and close lifecycle; Register only tracks it for writes.
func (b *WebSocketBroadcaster) Register(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[conn] = true
}

// Unregister removes conn from the broadcast set. Safe to call more than
// once for the same connection.
func (b *WebSocketBroadcaster) Unregister(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns, conn)
}

// Broadcast implements ingestion.Broadcaster. A write failure to one
// connection unregisters it and logs a warning rather than blocking or
// failing the remaining subscribers.
func (b *WebSocketBroadcaster) Broadcast(event ingestion.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.log.WithError(err).Warn("failed to marshal progress event")
		return
	}

	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			b.log.WithError(err).Warn("dropping broadcast subscriber after write failure")
			b.Unregister(conn)
		}
	}
}
