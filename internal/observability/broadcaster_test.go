package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/ingestion"
)

func testObsLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestWebSocketPair(t *testing.T) (serverConn, client *websocket.Conn, cleanup func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConnCh := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConnCh <- conn
		// Keep the server-side connection open for the test's duration by
		// blocking on a read that only returns once the client closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))

	wsURL := "ws" + server.URL[len("http"):]
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	serverConn = <-serverConnCh

	return serverConn, client, func() {
		client.Close()
		server.Close()
	}
}

func TestWebSocketBroadcasterDeliversEventToRegisteredConn(t *testing.T) {
	serverConn, client, cleanup := newTestWebSocketPair(t)
	defer cleanup()

	b := NewWebSocketBroadcaster(testObsLogger())
	b.Register(serverConn)

	b.Broadcast(ingestion.Event{Type: ingestion.EventStart, Source: domain.SourcePanelApp})

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"type":"start"`)
}

func TestWebSocketBroadcasterUnregisterStopsDelivery(t *testing.T) {
	serverConn, _, cleanup := newTestWebSocketPair(t)
	defer cleanup()

	b := NewWebSocketBroadcaster(testObsLogger())
	b.Register(serverConn)
	b.Unregister(serverConn)

	assert.Empty(t, b.conns)
}
