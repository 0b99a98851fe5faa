package chatconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestWSConnection_PingsIdleConnection(t *testing.T) {
	pings := make(chan struct{}, 16)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetPingHandler(func(string) error {
			select {
			case pings <- struct{}{}:
			default:
			}
			return conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(time.Second))
		})
		for {
			// Consumes the auth frame and keeps processing control frames
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := NewWSConnection("ws"+strings.TrimPrefix(srv.URL, "http"), nil, nil)
	c.pingPeriod = 10 * time.Millisecond

	require.NoError(t, c.Connect(context.Background(), "alice", "vendor-token"))
	defer c.Close()

	// With no chat traffic in either direction the gateway must still see
	// ping frames, otherwise the read deadline reports a spurious disconnect
	for i := 0; i < 2; i++ {
		select {
		case <-pings:
		case <-time.After(2 * time.Second):
			t.Fatal("no ping frame arrived on an idle connection")
		}
	}
}
