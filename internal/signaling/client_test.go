package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartlink-client/internal/domain"
)

func mustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestDispatch_IncomingCall(t *testing.T) {
	var gotCaller string
	var gotKind domain.CallKind
	var gotChannel string

	c := NewClient("ws://example", Handlers{
		OnIncomingCall: func(callerID string, kind domain.CallKind, channelName string) {
			gotCaller, gotKind, gotChannel = callerID, kind, channelName
		},
	}, 0, nil)

	c.dispatch(envelope{
		Event: EventIncomingCall,
		Data: mustRaw(t, callPayload{
			CallerID: "bob",
			CallKind: domain.CallKindVideo,
		}),
	})

	assert.Equal(t, "bob", gotCaller)
	assert.Equal(t, domain.CallKindVideo, gotKind)
	assert.Empty(t, gotChannel, "channel name may be absent; the receiver derives it")
}

func TestDispatch_NotificationEventsTriggerRefetch(t *testing.T) {
	var events []string
	c := NewClient("ws://example", Handlers{
		OnNotification: func(event string) { events = append(events, event) },
	}, 0, nil)

	for _, ev := range []string{EventNewMessage, EventNewChatRequest, EventContactUpdate, EventChatRequestAccepted} {
		c.dispatch(envelope{Event: ev})
	}

	assert.Equal(t, []string{
		EventNewMessage, EventNewChatRequest, EventContactUpdate, EventChatRequestAccepted,
	}, events)
}

func TestDispatch_UnknownEventIgnored(t *testing.T) {
	c := NewClient("ws://example", Handlers{}, 0, nil)

	// Must not panic with no handlers registered
	c.dispatch(envelope{Event: "typing-indicator"})
	c.dispatch(envelope{Event: EventCallEnded})
}

func TestReadLoop_PingsIdleConnection(t *testing.T) {
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
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), Handlers{}, 0, nil)
	c.pingPeriod = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.connect(ctx))

	done := make(chan struct{})
	go func() {
		c.readLoop(ctx)
		close(done)
	}()

	// The socket carries no application traffic; the server must still see
	// ping frames so its read deadline never fires
	for i := 0; i < 2; i++ {
		select {
		case <-pings:
		case <-time.After(2 * time.Second):
			t.Fatal("no ping frame arrived on an idle connection")
		}
	}

	c.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit after close")
	}
}

func TestDispatch_MalformedPayloadDropped(t *testing.T) {
	called := false
	c := NewClient("ws://example", Handlers{
		OnIncomingCall: func(string, domain.CallKind, string) { called = true },
	}, 0, nil)

	c.dispatch(envelope{Event: EventIncomingCall, Data: json.RawMessage(`{"callerId":42}`)})

	assert.False(t, called, "a malformed payload never reaches the handler")
}
