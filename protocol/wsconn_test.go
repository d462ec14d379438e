package protocol_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/momentics/hioload-camrelay/adapters"
	"github.com/momentics/hioload-camrelay/api"
	"github.com/momentics/hioload-camrelay/protocol"
)

type recorder struct {
	mu  sync.Mutex
	got []api.Inbound
}

func (r *recorder) Handle(in api.Inbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, in)
	return nil
}

func (r *recorder) all() []api.Inbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.Inbound(nil), r.got...)
}

// harness starts a websocket server whose connections are wrapped in protocol.Conn.
func harness(t *testing.T, cfg protocol.Config, h api.Handler) (*protocol.Conn, *websocket.Conn) {
	t.Helper()
	upgrader := protocol.NewUpgrader()
	conns := make(chan *protocol.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := protocol.NewConn(ws, cfg, zap.NewNop()) // outlives the test body
		conns <- c
		c.ReadLoop(h)
		c.Close()
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case c := <-conns:
		return c, client
	case <-time.After(2 * time.Second):
		t.Fatal("server side connection not established")
		return nil, nil
	}
}

func TestConnDeliversFramesAndText(t *testing.T) {
	c, client := harness(t, protocol.DefaultConfig(), &recorder{})
	assert.Equal(t, api.StateActive, c.State())
	assert.NotEmpty(t, c.ID())

	require.NoError(t, c.Send(api.Message{Kind: api.TextMessage, Payload: []byte(`{"a":1}`)}))
	mt, p, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, `{"a":1}`, string(p))

	require.NoError(t, c.Send(api.Message{Kind: api.BinaryMessage, Payload: []byte{1, 2, 3}}))
	mt, p, err = client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte{1, 2, 3}, p)
}

func TestConnReadLoopDispatches(t *testing.T) {
	rec := &recorder{}
	c, client := harness(t, protocol.DefaultConfig(), rec)

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte("jpeg")))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"x":true}`)))

	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, 2*time.Second, 5*time.Millisecond)
	got := rec.all()
	assert.Equal(t, api.Inbound{Sender: c.ID(), Kind: api.BinaryMessage, Payload: []byte("jpeg")}, got[0])
	assert.Equal(t, api.TextMessage, got[1].Kind)
}

func TestConnThrottlesChat(t *testing.T) {
	cfg := protocol.DefaultConfig()
	cfg.ChatRate = 0.001
	cfg.ChatBurst = 1
	rec := &recorder{}
	c, client := harness(t, cfg, rec)

	for i := 0; i < 3; i++ {
		require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{}`)))
	}
	// frames are never throttled and act as a barrier
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte("f")))

	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), c.Stats().ChatThrottled)
}

func TestConnPingPong(t *testing.T) {
	c, client := harness(t, protocol.DefaultConfig(), &recorder{})
	// the client answers pings from inside its read loop
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.NoError(t, c.Ping())
	require.Eventually(t, func() bool { return c.State() == api.StateActive }, 2*time.Second, 5*time.Millisecond)
}

func TestConnCloseNotifiesPeer(t *testing.T) {
	c, client := harness(t, protocol.DefaultConfig(), adapters.HandlerFunc(func(api.Inbound) error { return nil }))
	require.NoError(t, c.CloseWithCode(websocket.CloseGoingAway, "shutdown"))

	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
	assert.False(t, c.Open())
}

func TestConnClosesPeerOnInvalidUTF8Text(t *testing.T) {
	rec := &recorder{}
	c, client := harness(t, protocol.DefaultConfig(), rec)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("{\"a\":\"\xff\xfe\"}")))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInvalidFramePayloadData), "got %v", err)
	assert.False(t, c.Open())
	assert.Empty(t, rec.all())
}
