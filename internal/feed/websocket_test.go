package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// fakeFeed plays the server side of the subscription handshake and then
// sends the scripted frames.
type fakeFeed struct {
	t            *testing.T
	token        string
	available    string
	frames       []string
	gotProtocol  chan string
	gotSubscribe chan string
	hold         bool
}

func (f *fakeFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{Subprotocols: []string{f.token}}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	f.gotProtocol <- r.Header.Get("Sec-WebSocket-Protocol")

	_, req, err := conn.ReadMessage()
	if err != nil {
		return
	}
	if string(req) != AvailableRequest {
		f.t.Errorf("unexpected first request %q", req)
		return
	}

	if f.hold {
		// Never answer; wait for the client to give up.
		_, _, _ = conn.ReadMessage()
		return
	}

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"ev":"welcome"}`))
	_ = conn.WriteMessage(websocket.TextMessage, []byte(f.available))

	_, sub, err := conn.ReadMessage()
	if err != nil {
		return
	}
	f.gotSubscribe <- string(sub)

	_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02})
	for _, frame := range f.frames {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_, _, _ = conn.ReadMessage()
}

func newFakeFeed(t *testing.T, available string, frames ...string) (*fakeFeed, string) {
	f := &fakeFeed{
		t:            t,
		token:        "tok-abc",
		available:    available,
		frames:       frames,
		gotProtocol:  make(chan string, 1),
		gotSubscribe: make(chan string, 1),
	}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	return f, "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketSource_Subscribe(t *testing.T) {
	feed, url := newFakeFeed(t,
		`{"ev":"available_to_subscribe","status":"success","message":["PETR4","VALE3"]}`,
		`{"ev":"book","symb":"PETR4"}`,
		`{"ev":"get_last_event","status":"success","message":{"ev":"book","symb":"VALE3"}}`,
	)

	src := NewWebSocketSource(WebSocketConfig{URL: url, Token: feed.token, HandshakeTimeout: 5 * time.Second})
	defer src.Close()

	universe, err := src.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, universe)

	assert.Equal(t, "tok-abc", <-feed.gotProtocol)

	sub := <-feed.gotSubscribe
	assert.Equal(t, "subscribe", gjson.Get(sub, "action").String())
	assert.Equal(t, `["PETR4","VALE3"]`, gjson.Get(sub, "params.tickers").Raw)

	lines := drain(t, src)
	assert.Equal(t, []string{
		`{"ev":"book","symb":"PETR4"}`,
		`{"ev":"get_last_event","status":"success","message":{"ev":"book","symb":"VALE3"}}`,
	}, lines)
}

func TestWebSocketSource_Preamble(t *testing.T) {
	feed, url := newFakeFeed(t,
		`{"ev":"available_to_subscribe","status":"success","message":["PETR4"]}`)

	src := NewWebSocketSource(WebSocketConfig{URL: url, Token: feed.token, HandshakeTimeout: 5 * time.Second})
	defer src.Close()

	var preamble []string
	src.SetPreambleHandler(func(line string) { preamble = append(preamble, line) })
	assert.False(t, src.Subscribed())

	_, err := src.Open(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{`{"ev":"welcome"}`}, preamble)
	assert.True(t, src.Subscribed())
}

func TestWebSocketSource_NoInstruments(t *testing.T) {
	feed, url := newFakeFeed(t, `{"ev":"available_to_subscribe","status":"success","message":[]}`)

	src := NewWebSocketSource(WebSocketConfig{URL: url, Token: feed.token})
	defer src.Close()

	_, err := src.Open(context.Background())
	assert.ErrorIs(t, err, ErrNoInstruments)
	assert.False(t, src.Subscribed())
}

func TestWebSocketSource_AvailabilityTimeout(t *testing.T) {
	feed, url := newFakeFeed(t, "")
	feed.hold = true

	src := NewWebSocketSource(WebSocketConfig{URL: url, Token: feed.token, HandshakeTimeout: 100 * time.Millisecond})
	defer src.Close()

	start := time.Now()
	_, err := src.Open(context.Background())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWebSocketSource_DialFailure(t *testing.T) {
	src := NewWebSocketSource(WebSocketConfig{URL: "ws://127.0.0.1:1/stream", HandshakeTimeout: time.Second})
	_, err := src.Open(context.Background())
	assert.Error(t, err)
	assert.NoError(t, src.Close())
}

func TestWebSocketSource_NextBeforeOpen(t *testing.T) {
	src := NewWebSocketSource(WebSocketConfig{URL: "ws://unused"})
	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestWebSocketSource_DefaultHandshakeTimeout(t *testing.T) {
	src := NewWebSocketSource(WebSocketConfig{URL: "ws://unused"})
	assert.Equal(t, DefaultHandshakeTimeout, src.dialer.HandshakeTimeout)
	assert.Empty(t, src.dialer.Subprotocols)
}

var (
	_ Source     = (*WebSocketSource)(nil)
	_ Source     = (*ReaderSource)(nil)
	_ Subscriber = (*WebSocketSource)(nil)
)
