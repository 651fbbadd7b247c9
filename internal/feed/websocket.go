package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wesleyorama2/feedstats/internal/logging"
)

// DefaultHandshakeTimeout bounds the websocket handshake and the wait for the
// availability reply.
const DefaultHandshakeTimeout = 45 * time.Second

// WebSocketConfig configures a WebSocketSource.
type WebSocketConfig struct {
	URL string

	// Token is sent as the Sec-WebSocket-Protocol value, which is how the
	// stream authenticates clients. Empty means no token.
	Token string

	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

// WebSocketSource reads the market-data stream over a websocket. Open
// requests the list of available instruments and subscribes to all of them.
type WebSocketSource struct {
	config WebSocketConfig
	dialer *websocket.Dialer
	logger *zap.Logger
	conn   *websocket.Conn

	preamble   func(line string)
	subscribed bool
}

// NewWebSocketSource creates an unopened source.
func NewWebSocketSource(config WebSocketConfig) *WebSocketSource {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: config.HandshakeTimeout,
	}
	if config.Token != "" {
		dialer.Subprotocols = []string{config.Token}
	}

	return &WebSocketSource{
		config: config,
		dialer: dialer,
		logger: logging.OrNop(config.Logger),
	}
}

// Open implements Source.
func (ws *WebSocketSource) Open(ctx context.Context) (int, error) {
	conn, _, err := ws.dialer.DialContext(ctx, ws.config.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("connecting to %s: %w", ws.config.URL, err)
	}
	ws.conn = conn
	ws.logger.Info("connected to feed", zap.String("url", ws.config.URL))

	if err := conn.WriteMessage(websocket.TextMessage, []byte(AvailableRequest)); err != nil {
		return 0, fmt.Errorf("requesting available instruments: %w", err)
	}

	instruments, err := ws.awaitAvailable(ctx)
	if err != nil {
		return 0, err
	}
	if len(instruments) == 0 {
		return 0, ErrNoInstruments
	}
	ws.logger.Info("received instrument list", zap.Int("instruments", len(instruments)))

	msg, err := SubscribeMessage(instruments)
	if err != nil {
		return 0, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return 0, fmt.Errorf("sending subscribe: %w", err)
	}
	ws.subscribed = true
	ws.logger.Info("sent subscribe for all instruments")

	return len(instruments), nil
}

// SetPreambleHandler implements Subscriber.
func (ws *WebSocketSource) SetPreambleHandler(fn func(line string)) {
	ws.preamble = fn
}

// Subscribed implements Subscriber.
func (ws *WebSocketSource) Subscribed() bool {
	return ws.subscribed
}

// awaitAvailable reads until the availability reply arrives, ignoring other
// messages.
func (ws *WebSocketSource) awaitAvailable(ctx context.Context) ([]string, error) {
	deadline := time.Now().Add(ws.config.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ws.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting read deadline: %w", err)
	}
	defer ws.conn.SetReadDeadline(time.Time{})

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msgType, data, err := ws.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("waiting for available instruments: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if instruments, ok := ParseAvailable(string(data)); ok {
			return instruments, nil
		}
		ws.logger.Debug("message before instrument list", zap.ByteString("message", data))
		if ws.preamble != nil {
			ws.preamble(string(data))
		}
	}
}

// Next implements Source. Only text frames are returned.
func (ws *WebSocketSource) Next(ctx context.Context) (string, error) {
	if ws.conn == nil {
		return "", ErrNotOpen
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		msgType, data, err := ws.conn.ReadMessage()
		if err != nil {
			// Close() from the shutdown path surfaces as a read error.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return "", io.EOF
			}
			return "", fmt.Errorf("reading feed: %w", err)
		}
		if msgType == websocket.TextMessage {
			return string(data), nil
		}
	}
}

// Close implements Source.
func (ws *WebSocketSource) Close() error {
	if ws.conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return ws.conn.Close()
}
