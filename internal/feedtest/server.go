// Package feedtest emulates the market-data book stream: a token endpoint
// and a websocket that answers the availability request, sends an initial
// snapshot per subscribed instrument and then paced live book updates.
//
// It backs the end-to-end tests and the local fake-feed script.
package feedtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wesleyorama2/feedstats/internal/feed"
	"github.com/wesleyorama2/feedstats/internal/logging"
)

// Routes served by Handler.
const (
	AuthPath   = "/api/v2/authenticate"
	StreamPath = "/stream"
)

// Config describes the emulated feed.
type Config struct {
	Instruments []string

	// APIKey and ClientID are the accepted credentials; Token is the
	// token issued for them and required as the websocket subprotocol.
	// An empty Token disables both checks.
	APIKey   string
	ClientID string
	Token    string

	// Updates is the number of live updates sent after the snapshots
	// before the server closes the stream normally; 0 streams until the
	// client goes away.
	Updates int

	// UpdateRate paces live updates per second; 0 sends them unpaced.
	UpdateRate float64

	// Preamble frames are sent ahead of the availability reply.
	Preamble []string
}

// Server is the emulated feed.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	logger   *zap.Logger

	sessions atomic.Int64
}

// NewServer creates a server for cfg.
func NewServer(cfg Config, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logging.OrNop(logger),
	}
	if cfg.Token != "" {
		s.upgrader.Subprotocols = []string{cfg.Token}
	}
	return s
}

// Sessions returns how many stream sessions have been accepted.
func (s *Server) Sessions() int64 {
	return s.sessions.Load()
}

// Handler returns the HTTP routes of the emulated feed.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(AuthPath, s.handleAuth).Methods(http.MethodPost)
	r.HandleFunc(StreamPath, s.handleStream).Methods(http.MethodGet)
	return r
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	creds := gjson.GetManyBytes(body, "api_key", "client_id")
	if s.cfg.Token != "" && (creds[0].String() != s.cfg.APIKey || creds[1].String() != s.cfg.ClientID) {
		s.logger.Debug("rejected credentials")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"AccessToken": s.cfg.Token,
		"ExpiresIn":   3600,
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Token != "" && !offersProtocol(r, s.cfg.Token) {
		http.Error(w, "missing or invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	// Hijacked connections keep the http.Server read/write deadlines.
	_ = conn.NetConn().SetDeadline(time.Time{})
	s.sessions.Add(1)

	if err := s.serve(conn); err != nil {
		s.logger.Debug("session ended", zap.Error(err))
	}
}

func offersProtocol(r *http.Request, token string) bool {
	for _, p := range websocket.Subprotocols(r) {
		if p == token {
			return true
		}
	}
	return false
}

// serve runs one session: answer requests until a subscribe arrives, then
// stream.
func (s *Server) serve(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		switch gjson.GetBytes(data, "action").String() {
		case "available_to_subscribe":
			for _, frame := range s.cfg.Preamble {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
					return err
				}
			}
			if err := conn.WriteMessage(websocket.TextMessage, AvailableReply(s.cfg.Instruments)); err != nil {
				return err
			}
		case "subscribe":
			var tickers []string
			for _, t := range gjson.GetBytes(data, "params.tickers").Array() {
				tickers = append(tickers, t.String())
			}
			return s.stream(conn, tickers)
		}
	}
}

func (s *Server) stream(conn *websocket.Conn, tickers []string) error {
	// From here on the session only writes; this reader notices the
	// client going away and handles its close reply.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, t := range tickers {
		if err := conn.WriteMessage(websocket.TextMessage, SnapshotMessage(t)); err != nil {
			return err
		}
	}
	if len(tickers) == 0 {
		return closeNormal(conn, gone)
	}

	var pacer *feed.Pacer
	if s.cfg.UpdateRate > 0 {
		pacer = feed.NewPacer(s.cfg.UpdateRate)
	}

	for i := 0; s.cfg.Updates == 0 || i < s.cfg.Updates; i++ {
		var wait <-chan time.Time
		if pacer != nil {
			wait = time.After(time.Until(pacer.Next()))
		} else {
			ready := make(chan time.Time)
			close(ready)
			wait = ready
		}

		select {
		case <-gone:
			return nil
		case <-wait:
		}

		msg := BookMessage(tickers[i%len(tickers)], i)
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return err
		}
	}
	return closeNormal(conn, gone)
}

// closeNormal sends a normal close and waits briefly for the client to
// answer it.
func closeNormal(conn *websocket.Conn, gone <-chan struct{}) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		return err
	}

	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	select {
	case <-gone:
	case <-timer.C:
	}
	return nil
}

// AvailableReply is the availability reply listing instruments.
func AvailableReply(instruments []string) []byte {
	if instruments == nil {
		instruments = []string{}
	}
	data, _ := json.Marshal(map[string]interface{}{
		"ev":      "available_to_subscribe",
		"status":  "success",
		"message": instruments,
	})
	return data
}

// SnapshotMessage is the initial book snapshot for one instrument.
func SnapshotMessage(instrument string) []byte {
	return []byte(fmt.Sprintf(
		`{"ev":"get_last_event","status":"success","message":{"ev":"book","symb":%q,"bid":[[10.0,100]],"ask":[[10.1,100]]}}`,
		instrument))
}

// BookMessage is one live book update; seq varies the price level.
func BookMessage(instrument string, seq int) []byte {
	price := 10.0 + float64(seq%100)/100
	return []byte(fmt.Sprintf(`{"ev":"book","symb":%q,"bid":[[%.2f,100]],"ask":[[%.2f,100]]}`,
		instrument, price, price+0.1))
}

// Tickers generates n instrument names, e.g. OPT0001.
func Tickers(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("OPT%04d", i+1)
	}
	return out
}

// StreamURL converts an http(s) base URL into the stream URL.
func StreamURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + StreamPath
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + StreamPath
	}
	return base + StreamPath
}
