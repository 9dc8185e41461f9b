// Package bridge exposes the dispatch context over a WebSocket so observer
// contexts in other processes (a browser extension, a second terminal) can
// speak through it.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/caption-voice/internal/pipeline"
	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

const (
	// ReasonRateLimited acknowledges a message dropped by the rate limiter.
	ReasonRateLimited = "rate-limited"

	outboxSize   = 32
	writeTimeout = 5 * time.Second
)

// Config holds bridge configuration.
type Config struct {
	// Listen is the TCP address to serve on.
	Listen string

	// AllowedOrigins are WebSocket origin patterns; empty allows same-host only.
	AllowedOrigins []string

	// RateLimit is the sustained inbound message rate per connection.
	RateLimit float64

	// Burst is the inbound burst size per connection.
	Burst int

	// Status reports the service status for GET /status.
	Status func() (ttypes.ServiceStatus, string)

	// SaveSettings persists settings received from a client.
	SaveSettings func(ttypes.Settings) error
}

// Server carries the message protocol over WebSockets.
type Server struct {
	coord  *pipeline.Coordinator
	cfg    Config
	logger *log.Logger

	mu    sync.RWMutex
	conns map[*client]struct{}
}

// New creates a bridge for coord.
func New(coord *pipeline.Coordinator, cfg Config) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.Burst < 1 {
		cfg.Burst = 20
	}
	return &Server{
		coord:  coord,
		cfg:    cfg,
		logger: log.WithPrefix("bridge"),
		conns:  make(map[*client]struct{}),
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /status", s.handleStatus)
	return corsMiddleware(mux)
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("Bridge listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusResponse struct {
	Status   string          `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Backend  string          `json:"backend"`
	Slot     string          `json:"slot"`
	Settings ttypes.Settings `json:"settings"`
	Clients  int             `json:"clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Status:   ttypes.StatusActive.String(),
		Backend:  string(s.coord.Backend()),
		Slot:     s.coord.State().Slot.String(),
		Settings: s.coord.Settings(),
		Clients:  s.Clients(),
	}
	if s.cfg.Status != nil {
		st, reason := s.cfg.Status()
		resp.Status, resp.Reason = st.String(), reason
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// client is one WebSocket connection attached to the dispatcher as a peer.
type client struct {
	conn    *websocket.Conn
	outbox  chan pipeline.Message
	limiter *rate.Limiter
	logger  *log.Logger
}

// Deliver implements pipeline.Peer.
func (c *client) Deliver(msg pipeline.Message) {
	select {
	case c.outbox <- msg:
	default:
		c.logger.Warn("Client too slow, dropping message", "action", msg.Action)
	}
}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.outbox:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				c.logger.Debug("Write failed", "err", err)
				return
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.logger.Error("WebSocket accept failed", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{
		conn:    conn,
		outbox:  make(chan pipeline.Message, outboxSize),
		limiter: rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.Burst),
		logger:  s.logger.With("remote", r.RemoteAddr),
	}
	id := s.coord.Attach(c)

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.coord.Detach(id)
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	c.logger.Info("Client connected")
	go c.writeLoop(ctx)

	// Late joiners learn the current settings straight away.
	current := s.coord.Settings()
	c.Deliver(pipeline.Message{Action: pipeline.ActionSettingsUpdated, Settings: &current})

	for {
		var msg pipeline.Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			c.logger.Debug("Client gone", "err", err)
			return
		}

		if !c.limiter.Allow() {
			c.logger.Warn("Rate limit exceeded")
			ok := false
			c.Deliver(pipeline.Message{Success: &ok, Reason: ReasonRateLimited})
			continue
		}

		s.handleMessage(ctx, c, id, msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, c *client, id pipeline.PeerID, msg pipeline.Message) {
	if msg.Action == pipeline.ActionSettingsUpdated && msg.Settings != nil && s.cfg.SaveSettings != nil {
		if err := s.cfg.SaveSettings(*msg.Settings); err != nil {
			c.logger.Warn("Could not persist settings", "err", err)
		}
	}

	err := s.coord.Post(ctx, msg, id)
	switch {
	case err == nil:
	case errors.Is(err, tts.ErrBusy):
		c.logger.Debug("Speak dropped, dispatcher busy")
	case errors.Is(err, tts.ErrDisabled):
		// already acknowledged by the dispatcher
	case errors.Is(err, context.Canceled):
	default:
		c.logger.Warn("Message rejected", "action", msg.Action, "err", err)
	}
}
