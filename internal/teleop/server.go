// Package teleop serves the WebSocket command and feedback interface
// used by the autonomy bridge and remote operator consoles.
package teleop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cartlab/go-dbw-bridge/internal/command"
	"github.com/cartlab/go-dbw-bridge/internal/hub"
	"github.com/cartlab/go-dbw-bridge/internal/logging"
	"github.com/cartlab/go-dbw-bridge/internal/metrics"
	"github.com/cartlab/go-dbw-bridge/internal/telemetry"
)

const defaultOutBufSize = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Operator consoles connect from dashboards on other origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server accepts teleop sessions, dispatches their commands into the
// arbiter and fans vehicle feedback back out through the hub.
type Server struct {
	addr         string
	hub          *hub.Hub
	arb          *command.Arbiter
	log          *slog.Logger
	readDeadline time.Duration
	verifier     *Verifier

	httpSrv *http.Server
	lisMu   sync.Mutex
	lis     net.Listener

	ready     chan struct{}
	readyOnce sync.Once

	errMu   sync.Mutex
	lastErr error
	errCh   chan error

	connWG sync.WaitGroup
}

// Option configures the Server.
type Option func(*Server)

// WithListenAddr sets the TCP listen address.
func WithListenAddr(addr string) Option { return func(s *Server) { s.addr = addr } }

// WithHub injects a configured hub (buffer size, backpressure policy).
func WithHub(h *hub.Hub) Option { return func(s *Server) { s.hub = h } }

// WithArbiter wires the command arbiter the sessions feed.
func WithArbiter(a *command.Arbiter) Option { return func(s *Server) { s.arb = a } }

// WithLogger overrides the global logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

// WithReadDeadline bounds client silence; pings go out inside it.
func WithReadDeadline(d time.Duration) Option { return func(s *Server) { s.readDeadline = d } }

// WithVerifier enables token auth on session upgrades.
func WithVerifier(v *Verifier) Option { return func(s *Server) { s.verifier = v } }

// New creates a Server. WithArbiter is required for command dispatch.
func New(opts ...Option) *Server {
	s := &Server{
		addr:         ":18080",
		readDeadline: 60 * time.Second,
		log:          logging.L(),
		ready:        make(chan struct{}),
		errCh:        make(chan error, 8),
	}
	for _, o := range opts {
		o(s)
	}
	if s.hub == nil {
		s.hub = hub.New()
	}
	return s
}

// Serve listens and accepts sessions until ctx is cancelled. It
// returns nil on a context-driven stop.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrListen, err)
		s.setError(err)
		return err
	}
	s.lisMu.Lock()
	s.lis = lis
	s.lisMu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) { s.handleWS(ctx, w, r) })
	srv := &http.Server{Handler: mux}
	s.httpSrv = srv

	go func() {
		<-ctx.Done()
		// Unblock Serve; hijacked session conns are closed by Shutdown.
		_ = srv.Close()
	}()

	s.log.Info("teleop_listen", "addr", lis.Addr().String())
	s.signalReady()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if ctx.Err() != nil {
			return nil
		}
		s.setError(err)
		return err
	}
	return nil
}

func (s *Server) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if err := s.verifier.Verify(r); err != nil {
		metrics.IncHubReject()
		s.setError(fmt.Errorf("%w: %v", ErrAuth, err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.setError(fmt.Errorf("%w: %v", ErrUpgrade, err))
		return
	}
	bufSize := s.hub.OutBufSize
	if bufSize <= 0 {
		bufSize = defaultOutBufSize
	}
	c := hub.NewClient(bufSize, conn.RemoteAddr().String())
	s.hub.Add(c)
	s.log.Info("client_connected", "remote", c.Addr, "clients", s.hub.Count())

	s.connWG.Add(2)
	go s.writePump(conn, c)
	go s.readPump(ctx, conn, c)
}

// PublishFeedback marshals a feedback sample and fans it out to all
// connected sessions.
func (s *Server) PublishFeedback(fb telemetry.Feedback) {
	msg := feedbackMessage{
		Type:        "feedback",
		Stamp:       fb.Stamp.UTC().Format(time.RFC3339Nano),
		FrameID:     fb.FrameID,
		VelocityMps: fb.VelocityMps,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.hub.Broadcast(data)
}

var _ telemetry.Publisher = (*Server)(nil)

func (s *Server) signalReady() { s.readyOnce.Do(func() { close(s.ready) }) }

// Ready is closed once the listener accepts connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound listen address, empty before Ready.
func (s *Server) Addr() string {
	s.lisMu.Lock()
	defer s.lisMu.Unlock()
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

func (s *Server) setError(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
	metrics.IncError(mapErrToMetric(err))
	select {
	case s.errCh <- err:
	default:
	}
}

// LastError returns the most recent server error.
func (s *Server) LastError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

// Errors exposes a non-blocking error stream for supervision.
func (s *Server) Errors() <-chan error { return s.errCh }

// Shutdown closes every session and waits for the pumps to drain or
// ctx to expire, then logs a traffic summary.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
	}
	for _, c := range s.hub.Clients() {
		c.Close()
	}
	done := make(chan struct{})
	go func() { s.connWG.Wait(); close(done) }()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	snap := metrics.Snap()
	s.log.Info("teleop_shutdown_summary",
		"commands_rx", snap.WSRx,
		"messages_tx", snap.WSTx,
		"feedback", snap.Feedback,
		"hub_drops", snap.HubDrops,
		"errors", snap.Errors,
	)
	return err
}
