// Package server is madigan-peer: the process plugin UIs connect to.
//
// Connection pipeline:
//
//	Accept conn → handleConn (one goroutine per UI)
//	  → first frame: handshake (source, plugin) → UI table
//	  → every later frame: appended to that UI's history
//
// Commands go the other way through Send, serialized per connection by the
// UI's write lock. The HTTP API in http.go exposes the table.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"madigan/codec"
	"madigan/config"
	"madigan/message"
	"madigan/observability"
	"madigan/protocol"
	"madigan/registry"
)

var (
	ErrUnknownUI = errors.New("server: no such UI")
	ErrClosed    = errors.New("server: closed")
)

// Options configures a Server. Zero values fall back to the defaults of
// config.Default.
type Options struct {
	ID               string
	Listen           string
	HTTPListen       string // empty disables the HTTP API
	History          int
	CorsOrigins      []string
	Weight           int
	MaxFrame         uint32
	Service          string
	TTL              int64
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// OptionsFrom takes the [peer] section plus the frame and discovery limits
// the peer shares with its bridges.
func OptionsFrom(cfg config.Config) Options {
	return Options{
		ID:           cfg.Peer.ID,
		Listen:       cfg.Peer.Listen,
		HTTPListen:   cfg.Peer.HTTPListen,
		History:      cfg.Peer.History,
		CorsOrigins:  cfg.Peer.CorsOrigins,
		Weight:       cfg.Peer.Weight,
		MaxFrame:     cfg.Bridge.MaxFrame,
		Service:      cfg.Discovery.Service,
		TTL:          cfg.Discovery.TTL,
		WriteTimeout: cfg.Transport.WriteTimeout,
	}
}

func (o *Options) fill() {
	d := config.Default()
	if o.Listen == "" {
		o.Listen = d.Peer.Listen
	}
	if o.History < 1 {
		o.History = d.Peer.History
	}
	if o.Weight < 1 {
		o.Weight = d.Peer.Weight
	}
	if o.MaxFrame == 0 {
		o.MaxFrame = d.Bridge.MaxFrame
	}
	if o.Service == "" {
		o.Service = registry.DefaultService
	}
	if o.TTL < 1 {
		o.TTL = d.Discovery.TTL
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 5 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.Transport.WriteTimeout
	}
}

// Server accepts bridge connections and keeps one entry per UI instance.
type Server struct {
	opts     Options
	logger   zerolog.Logger
	registry registry.Registry // nil if not using discovery
	started  time.Time

	listener   net.Listener
	httpLn     net.Listener
	httpServer *http.Server
	endpoint   registry.Endpoint

	wg       sync.WaitGroup // tracks connection goroutines for graceful shutdown
	shutdown atomic.Bool    // set before the listener closes to suppress Accept errors

	mu  sync.Mutex
	uis map[string]*ui
}

// New returns a server that is not yet listening. reg may be nil.
func New(opts Options, reg registry.Registry, logger zerolog.Logger) *Server {
	opts.fill()
	observability.RegisterMetrics()
	return &Server{
		opts:     opts,
		logger:   logger.With().Str("component", "peer").Logger(),
		registry: reg,
		uis:      make(map[string]*ui),
	}
}

// Listen binds the TCP and HTTP listeners and registers the peer when a
// registry is set. The advertised addresses are the bound ones, so ":0"
// works in tests.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.opts.Listen, err)
	}
	s.listener = ln
	s.endpoint = registry.Endpoint{
		ID:     s.opts.ID,
		Addr:   ln.Addr().String(),
		Weight: s.opts.Weight,
	}

	if s.opts.HTTPListen != "" {
		hl, err := net.Listen("tcp", s.opts.HTTPListen)
		if err != nil {
			ln.Close()
			return fmt.Errorf("server: listen %s: %w", s.opts.HTTPListen, err)
		}
		s.httpLn = hl
		s.httpServer = &http.Server{
			Handler:      s.Handler(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		s.endpoint.HTTPAddr = hl.Addr().String()
	}

	if s.registry != nil {
		if err := s.registry.Register(ctx, s.opts.Service, s.endpoint, s.opts.TTL); err != nil {
			s.closeListeners()
			return fmt.Errorf("server: register: %w", err)
		}
	}
	s.started = time.Now()
	s.logger.Info().Str("addr", s.endpoint.Addr).Str("http", s.endpoint.HTTPAddr).Msg("peer listening")
	return nil
}

// Addr is the bound TCP address, empty before Listen.
func (s *Server) Addr() string { return s.endpoint.Addr }

// HTTPAddr is the bound HTTP address, empty when the API is disabled.
func (s *Server) HTTPAddr() string { return s.endpoint.HTTPAddr }

// Serve runs the HTTP API in the background and the accept loop in the
// caller. It returns nil after Shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return fmt.Errorf("server: Serve before Listen")
	}
	if s.httpServer != nil {
		go func() {
			if err := s.httpServer.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("http api stopped")
			}
		}()
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	return s.Serve()
}

// handleConn owns one bridge connection. Reads are sequential; writes come
// from Send under the UI's write lock.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	if s.shutdown.Load() {
		return
	}
	log := s.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()

	if err := conn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout)); err != nil {
		return
	}
	first, err := protocol.ReadFrame(conn, s.opts.MaxFrame)
	if err != nil {
		log.Warn().Err(err).Msg("no handshake")
		return
	}
	hello, err := codec.ParseHandshake(string(first))
	if err != nil {
		log.Warn().Err(err).Str("frame", string(first)).Msg("invalid handshake")
		return
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return
	}
	observability.RecordPeerMessage("in")

	u := newUI(hello, conn, s.opts.History)
	if !s.attach(u) {
		return
	}
	defer s.detach(u)
	log = log.With().Str("ui", u.id).Logger()
	log.Info().Str("plugin", u.plugin).Msg("ui connected")

	for {
		payload, err := protocol.ReadFrame(conn, s.opts.MaxFrame)
		if err != nil {
			if s.shutdown.Load() {
				return
			}
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				log.Warn().Err(err).Msg("dropping connection")
			} else {
				log.Info().Err(err).Msg("ui disconnected")
			}
			return
		}
		observability.RecordPeerMessage("in")
		u.record(string(payload))
		log.Debug().Str("message", string(payload)).Msg("from ui")
	}
}

// attach installs u, replacing and closing an older connection that used
// the same id. Once shutdown has begun it closes u instead and reports false.
func (s *Server) attach(u *ui) bool {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		u.conn.Close()
		return false
	}
	old := s.uis[u.id]
	s.uis[u.id] = u
	s.mu.Unlock()
	if old != nil {
		s.logger.Warn().Str("ui", u.id).Msg("replacing connection with the same id")
		old.conn.Close()
	}
	return true
}

func (s *Server) detach(u *ui) {
	s.mu.Lock()
	if s.uis[u.id] == u {
		delete(s.uis, u.id)
	}
	s.mu.Unlock()
}

func (s *Server) lookup(id string) (*ui, error) {
	s.mu.Lock()
	u, ok := s.uis[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUI, id)
	}
	return u, nil
}

// Send frames cmd to the UI registered under id.
func (s *Server) Send(id string, cmd message.Command) error {
	return s.SendText(id, codec.EncodeCommand(cmd))
}

// SendText frames an already encoded command. It does not check the text.
func (s *Server) SendText(id, text string) error {
	u, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := u.send([]byte(text), s.opts.MaxFrame, s.opts.WriteTimeout); err != nil {
		return fmt.Errorf("server: send to %q: %w", id, err)
	}
	observability.RecordPeerMessage("out")
	s.logger.Debug().Str("ui", id).Str("command", text).Msg("to ui")
	return nil
}

// History returns the recent messages of one UI, oldest first.
func (s *Server) History(id string) ([]string, error) {
	u, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return u.history(), nil
}

// UIs lists the connected UIs sorted by id.
func (s *Server) UIs() []UIInfo {
	s.mu.Lock()
	out := make([]UIInfo, 0, len(s.uis))
	for _, u := range s.uis {
		out = append(out, u.info())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry so bridges stop resolving this peer
//  2. Stop the HTTP API and close the listeners
//  3. Close every UI connection and wait for their goroutines (with timeout)
//
// The shutdown flag is set first so the accept loop returns nil and a
// second call reports ErrClosed.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.listener == nil || s.shutdown.Swap(true) {
		return ErrClosed
	}
	if s.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := s.registry.Deregister(ctx, s.opts.Service, s.endpoint.Addr); err != nil {
			s.logger.Warn().Err(err).Msg("deregister failed")
		}
		cancel()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("http shutdown")
		}
		cancel()
	}
	s.closeListeners()

	s.mu.Lock()
	for _, u := range s.uis {
		u.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("peer stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: timeout waiting for connections to close")
	}
}

func (s *Server) closeListeners() {
	if s.listener != nil {
		s.listener.Close()
	}
	if s.httpLn != nil {
		s.httpLn.Close()
	}
}
