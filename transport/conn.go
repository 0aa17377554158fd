// Package transport owns the bridge's one connection to its peer. It is
// driven entirely by Tick from the host's idle callback and never spawns a
// goroutine:
//
//	Disconnected ──Tick: resolve → pick → dial → handshake──→ Connected
//	     ▲                                                       │
//	     └──── I/O error (ReconnectOnError) ◄── Tick: poll frames┘
//
// A failed attempt schedules the next one with exponential backoff; ticks
// that fall inside the backoff window return immediately. An I/O error
// always closes the socket; with ReconnectOnError off no attempt follows.
package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/rs/zerolog"

	"madigan/codec"
	"madigan/loadbalance"
	"madigan/message"
	"madigan/observability"
	"madigan/protocol"
	"madigan/registry"
)

var ErrNotConnected = errors.New("transport: not connected")

type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

type Config struct {
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration // completing an announced frame
	WriteTimeout     time.Duration
	PollWait         time.Duration // waiting for a length prefix
	MaxFrame         uint32
	FramesPerTick    int
	ReconnectOnError bool
	Backoff          BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   2 * time.Second,
		ReadTimeout:      time.Second,
		WriteTimeout:     time.Second,
		PollWait:         protocol.DefaultPollWait,
		MaxFrame:         protocol.DefaultMaxFrame,
		FramesPerTick:    1,
		ReconnectOnError: true,
		Backoff:          DefaultBackoff(),
	}
}

// FrameHandler receives each inbound payload.
type FrameHandler func(ctx context.Context, payload []byte) error

// DialFunc opens the stream to a peer.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type Option func(*Conn)

func WithDialer(d DialFunc) Option            { return func(c *Conn) { c.dial = d } }
func WithClock(now func() time.Time) Option   { return func(c *Conn) { c.now = now } }
func WithRand(rng *rand.Rand) Option          { return func(c *Conn) { c.rng = rng } }
func WithLogger(logger zerolog.Logger) Option { return func(c *Conn) { c.logger = logger } }

// Conn is not safe for concurrent use; the bridge calls it from one thread.
type Conn struct {
	cfg      Config
	resolver registry.Resolver
	balancer loadbalance.Balancer
	hello    message.Handshake
	dial     DialFunc
	now      func() time.Time
	rng      *rand.Rand
	logger   zerolog.Logger

	conn        net.Conn
	recv        *protocol.Receiver
	state       State
	peer        registry.Endpoint
	attempts    int
	nextAttempt time.Time
	halted      bool // lost with ReconnectOnError off
}

func New(cfg Config, resolver registry.Resolver, balancer loadbalance.Balancer, hello message.Handshake, opts ...Option) *Conn {
	if cfg.FramesPerTick <= 0 {
		cfg.FramesPerTick = 1
	}
	if cfg.MaxFrame == 0 {
		cfg.MaxFrame = protocol.DefaultMaxFrame
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = protocol.DefaultPollWait
	}
	if balancer == nil {
		balancer = &loadbalance.RoundRobinBalancer{}
	}
	var d net.Dialer
	c := &Conn{
		cfg:      cfg,
		resolver: resolver,
		balancer: balancer,
		hello:    hello,
		dial:     d.DialContext,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "transport").Str("source", hello.Source).Logger()
	return c
}

func (c *Conn) State() State { return c.state }

// Peer is the endpoint of the current or last connection.
func (c *Conn) Peer() registry.Endpoint { return c.peer }

// Tick advances the connection by one step. While disconnected it makes at
// most one connection attempt, then returns its error. While connected it
// hands up to FramesPerTick inbound frames to handle, stopping early when
// nothing is buffered.
func (c *Conn) Tick(ctx context.Context, handle FrameHandler) error {
	if c.conn == nil {
		if c.halted || c.now().Before(c.nextAttempt) {
			return nil
		}
		if err := c.connect(ctx); err != nil {
			c.attempts++
			delay := NextBackoffDelay(c.cfg.Backoff, c.attempts, c.rng)
			c.nextAttempt = c.now().Add(delay)
			observability.RecordConnect(false)
			c.logger.Warn().Err(err).Int("attempt", c.attempts).Dur("retry_in", delay).Msg("connect failed")
			return err
		}
		c.attempts = 0
		observability.RecordConnect(true)
		c.logger.Info().Str("peer", c.peer.Addr).Msg("connected")
	}

	for i := 0; i < c.cfg.FramesPerTick; i++ {
		payload, err := c.recv.Receive(c.cfg.MaxFrame)
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			observability.RecordDropped(observability.ReasonFrameTooBig)
			c.logger.Warn().Err(err).Msg("dropped oversized frame")
			return err
		}
		if errors.Is(err, protocol.ErrFrameIncomplete) && !c.cfg.ReconnectOnError {
			c.logger.Warn().Err(err).Msg("frame stalled, resuming next tick")
			return err
		}
		if err != nil {
			return c.fail(fmt.Errorf("transport: receive: %w", err))
		}
		if payload == nil {
			return nil
		}
		observability.RecordFrame("in")
		if err := handle(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

// Send frames payload to the peer. A successful send marks the connection
// Connected.
func (c *Conn) Send(payload []byte) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.write(payload); err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			return err
		}
		return c.fail(fmt.Errorf("transport: send: %w", err))
	}
	c.state = Connected
	return nil
}

// Close releases the socket. The next Tick reconnects.
func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.recv = nil, nil
	c.state = Disconnected
	return err
}

func (c *Conn) connect(ctx context.Context) error {
	eps, err := c.resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("transport: resolve: %w", err)
	}
	ep, err := c.balancer.Pick(c.hello.Source, eps)
	if err != nil {
		return fmt.Errorf("transport: pick: %w", err)
	}

	dctx := ctx
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}
	conn, err := c.dial(dctx, "tcp", ep.Addr)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", ep.Addr, err)
	}

	c.conn = conn
	c.recv = protocol.NewReceiver(conn, c.cfg.PollWait, c.cfg.ReadTimeout)
	c.peer = ep
	if err := c.write([]byte(codec.EncodeHandshake(c.hello))); err != nil {
		c.Close()
		return fmt.Errorf("transport: handshake: %w", err)
	}
	c.state = Connected
	return nil
}

func (c *Conn) write(payload []byte) error {
	if c.cfg.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	if err := protocol.WriteFrame(c.conn, payload, c.cfg.MaxFrame); err != nil {
		return err
	}
	observability.RecordFrame("out")
	return nil
}

// fail handles an I/O error on an established connection: the socket is
// closed, then a retry is scheduled or, without ReconnectOnError, the
// connection stays down.
func (c *Conn) fail(err error) error {
	observability.RecordDropped(observability.ReasonDisconnected)
	c.Close()
	if !c.cfg.ReconnectOnError {
		c.halted = true
		c.logger.Warn().Err(err).Msg("connection lost, reconnect disabled")
		return err
	}
	c.logger.Warn().Err(err).Msg("connection lost")
	c.attempts = 1
	c.nextAttempt = c.now().Add(NextBackoffDelay(c.cfg.Backoff, c.attempts, c.rng))
	return err
}
