// Package bridge is one plugin UI instance: it forwards the host's atom
// events to the peer as flat text and turns the peer's commands back into
// host deliveries.
//
//	host ──PortEvent──→ FlattenAtom ──→ transport.Send ──→ peer
//	host ──Idle──→ transport.Tick ──→ dispatch.Handle ──→ host.Deliver
//
// Everything runs on the host's UI thread; a Bridge is not safe for
// concurrent use.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"madigan/atom"
	"madigan/codec"
	"madigan/config"
	"madigan/dispatch"
	"madigan/instance"
	"madigan/loadbalance"
	"madigan/message"
	"madigan/middleware"
	"madigan/observability"
	"madigan/ports"
	"madigan/registry"
	"madigan/transport"
	"madigan/urid"
)

type Option func(*options)

type options struct {
	resolver  registry.Resolver
	balancer  loadbalance.Balancer
	logger    zerolog.Logger
	transport []transport.Option
}

// WithResolver replaces the static address from cfg.Transport.Addr.
func WithResolver(r registry.Resolver) Option { return func(o *options) { o.resolver = r } }

func WithBalancer(b loadbalance.Balancer) Option { return func(o *options) { o.balancer = b } }

func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.logger = l } }

func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) { o.transport = append(o.transport, opts...) }
}

type Bridge struct {
	id         string
	vocab      atom.Vocabulary
	flat       *codec.FlatCodec
	conn       *transport.Conn
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
}

// New sets up a bridge for cfg.Bridge.PluginURI. It does not connect; the
// first Idle does.
func New(cfg config.Config, host dispatch.Host, m urid.Mapper, dests ports.Destinations, ids instance.Source, opts ...Option) (*Bridge, error) {
	if cfg.Bridge.PluginURI == "" {
		return nil, fmt.Errorf("%w: bridge.plugin_uri is required", config.ErrInvalid)
	}
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.resolver == nil {
		o.resolver = registry.StaticAddr(cfg.Transport.Addr)
	}
	if o.balancer == nil {
		b, err := loadbalance.ByName(cfg.Discovery.Balancer)
		if err != nil {
			return nil, err
		}
		o.balancer = b
	}

	id := ids.Next()
	logger := o.logger.With().Str("source", id).Str("plugin", cfg.Bridge.PluginURI).Logger()

	chain := []middleware.Middleware{
		middleware.RecoverMiddleware(),
		middleware.LoggingMiddleware(logger),
		middleware.MetricsMiddleware(),
	}
	if cfg.Bridge.InboundRate > 0 {
		chain = append(chain, middleware.RateLimitMiddleware(cfg.Bridge.InboundRate, cfg.Bridge.InboundBurst))
	}
	d, err := dispatch.New(host, dests, m, dispatch.Options{
		Limits:      cfg.Limits(),
		MidiChannel: uint8(cfg.Bridge.MidiChannel),
		Middlewares: chain,
	}, logger)
	if err != nil {
		return nil, err
	}

	hello := message.Handshake{Source: id, Plugin: cfg.Bridge.PluginURI}
	topts := append([]transport.Option{transport.WithLogger(logger)}, o.transport...)
	b := &Bridge{
		id:         id,
		vocab:      atom.NewVocabulary(m),
		flat:       codec.NewFlat(id, m, cfg.Bridge.MaxMessage),
		conn:       transport.New(cfg.TransportConfig(), o.resolver, o.balancer, hello, topts...),
		dispatcher: d,
		logger:     logger.With().Str("component", "bridge").Logger(),
	}
	b.logger.Info().
		Int("patch_port", dests.Patch).
		Int("midi_port", dests.MIDI).
		Msg("bridge ready")
	return b, nil
}

// ID is the source id announced to the peer.
func (b *Bridge) ID() string { return b.id }

func (b *Bridge) State() transport.State { return b.conn.State() }

// PortEvent forwards one host event. Only atom objects delivered as event
// transfers are sent; raw values, MIDI events and other atoms are ignored.
// An object that cannot be flattened is dropped and its error returned.
func (b *Bridge) PortEvent(port int, format uint32, buffer []byte) error {
	if format == dispatch.FormatRaw {
		return nil
	}
	if format != uint32(b.vocab.EventTransfer) {
		b.logger.Debug().Int("port", port).Uint32("format", format).Msg("ignoring event with unknown format")
		return nil
	}
	a, err := atom.Parse(buffer)
	if err != nil {
		observability.RecordDropped(observability.ReasonEncode)
		return fmt.Errorf("bridge: port %d: %w", port, err)
	}
	if a.Type == b.vocab.MidiEvent || !b.vocab.IsObject(a.Type) {
		return nil
	}

	text, err := b.flat.FlattenAtom(buffer)
	if err != nil {
		observability.RecordDropped(observability.ReasonEncode)
		b.logger.Warn().Err(err).Int("port", port).Msg("dropping event")
		return err
	}
	if err := b.conn.Send([]byte(text)); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			observability.RecordDropped(observability.ReasonDisconnected)
			b.logger.Debug().Int("port", port).Msg("not connected, event dropped")
			return nil
		}
		return err
	}
	return nil
}

// Idle runs one connection step: connect when due, then handle inbound
// commands. Dropped commands are logged and counted, not returned.
func (b *Bridge) Idle(ctx context.Context) error {
	return b.conn.Tick(ctx, b.onFrame)
}

func (b *Bridge) onFrame(ctx context.Context, payload []byte) error {
	err := b.dispatcher.Handle(ctx, string(payload))
	var pe *codec.ParseError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &pe), errors.Is(err, codec.ErrTooManyFields), errors.Is(err, middleware.ErrRateLimited):
		return nil
	}
	return err
}

// Close releases the connection.
func (b *Bridge) Close() error {
	b.logger.Info().Msg("bridge closed")
	return b.conn.Close()
}
