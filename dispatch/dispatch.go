// Package dispatch turns inbound peer commands into host deliveries:
//
//	control-input-port → raw float32 written to the port, format 0
//	patch-parameter    → patch:Set object on the patch destination
//	midicc-parameter   → one-event MIDI sequence on the MIDI destination
//
// Everything else is dropped without error.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"madigan/atom"
	"madigan/codec"
	"madigan/message"
	"madigan/middleware"
	"madigan/observability"
	"madigan/ports"
	"madigan/urid"
)

// FormatRaw tags a delivery as an untyped scalar.
const FormatRaw uint32 = 0

// Host receives reconstructed events.
type Host interface {
	Deliver(port int, format uint32, payload []byte)
}

// HostFunc adapts a function to Host.
type HostFunc func(port int, format uint32, payload []byte)

func (f HostFunc) Deliver(port int, format uint32, payload []byte) { f(port, format, payload) }

type Options struct {
	Limits      codec.Limits
	MidiChannel uint8 // 0..15
	Middlewares []middleware.Middleware
}

type Dispatcher struct {
	host    Host
	dests   ports.Destinations
	mapper  urid.Mapper
	vocab   atom.Vocabulary
	forge   *atom.Forge
	limits  codec.Limits
	channel uint8
	handle  middleware.HandlerFunc
	logger  zerolog.Logger
}

func New(host Host, dests ports.Destinations, m urid.Mapper, opts Options, logger zerolog.Logger) (*Dispatcher, error) {
	if opts.MidiChannel > 15 {
		return nil, fmt.Errorf("dispatch: midi channel %d out of range 0..15", opts.MidiChannel)
	}
	vocab := atom.NewVocabulary(m)
	d := &Dispatcher{
		host:    host,
		dests:   dests,
		mapper:  m,
		vocab:   vocab,
		forge:   atom.NewForge(vocab),
		limits:  opts.Limits,
		channel: opts.MidiChannel,
		logger:  logger.With().Str("component", "dispatch").Logger(),
	}
	d.handle = middleware.Chain(opts.Middlewares...)(d.dispatch)
	return d, nil
}

// Handle parses one inbound record and dispatches it through the
// middleware chain. Parse failures are returned after being logged and
// counted; the command is dropped.
func (d *Dispatcher) Handle(ctx context.Context, raw string) error {
	in, err := codec.ParseCommand(raw, d.limits)
	if err != nil {
		reason := observability.ReasonParse
		if errors.Is(err, codec.ErrTooManyFields) {
			reason = observability.ReasonTruncated
		}
		observability.RecordDropped(reason)
		d.logger.Warn().Err(err).Str("raw", raw).Msg("dropping inbound command")
		return err
	}
	if in.Truncated {
		d.logger.Warn().Int("fields", in.Fields).Msg("inbound command truncated")
	}
	return d.handle(ctx, in)
}

func (d *Dispatcher) dispatch(_ context.Context, in message.Inbound) error {
	switch cmd := in.Command.(type) {
	case message.ControlInputPort:
		d.host.Deliver(cmd.Port, FormatRaw, le32(math.Float32bits(cmd.Value)))

	case message.PatchParameter:
		if d.dests.Patch < 0 {
			d.noDestination(cmd.Kind())
			return nil
		}
		payload, err := d.patchSet(cmd)
		if err != nil {
			return err
		}
		d.host.Deliver(d.dests.Patch, uint32(d.vocab.EventTransfer), payload)

	case message.MidiCCParameter:
		if d.dests.MIDI < 0 {
			d.noDestination(cmd.Kind())
			return nil
		}
		payload, err := d.controlChange(cmd)
		if err != nil {
			return err
		}
		d.host.Deliver(d.dests.MIDI, uint32(d.vocab.EventTransfer), payload)

	case message.Incomplete:
		d.logger.Debug().Str("type", cmd.Type).Str("missing", cmd.Missing).Msg("ignoring incomplete command")

	case message.Unknown:
		d.logger.Debug().Str("type", cmd.Type).Msg("ignoring unknown command")
	}
	return nil
}

// patchSet forges patch:Set{property: <key>, value: "<value>"}.
func (d *Dispatcher) patchSet(cmd message.PatchParameter) ([]byte, error) {
	d.forge.Reset()
	d.forge.Object(0, d.vocab.PatchSet)
	d.forge.Key(d.vocab.PatchProperty)
	d.forge.URID(d.mapper.Map(cmd.Key))
	d.forge.Key(d.vocab.PatchValue)
	d.forge.String(cmd.Value)
	if err := d.forge.Pop(); err != nil {
		return nil, err
	}
	return d.forge.Bytes()
}

// controlChange forges a sequence holding one control change at frame 0.
func (d *Dispatcher) controlChange(cmd message.MidiCCParameter) ([]byte, error) {
	d.forge.Reset()
	d.forge.Sequence(0)
	d.forge.FrameTime(0)
	d.forge.Raw(d.vocab.MidiEvent, []byte{0xB0 | d.channel, cmd.Controller, cmd.Value})
	if err := d.forge.Pop(); err != nil {
		return nil, err
	}
	return d.forge.Bytes()
}

func (d *Dispatcher) noDestination(kind message.Kind) {
	observability.RecordDropped(observability.ReasonNoDest)
	d.logger.Debug().Stringer("kind", kind).Msg("no destination port, command ignored")
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
