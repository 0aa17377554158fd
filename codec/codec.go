// Package codec converts between the bridge's representations of an event:
//
//	host atom bytes ──AtomCodec.Decode──→ message.Object ──FlatCodec.Encode──→ flat text
//	flat text ──ParseCommand──→ message.Command (inbound)
//
// The flat text form is one record of `name|value` fields joined by `||`.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"madigan/message"
)

type CodecType byte

const (
	CodecTypeFlat CodecType = 0 // pipe-delimited text, the wire form
	CodecTypeAtom CodecType = 1 // LV2 atoms, the host form
)

const (
	FieldSep = "||"
	PairSep  = "|"
)

// Codec converts typed objects to and from one byte representation.
type Codec interface {
	Encode(obj *message.Object) ([]byte, error)
	Decode(data []byte) (*message.Object, error)
	Type() CodecType
}

var (
	ErrMessageTooLarge = errors.New("codec: message too large")
	ErrTooManyFields   = errors.New("codec: too many fields")
	ErrUnsupportedType = errors.New("codec: unsupported value type")
	ErrNotObject       = errors.New("codec: not an object")
	ErrMalformed       = errors.New("codec: malformed message")
)

// EncodeError reports the property that stopped an object from being
// encoded. Path lists property names from the outermost object inwards.
type EncodeError struct {
	Path []string
	Type string
	Err  error
}

func (e *EncodeError) Error() string {
	path := "<object>"
	if len(e.Path) > 0 {
		path = strings.Join(e.Path, "/")
	}
	return fmt.Sprintf("codec: property %s (%s): %v", path, e.Type, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// ParseError reports an inbound field that could not be converted.
type ParseError struct {
	Command string
	Field   string
	Value   string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("codec: %s: invalid %s %q: %v", e.Command, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// JoinPairs renders pairs as one flat record.
func JoinPairs(pairs []message.Pair) string {
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteString(FieldSep)
		}
		b.WriteString(p.Name)
		b.WriteString(PairSep)
		b.WriteString(p.Value)
	}
	return b.String()
}

// SplitFields splits a record into at most max top-level fields (max <= 0
// means no cap). truncated reports that fields beyond max were dropped.
func SplitFields(raw string, max int) (fields []string, truncated bool) {
	if max <= 0 {
		return strings.Split(raw, FieldSep), false
	}
	fields = strings.SplitN(raw, FieldSep, max+1)
	if len(fields) > max {
		return fields[:max], true
	}
	return fields, false
}

// SplitPairs returns every field that is exactly one name|value pair.
func SplitPairs(raw string, max int) (pairs []message.Pair, truncated bool) {
	fields, truncated := SplitFields(raw, max)
	for _, f := range fields {
		parts := strings.Split(f, PairSep)
		if len(parts) != 2 {
			continue
		}
		pairs = append(pairs, message.Pair{Name: parts[0], Value: parts[1]})
	}
	return pairs, truncated
}

// EncodeHandshake renders `source|<id>||plugin|<uri>`.
func EncodeHandshake(h message.Handshake) string {
	return JoinPairs([]message.Pair{
		{Name: message.FieldSource, Value: h.Source},
		{Name: message.FieldPlugin, Value: h.Plugin},
	})
}

// ParseHandshake reads the source and plugin pairs of a handshake.
func ParseHandshake(raw string) (message.Handshake, error) {
	pairs, _ := SplitPairs(raw, 0)
	var h message.Handshake
	for _, p := range pairs {
		switch p.Name {
		case message.FieldSource:
			h.Source = p.Value
		case message.FieldPlugin:
			h.Plugin = p.Value
		}
	}
	if h.Source == "" {
		return message.Handshake{}, fmt.Errorf("%w: handshake without source", ErrMalformed)
	}
	return h, nil
}
