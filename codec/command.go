package codec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"madigan/message"
)

// DefaultMaxFields is the inbound top-level field cap.
const DefaultMaxFields = 15

var (
	errNotFinite = errors.New("not a finite number")
	errDataByte  = errors.New("outside 0..127")
)

// Limits bounds inbound command parsing.
type Limits struct {
	MaxFields    int  // <= 0 selects DefaultMaxFields
	StrictFields bool // reject instead of truncating past MaxFields
}

func (l Limits) maxFields() int {
	if l.MaxFields <= 0 {
		return DefaultMaxFields
	}
	return l.MaxFields
}

// ParseCommand turns one inbound record into a command. Fields past the cap
// are dropped and the result flagged Truncated, or rejected with
// ErrTooManyFields under StrictFields. Malformed numbers fail with a
// *ParseError; unknown types and missing pairs are not errors.
func ParseCommand(raw string, limits Limits) (message.Inbound, error) {
	max := limits.maxFields()
	fields, truncated := SplitFields(raw, max)
	in := message.Inbound{Fields: len(fields), Truncated: truncated}
	if truncated && limits.StrictFields {
		return in, fmt.Errorf("%w: more than %d", ErrTooManyFields, max)
	}

	var typ, key, value string
	var hasKey, hasValue bool
	for _, f := range fields {
		parts := strings.Split(f, PairSep)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case message.FieldType:
			typ = parts[1]
		case message.FieldKey:
			key, hasKey = parts[1], true
		case message.FieldValue:
			value, hasValue = parts[1], true
		}
	}

	switch typ {
	case message.TypeControlInputPort, message.TypePatchParameter, message.TypeMidiCCParameter:
	default:
		in.Command = message.Unknown{Type: typ}
		return in, nil
	}
	if !hasKey || !hasValue {
		missing := message.FieldKey
		if hasKey {
			missing = message.FieldValue
		}
		in.Command = message.Incomplete{Type: typ, Missing: missing}
		return in, nil
	}

	cmd, err := buildCommand(typ, key, value)
	if err != nil {
		return in, err
	}
	in.Command = cmd
	return in, nil
}

func buildCommand(typ, key, value string) (message.Command, error) {
	switch typ {
	case message.TypeControlInputPort:
		port, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, &ParseError{Command: typ, Field: message.FieldKey, Value: key, Err: err}
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
		if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
			err = errNotFinite
		}
		if err != nil {
			return nil, &ParseError{Command: typ, Field: message.FieldValue, Value: value, Err: err}
		}
		return message.ControlInputPort{Port: port, Value: float32(f)}, nil

	case message.TypePatchParameter:
		if key == "" {
			return message.Incomplete{Type: typ, Missing: message.FieldKey}, nil
		}
		return message.PatchParameter{Key: key, Value: value}, nil

	default:
		ctrl, err := dataByte(typ, message.FieldKey, key)
		if err != nil {
			return nil, err
		}
		v, err := dataByte(typ, message.FieldValue, value)
		if err != nil {
			return nil, err
		}
		return message.MidiCCParameter{Controller: ctrl, Value: v}, nil
	}
}

func dataByte(typ, field, text string) (uint8, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err == nil && (n < 0 || n > 127) {
		err = errDataByte
	}
	if err != nil {
		return 0, &ParseError{Command: typ, Field: field, Value: text, Err: err}
	}
	return uint8(n), nil
}

// EncodeCommand renders a command in the inbound grammar, as a peer sends
// it. Unknown and Incomplete commands keep only their type.
func EncodeCommand(cmd message.Command) string {
	var typ, key, value string
	switch c := cmd.(type) {
	case message.ControlInputPort:
		typ, key, value = message.TypeControlInputPort, strconv.Itoa(c.Port), FormatFloat(c.Value)
	case message.PatchParameter:
		typ, key, value = message.TypePatchParameter, c.Key, c.Value
	case message.MidiCCParameter:
		typ, key, value = message.TypeMidiCCParameter, strconv.Itoa(int(c.Controller)), strconv.Itoa(int(c.Value))
	case message.Unknown:
		return JoinPairs([]message.Pair{{Name: message.FieldType, Value: c.Type}})
	case message.Incomplete:
		return JoinPairs([]message.Pair{{Name: message.FieldType, Value: c.Type}})
	}
	return EncodeRaw(typ, key, value)
}

// EncodeRaw renders `type|<typ>||key|<key>||value|<value>` without checking
// the type.
func EncodeRaw(typ, key, value string) string {
	return JoinPairs([]message.Pair{
		{Name: message.FieldType, Value: typ},
		{Name: message.FieldKey, Value: key},
		{Name: message.FieldValue, Value: value},
	})
}
