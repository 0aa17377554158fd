package codec

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"madigan/message"
)

func TestParseKnownCommands(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want message.Command
	}{
		{"control", "type|control-input-port||key|7||value|3.5", message.ControlInputPort{Port: 7, Value: 3.5}},
		{"control negative port", "type|control-input-port||key|-4||value|0", message.ControlInputPort{Port: -4, Value: 0}},
		{"patch", "type|patch-parameter||key|gain||value|0.8", message.PatchParameter{Key: "gain", Value: "0.8"}},
		{"patch empty value", "type|patch-parameter||key|gain||value|", message.PatchParameter{Key: "gain", Value: ""}},
		{"midicc", "type|midicc-parameter||key|74||value|100", message.MidiCCParameter{Controller: 74, Value: 100}},
		{"field order", "value|100||key|74||type|midicc-parameter", message.MidiCCParameter{Controller: 74, Value: 100}},
		{"last wins", "type|patch-parameter||key|a||key|b||value|1||value|2", message.PatchParameter{Key: "b", Value: "2"}},
		{"ignores odd fields", "type|control-input-port||junk||key|1|extra||key|2||value|1", message.ControlInputPort{Port: 2, Value: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := ParseCommand(tt.raw, Limits{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, in.Command)
			assert.False(t, in.Truncated)
		})
	}
}

func TestParseUnknownAndIncomplete(t *testing.T) {
	in, err := ParseCommand("type|reboot||key|1||value|2", Limits{})
	require.NoError(t, err)
	assert.Equal(t, message.Unknown{Type: "reboot"}, in.Command)

	in, err = ParseCommand("key|1||value|2", Limits{})
	require.NoError(t, err)
	assert.Equal(t, message.Unknown{Type: ""}, in.Command)

	in, err = ParseCommand("type|control-input-port||value|2", Limits{})
	require.NoError(t, err)
	assert.Equal(t, message.Incomplete{Type: message.TypeControlInputPort, Missing: "key"}, in.Command)

	in, err = ParseCommand("type|midicc-parameter||key|2", Limits{})
	require.NoError(t, err)
	assert.Equal(t, message.Incomplete{Type: message.TypeMidiCCParameter, Missing: "value"}, in.Command)

	in, err = ParseCommand("type|patch-parameter||key|||value|x", Limits{})
	require.NoError(t, err)
	assert.Equal(t, message.Incomplete{Type: message.TypePatchParameter, Missing: "key"}, in.Command)
	assert.Equal(t, message.KindUnknown, in.Command.Kind())
}

func TestParseMalformedNumbers(t *testing.T) {
	tests := []struct {
		raw   string
		field string
	}{
		{"type|control-input-port||key|seven||value|1", "key"},
		{"type|control-input-port||key|7||value|loud", "value"},
		{"type|control-input-port||key|7||value|NaN", "value"},
		{"type|midicc-parameter||key|128||value|1", "key"},
		{"type|midicc-parameter||key|1||value|-1", "value"},
		{"type|midicc-parameter||key|1.5||value|1", "key"},
	}
	for _, tt := range tests {
		in, err := ParseCommand(tt.raw, Limits{})
		var pe *ParseError
		require.True(t, errors.As(err, &pe), tt.raw)
		assert.Equal(t, tt.field, pe.Field, tt.raw)
		assert.Nil(t, in.Command, tt.raw)
	}
}

func TestParseFieldCap(t *testing.T) {
	fields := []string{"type|patch-parameter", "key|gain"}
	for len(fields) < DefaultMaxFields {
		fields = append(fields, "pad|x")
	}
	fields = append(fields, "value|0.8")
	raw := strings.Join(fields, FieldSep)

	in, err := ParseCommand(raw, Limits{})
	require.NoError(t, err)
	assert.True(t, in.Truncated)
	assert.Equal(t, DefaultMaxFields, in.Fields)
	assert.Equal(t, message.Incomplete{Type: message.TypePatchParameter, Missing: "value"}, in.Command)

	in, err = ParseCommand(raw, Limits{MaxFields: 16})
	require.NoError(t, err)
	assert.False(t, in.Truncated)
	assert.Equal(t, message.PatchParameter{Key: "gain", Value: "0.8"}, in.Command)

	_, err = ParseCommand(raw, Limits{StrictFields: true})
	assert.True(t, errors.Is(err, ErrTooManyFields))
}

func TestEncodeCommandParsesBack(t *testing.T) {
	for _, cmd := range []message.Command{
		message.ControlInputPort{Port: 3, Value: 0.125},
		message.PatchParameter{Key: "urn:test:gain", Value: "0.8"},
		message.MidiCCParameter{Controller: 1, Value: 127},
	} {
		in, err := ParseCommand(EncodeCommand(cmd), Limits{})
		require.NoError(t, err)
		assert.Equal(t, cmd, in.Command)
	}
	assert.Equal(t, "type|reboot", EncodeCommand(message.Unknown{Type: "reboot"}))
}

func TestSplitPairs(t *testing.T) {
	pairs, truncated := SplitPairs("a|1||b||c|2|3||d|4", 0)
	assert.False(t, truncated)
	assert.Equal(t, []message.Pair{{Name: "a", Value: "1"}, {Name: "d", Value: "4"}}, pairs)

	pairs, truncated = SplitPairs("a|1||b|2||c|3", 2)
	assert.True(t, truncated)
	assert.Len(t, pairs, 2)
}
