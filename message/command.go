package message

// Command type values recognized on the inbound `type` pair.
const (
	TypeControlInputPort = "control-input-port"
	TypePatchParameter   = "patch-parameter"
	TypeMidiCCParameter  = "midicc-parameter"
)

// Kind enumerates the closed set of inbound commands.
type Kind int

const (
	KindUnknown Kind = iota
	KindControlInputPort
	KindPatchParameter
	KindMidiCCParameter
)

func (k Kind) String() string {
	switch k {
	case KindControlInputPort:
		return TypeControlInputPort
	case KindPatchParameter:
		return TypePatchParameter
	case KindMidiCCParameter:
		return TypeMidiCCParameter
	default:
		return "unknown"
	}
}

// Command is one parsed inbound command. The concrete types below are the
// only implementations.
type Command interface {
	Kind() Kind
}

// ControlInputPort writes a raw float to a control port.
type ControlInputPort struct {
	Port  int
	Value float32
}

// PatchParameter sets a plugin property through a patch:Set object.
type PatchParameter struct {
	Key   string // property URI, resolved to a URID before delivery
	Value string
}

// MidiCCParameter sends one MIDI control change.
type MidiCCParameter struct {
	Controller uint8
	Value      uint8
}

// Unknown is any command whose type is not recognized, including a missing
// type. Dispatching it is a no-op.
type Unknown struct {
	Type string
}

// Incomplete is a recognized command missing a required pair. Dispatching it
// is a no-op.
type Incomplete struct {
	Type    string
	Missing string
}

func (ControlInputPort) Kind() Kind { return KindControlInputPort }
func (PatchParameter) Kind() Kind   { return KindPatchParameter }
func (MidiCCParameter) Kind() Kind  { return KindMidiCCParameter }
func (Unknown) Kind() Kind          { return KindUnknown }
func (Incomplete) Kind() Kind       { return KindUnknown }

// Inbound is a parsed command plus what the parser had to give up on.
type Inbound struct {
	Command   Command
	Fields    int  // top-level fields seen, after truncation
	Truncated bool // fields beyond the limit were dropped
}
