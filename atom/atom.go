// Package atom reads and writes the host's self-describing binary event form
// (LV2 atoms).
//
// Every atom is a header followed by a body padded to 8 bytes:
//
//	0      4      8
//	┌──────┬──────┬──────────────────────┬─────────┐
//	│ size │ type │ body (size bytes)    │ pad → 8 │
//	└──────┴──────┴──────────────────────┴─────────┘
//
// Object body:   id uint32, otype uint32, then properties
//                {key uint32, context uint32, value atom} each padded to 8.
// Sequence body: unit uint32, pad uint32, then events
//                {frames int64, body atom} each padded to 8.
//
// Atoms are native-endian in the host; this package uses little-endian.
package atom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"madigan/urid"
)

const (
	HeaderSize = 8

	AtomPrefix  = "http://lv2plug.in/ns/ext/atom#"
	MidiPrefix  = "http://lv2plug.in/ns/ext/midi#"
	PatchPrefix = "http://lv2plug.in/ns/ext/patch#"

	URIInt           = AtomPrefix + "Int"
	URIFloat         = AtomPrefix + "Float"
	URIString        = AtomPrefix + "String"
	URIPath          = AtomPrefix + "Path"
	URIURID          = AtomPrefix + "URID"
	URIObject        = AtomPrefix + "Object"
	URIBlank         = AtomPrefix + "Blank"
	URISequence      = AtomPrefix + "Sequence"
	URIEvent         = AtomPrefix + "Event"
	URIEventTransfer = AtomPrefix + "eventTransfer"
	URIAtomPort      = AtomPrefix + "AtomPort"
	URIMidiEvent     = MidiPrefix + "MidiEvent"
	URIPatchMessage  = PatchPrefix + "Message"
	URIPatchSet      = PatchPrefix + "Set"
	URIPatchGet      = PatchPrefix + "Get"
	URIPatchProperty = PatchPrefix + "property"
	URIPatchValue    = PatchPrefix + "value"
)

var (
	ErrTruncated = errors.New("atom: truncated")
	ErrNotObject = errors.New("atom: not an object")
	ErrNotSeq    = errors.New("atom: not a sequence")
	ErrBodySize  = errors.New("atom: unexpected body size")
)

var le = binary.LittleEndian

// Vocabulary holds the URIDs the bridge needs, resolved once at setup.
type Vocabulary struct {
	Int, Float, String, Path, URID urid.URID
	Object, Blank, Sequence, Event urid.URID
	EventTransfer, MidiEvent       urid.URID
	PatchSet, PatchGet             urid.URID
	PatchProperty, PatchValue      urid.URID
}

func NewVocabulary(m urid.Mapper) Vocabulary {
	return Vocabulary{
		Int:           m.Map(URIInt),
		Float:         m.Map(URIFloat),
		String:        m.Map(URIString),
		Path:          m.Map(URIPath),
		URID:          m.Map(URIURID),
		Object:        m.Map(URIObject),
		Blank:         m.Map(URIBlank),
		Sequence:      m.Map(URISequence),
		Event:         m.Map(URIEvent),
		EventTransfer: m.Map(URIEventTransfer),
		MidiEvent:     m.Map(URIMidiEvent),
		PatchSet:      m.Map(URIPatchSet),
		PatchGet:      m.Map(URIPatchGet),
		PatchProperty: m.Map(URIPatchProperty),
		PatchValue:    m.Map(URIPatchValue),
	}
}

// IsObject reports whether t is atom:Object or atom:Blank.
func (v Vocabulary) IsObject(t urid.URID) bool {
	return t == v.Object || t == v.Blank
}

// Atom is a read-only view of one atom inside a buffer.
type Atom struct {
	Type urid.URID
	Body []byte
}

// Parse reads the atom at the start of buf. Trailing bytes are ignored.
func Parse(buf []byte) (Atom, error) {
	if len(buf) < HeaderSize {
		return Atom{}, ErrTruncated
	}
	size := le.Uint32(buf[0:4])
	if uint64(size) > uint64(len(buf)-HeaderSize) {
		return Atom{}, fmt.Errorf("%w: body %d bytes, %d available", ErrTruncated, size, len(buf)-HeaderSize)
	}
	return Atom{
		Type: urid.URID(le.Uint32(buf[4:8])),
		Body: buf[HeaderSize : HeaderSize+int(size)],
	}, nil
}

// TotalSize is the header plus body size, without trailing padding.
func (a Atom) TotalSize() int {
	return HeaderSize + len(a.Body)
}

func (a Atom) Int() (int32, error) {
	if len(a.Body) != 4 {
		return 0, ErrBodySize
	}
	return int32(le.Uint32(a.Body)), nil
}

func (a Atom) Float() (float32, error) {
	if len(a.Body) != 4 {
		return 0, ErrBodySize
	}
	return math.Float32frombits(le.Uint32(a.Body)), nil
}

func (a Atom) URIDValue() (urid.URID, error) {
	if len(a.Body) != 4 {
		return 0, ErrBodySize
	}
	return urid.URID(le.Uint32(a.Body)), nil
}

// Text returns a String or Path body without its NUL terminator.
func (a Atom) Text() string {
	body := a.Body
	for len(body) > 0 && body[len(body)-1] == 0 {
		body = body[:len(body)-1]
	}
	return string(body)
}

// Property is one key/value pair of an object.
type Property struct {
	Key     urid.URID
	Context urid.URID
	Value   Atom
}

// ObjectBody is the decoded body of an atom:Object.
type ObjectBody struct {
	ID         urid.URID
	OType      urid.URID
	Properties []Property
}

// Object decodes a as an object body. The caller checks a.Type.
func (a Atom) Object() (ObjectBody, error) {
	if len(a.Body) < 8 {
		return ObjectBody{}, ErrNotObject
	}
	obj := ObjectBody{
		ID:    urid.URID(le.Uint32(a.Body[0:4])),
		OType: urid.URID(le.Uint32(a.Body[4:8])),
	}
	for off := 8; off < len(a.Body); {
		if len(a.Body)-off < 8 {
			return ObjectBody{}, ErrTruncated
		}
		key := urid.URID(le.Uint32(a.Body[off : off+4]))
		ctx := urid.URID(le.Uint32(a.Body[off+4 : off+8]))
		value, err := Parse(a.Body[off+8:])
		if err != nil {
			return ObjectBody{}, err
		}
		obj.Properties = append(obj.Properties, Property{Key: key, Context: ctx, Value: value})
		off += pad(8 + value.TotalSize())
	}
	return obj, nil
}

// Event is one timed atom inside a sequence.
type Event struct {
	Frames int64
	Body   Atom
}

// Sequence decodes a as a sequence body. The caller checks a.Type.
func (a Atom) Sequence() (unit urid.URID, events []Event, err error) {
	if len(a.Body) < 8 {
		return 0, nil, ErrNotSeq
	}
	unit = urid.URID(le.Uint32(a.Body[0:4]))
	for off := 8; off < len(a.Body); {
		if len(a.Body)-off < 8 {
			return 0, nil, ErrTruncated
		}
		frames := int64(le.Uint64(a.Body[off : off+8]))
		body, err := Parse(a.Body[off+8:])
		if err != nil {
			return 0, nil, err
		}
		events = append(events, Event{Frames: frames, Body: body})
		off += pad(8 + body.TotalSize())
	}
	return unit, events, nil
}

func pad(n int) int {
	return (n + 7) &^ 7
}
