package codec

import (
	"fmt"
	"strconv"
	"strings"

	"madigan/message"
	"madigan/urid"
)

// DefaultMaxMessage bounds an outbound flat message; it matches the
// default frame limit so every encoded message fits one frame.
const DefaultMaxMessage = 2047

// FlatCodec encodes typed objects as flat text records on behalf of one
// origin. Nested objects are inlined: their triples follow the parent's with
// no bracketing, so decoding yields a single flat property list.
type FlatCodec struct {
	origin string
	mapper urid.Mapper
	atoms  *AtomCodec
	maxLen int
}

// NewFlat returns a codec for origin. maxLen <= 0 selects DefaultMaxMessage.
func NewFlat(origin string, m urid.Mapper, maxLen int) *FlatCodec {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessage
	}
	return &FlatCodec{origin: origin, mapper: m, atoms: NewAtom(m), maxLen: maxLen}
}

func (c *FlatCodec) Type() CodecType { return CodecTypeFlat }

// Origin is the source id written in front of every message.
func (c *FlatCodec) Origin() string { return c.origin }

func (c *FlatCodec) Encode(obj *message.Object) ([]byte, error) {
	text, err := c.EncodeObject(obj)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

func (c *FlatCodec) Decode(data []byte) (*message.Object, error) {
	obj, _, err := c.DecodeObject(string(data))
	return obj, err
}

// EncodeObject renders
//
//	source|<origin>||object|<kind>(||key|<name>|type|<tag>|value|<text>)*
//
// Any property that cannot be rendered aborts the whole object.
func (c *FlatCodec) EncodeObject(obj *message.Object) (string, error) {
	if obj == nil {
		return "", fmt.Errorf("%w: nil object", ErrNotObject)
	}
	// otype 0 is an object with no kind; it renders as an empty name.
	var kind string
	if obj.Kind != 0 {
		name, ok := c.mapper.Unmap(obj.Kind)
		if !ok {
			return "", &EncodeError{Type: "kind", Err: fmt.Errorf("unmapped urid %d", obj.Kind)}
		}
		kind = name
	}

	var b strings.Builder
	b.WriteString(JoinPairs([]message.Pair{
		{Name: message.FieldSource, Value: c.origin},
		{Name: message.FieldObject, Value: kind},
	}))
	if err := c.writeProperties(&b, obj, nil); err != nil {
		return "", err
	}
	if b.Len() > c.maxLen {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, b.Len(), c.maxLen)
	}
	return b.String(), nil
}

// FlattenAtom decodes a host atom object and renders it as EncodeObject
// does.
func (c *FlatCodec) FlattenAtom(buf []byte) (string, error) {
	obj, err := c.atoms.Decode(buf)
	if err != nil {
		return "", err
	}
	return c.EncodeObject(obj)
}

func (c *FlatCodec) writeProperties(b *strings.Builder, obj *message.Object, path []string) error {
	for _, p := range obj.Properties {
		name, ok := c.mapper.Unmap(p.Key)
		if !ok {
			return &EncodeError{Path: childPath(path, unmappedName(p.Key)), Type: "key", Err: fmt.Errorf("unmapped urid %d", p.Key)}
		}
		at := childPath(path, name)

		if p.Value.Type == message.TypeObject {
			if p.Value.Object == nil {
				return &EncodeError{Path: at, Type: "object", Err: ErrNotObject}
			}
			if err := c.writeProperties(b, p.Value.Object, at); err != nil {
				return err
			}
			continue
		}

		tag, text, err := c.valueText(p.Value)
		if err != nil {
			return &EncodeError{Path: at, Type: tag, Err: err}
		}
		b.WriteString(FieldSep)
		b.WriteString(JoinTriple(name, tag, text))
		if b.Len() > c.maxLen {
			return fmt.Errorf("%w: limit %d reached at %s", ErrMessageTooLarge, c.maxLen, strings.Join(at, "/"))
		}
	}
	return nil
}

func (c *FlatCodec) valueText(v message.Value) (tag, text string, err error) {
	tag, ok := v.Type.Tag()
	if !ok {
		return fmt.Sprintf("type %d", v.Type), "", ErrUnsupportedType
	}
	switch v.Type {
	case message.TypeInt:
		return tag, strconv.FormatInt(int64(v.Int), 10), nil
	case message.TypeFloat:
		return tag, FormatFloat(v.Float), nil
	case message.TypeString, message.TypePath:
		if strings.Contains(v.Text, PairSep) {
			return tag, "", fmt.Errorf("%w: value contains %q", ErrMalformed, PairSep)
		}
		return tag, v.Text, nil
	case message.TypeURI:
		name, ok := c.mapper.Unmap(v.URI)
		if !ok {
			return tag, "", fmt.Errorf("unmapped urid %d", v.URI)
		}
		return tag, name, nil
	}
	return tag, "", ErrUnsupportedType
}

// DecodeObject parses an object message back into its source and a flat
// object. Inlined nested properties come back as siblings of their parent.
func (c *FlatCodec) DecodeObject(raw string) (*message.Object, string, error) {
	fields := strings.Split(raw, FieldSep)
	if len(fields) < 2 {
		return nil, "", fmt.Errorf("%w: want source and object fields", ErrMalformed)
	}
	source, ok := cutPair(fields[0], message.FieldSource)
	if !ok {
		return nil, "", fmt.Errorf("%w: leading field %q is not a source", ErrMalformed, fields[0])
	}
	kind, ok := cutPair(fields[1], message.FieldObject)
	if !ok {
		return nil, "", fmt.Errorf("%w: second field %q is not an object", ErrMalformed, fields[1])
	}

	obj := &message.Object{}
	if kind != "" {
		obj.Kind = c.mapper.Map(kind)
	}
	for _, f := range fields[2:] {
		name, tag, text, err := SplitTriple(f)
		if err != nil {
			return nil, "", err
		}
		v, err := c.parseValue(tag, text)
		if err != nil {
			return nil, "", &ParseError{Command: message.FieldObject, Field: name, Value: text, Err: err}
		}
		obj.Add(c.mapper.Map(name), v)
	}
	return obj, source, nil
}

func (c *FlatCodec) parseValue(tag, text string) (message.Value, error) {
	t, ok := message.ParseTag(tag)
	if !ok {
		return message.Value{}, fmt.Errorf("%w: tag %q", ErrUnsupportedType, tag)
	}
	switch t {
	case message.TypeInt:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return message.Value{}, err
		}
		return message.IntValue(int32(n)), nil
	case message.TypeFloat:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return message.Value{}, err
		}
		return message.FloatValue(float32(f)), nil
	case message.TypeString:
		return message.StringValue(text), nil
	case message.TypePath:
		return message.PathValue(text), nil
	default:
		return message.URIValue(c.mapper.Map(text)), nil
	}
}

// JoinTriple renders one property as `key|<name>|type|<tag>|value|<text>`.
func JoinTriple(name, tag, text string) string {
	return message.FieldKey + PairSep + name + PairSep +
		message.FieldType + PairSep + tag + PairSep +
		message.FieldValue + PairSep + text
}

// SplitTriple is the inverse of JoinTriple. The value text keeps any
// delimiter it contains.
func SplitTriple(field string) (name, tag, text string, err error) {
	parts := strings.SplitN(field, PairSep, 6)
	if len(parts) != 6 || parts[0] != message.FieldKey || parts[2] != message.FieldType || parts[4] != message.FieldValue {
		return "", "", "", fmt.Errorf("%w: property field %q", ErrMalformed, field)
	}
	return parts[1], parts[3], parts[5], nil
}

// FormatFloat renders f as the shortest decimal that reads back as the same
// float32.
func FormatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'f', -1, 32)
}

func cutPair(field, name string) (string, bool) {
	parts := strings.Split(field, PairSep)
	if len(parts) != 2 || parts[0] != name {
		return "", false
	}
	return parts[1], true
}

func unmappedName(id urid.URID) string {
	return "#" + strconv.FormatUint(uint64(id), 10)
}

func childPath(path []string, name string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, name)
}
