// Package message defines the data exchanged by the bridge: typed objects
// coming from the host, the pairs of a flat text message, and the commands a
// peer can send back.
//
// A typed object goes through the codec layer to become one flat message,
// and the flat message is wrapped in a protocol frame for the TCP stream.
package message

import "madigan/urid"

// Well-known pair names.
const (
	FieldSource = "source"
	FieldPlugin = "plugin"
	FieldObject = "object"
	FieldKey    = "key"
	FieldType   = "type"
	FieldValue  = "value"
)

// Pair is one name|value field of a flat message.
type Pair struct {
	Name  string
	Value string
}

// ValueType selects the variant held by a Value.
type ValueType uint8

const (
	TypeInvalid ValueType = iota
	TypeInt
	TypeFloat
	TypeString
	TypePath
	TypeURI
	TypeObject
)

var valueTags = map[ValueType]string{
	TypeInt:    "integer",
	TypeFloat:  "float",
	TypeString: "string",
	TypePath:   "path",
	TypeURI:    "uri",
}

// Tag returns the wire tag for t. Objects have no tag: they are flattened.
func (t ValueType) Tag() (string, bool) {
	tag, ok := valueTags[t]
	return tag, ok
}

// ParseTag maps a wire tag back to its ValueType.
func ParseTag(tag string) (ValueType, bool) {
	for t, s := range valueTags {
		if s == tag {
			return t, true
		}
	}
	return TypeInvalid, false
}

// Value is the tagged union carried by an object property.
type Value struct {
	Type   ValueType
	Int    int32
	Float  float32
	Text   string    // TypeString, TypePath
	URI    urid.URID // TypeURI
	Object *Object   // TypeObject
}

func IntValue(v int32) Value      { return Value{Type: TypeInt, Int: v} }
func FloatValue(v float32) Value  { return Value{Type: TypeFloat, Float: v} }
func StringValue(v string) Value  { return Value{Type: TypeString, Text: v} }
func PathValue(v string) Value    { return Value{Type: TypePath, Text: v} }
func URIValue(v urid.URID) Value  { return Value{Type: TypeURI, URI: v} }
func ObjectValue(v *Object) Value { return Value{Type: TypeObject, Object: v} }

// Property is one key/value pair, kept in declaration order.
type Property struct {
	Key   urid.URID
	Value Value
}

// Object is a typed object: a kind plus ordered properties.
type Object struct {
	Kind       urid.URID
	Properties []Property
}

// Add appends a property and returns o for chaining.
func (o *Object) Add(key urid.URID, v Value) *Object {
	o.Properties = append(o.Properties, Property{Key: key, Value: v})
	return o
}

// Handshake is the first message a bridge sends on a new connection.
type Handshake struct {
	Source string
	Plugin string
}
