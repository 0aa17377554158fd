package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueTags(t *testing.T) {
	cases := map[ValueType]string{
		TypeInt:    "integer",
		TypeFloat:  "float",
		TypeString: "string",
		TypePath:   "path",
		TypeURI:    "uri",
	}
	for typ, want := range cases {
		tag, ok := typ.Tag()
		require.True(t, ok, "tag for %d", typ)
		assert.Equal(t, want, tag)

		back, ok := ParseTag(tag)
		require.True(t, ok)
		assert.Equal(t, typ, back)
	}

	_, ok := TypeObject.Tag()
	assert.False(t, ok, "objects are flattened, never tagged")
	_, ok = ParseTag("double")
	assert.False(t, ok)
}

func TestObjectAddKeepsOrder(t *testing.T) {
	inner := &Object{Kind: 9}
	inner.Add(4, IntValue(-1))

	obj := &Object{Kind: 1}
	obj.Add(2, FloatValue(0.5)).Add(3, ObjectValue(inner)).Add(5, PathValue("/x"))

	require.Len(t, obj.Properties, 3)
	assert.Equal(t, Property{Key: 2, Value: Value{Type: TypeFloat, Float: 0.5}}, obj.Properties[0])
	assert.Same(t, inner, obj.Properties[1].Value.Object)
	assert.Equal(t, "/x", obj.Properties[2].Value.Text)
}

func TestCommandKinds(t *testing.T) {
	assert.Equal(t, KindControlInputPort, ControlInputPort{}.Kind())
	assert.Equal(t, KindPatchParameter, PatchParameter{}.Kind())
	assert.Equal(t, KindMidiCCParameter, MidiCCParameter{}.Kind())
	assert.Equal(t, KindUnknown, Unknown{Type: "x"}.Kind())
	assert.Equal(t, KindUnknown, Incomplete{Type: TypePatchParameter}.Kind())

	assert.Equal(t, "midicc-parameter", KindMidiCCParameter.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}
