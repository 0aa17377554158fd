package atom

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"madigan/urid"
)

func newVocab(t *testing.T) (*urid.Map, Vocabulary) {
	t.Helper()
	m := urid.New()
	return m, NewVocabulary(m)
}

func TestForgePatchSetLayout(t *testing.T) {
	m, v := newVocab(t)
	gain := m.Map("urn:example:gain")

	f := NewForge(v)
	f.Object(0, v.PatchSet)
	f.Key(v.PatchProperty)
	f.URID(gain)
	f.Key(v.PatchValue)
	f.String("0.8")
	require.NoError(t, f.Pop())
	buf, err := f.Bytes()
	require.NoError(t, err)

	// header 8 + object body 8 + prop(8 + urid atom 8+4 pad 4) + prop(8 + string atom 8+4)
	require.Len(t, buf, 8+8+24+24)
	assert.Equal(t, uint32(len(buf)-HeaderSize), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, uint32(v.Object), binary.LittleEndian.Uint32(buf[4:8]))

	a, err := Parse(buf)
	require.NoError(t, err)
	require.True(t, v.IsObject(a.Type))
	obj, err := a.Object()
	require.NoError(t, err)
	assert.Equal(t, v.PatchSet, obj.OType)
	require.Len(t, obj.Properties, 2)

	assert.Equal(t, v.PatchProperty, obj.Properties[0].Key)
	assert.Equal(t, v.URID, obj.Properties[0].Value.Type)
	id, err := obj.Properties[0].Value.URIDValue()
	require.NoError(t, err)
	assert.Equal(t, gain, id)

	assert.Equal(t, v.PatchValue, obj.Properties[1].Key)
	assert.Equal(t, v.String, obj.Properties[1].Value.Type)
	assert.Equal(t, "0.8", obj.Properties[1].Value.Text())
}

func TestForgeMidiSequence(t *testing.T) {
	_, v := newVocab(t)
	f := NewForge(v)
	f.Sequence(0)
	f.FrameTime(0)
	f.Raw(v.MidiEvent, []byte{0xB0, 74, 100})
	require.NoError(t, f.Pop())
	buf, err := f.Bytes()
	require.NoError(t, err)

	a, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, v.Sequence, a.Type)
	unit, events, err := a.Sequence()
	require.NoError(t, err)
	assert.Zero(t, unit)
	require.Len(t, events, 1)
	assert.Zero(t, events[0].Frames)
	assert.Equal(t, v.MidiEvent, events[0].Body.Type)
	assert.Equal(t, []byte{0xB0, 74, 100}, events[0].Body.Body)
}

func TestForgeNestedObjectAndScalars(t *testing.T) {
	m, v := newVocab(t)
	outer, inner := m.Map("urn:test:outer"), m.Map("urn:test:inner")
	kA, kB, kC := m.Map("urn:test:a"), m.Map("urn:test:b"), m.Map("urn:test:c")

	f := NewForge(v)
	f.Object(0, outer)
	f.Key(kA)
	f.Int(-3)
	f.Key(kB)
	f.Object(0, inner)
	f.Key(kC)
	f.Float(1.5)
	require.NoError(t, f.Pop())
	f.Key(kC)
	f.Path("/tmp/x.sf2")
	require.NoError(t, f.Pop())
	buf, err := f.Bytes()
	require.NoError(t, err)

	a, err := Parse(buf)
	require.NoError(t, err)
	obj, err := a.Object()
	require.NoError(t, err)
	require.Len(t, obj.Properties, 3)

	n, err := obj.Properties[0].Value.Int()
	require.NoError(t, err)
	assert.Equal(t, int32(-3), n)

	nested, err := obj.Properties[1].Value.Object()
	require.NoError(t, err)
	assert.Equal(t, inner, nested.OType)
	require.Len(t, nested.Properties, 1)
	fl, err := nested.Properties[0].Value.Float()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), fl)

	assert.Equal(t, v.Path, obj.Properties[2].Value.Type)
	assert.Equal(t, "/tmp/x.sf2", obj.Properties[2].Value.Text())
}

func TestParseTruncated(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3})
	assert.True(t, errors.Is(err, ErrTruncated))

	buf := make([]byte, HeaderSize+2)
	binary.LittleEndian.PutUint32(buf[0:4], 16)
	_, err = Parse(buf)
	assert.True(t, errors.Is(err, ErrTruncated))
}

func TestUnbalancedForge(t *testing.T) {
	_, v := newVocab(t)
	f := NewForge(v)
	assert.True(t, errors.Is(f.Pop(), ErrUnbalanced))

	f.Object(0, v.PatchGet)
	_, err := f.Bytes()
	assert.True(t, errors.Is(err, ErrUnbalanced))
}
