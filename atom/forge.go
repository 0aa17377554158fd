package atom

import (
	"errors"
	"math"

	"madigan/urid"
)

var ErrUnbalanced = errors.New("atom: forge frames unbalanced")

// Forge appends atoms to a growable buffer. Containers (objects, sequences)
// are opened, filled, then closed with Pop, which patches their size once
// the body is known.
//
//	f.Object(0, vocab.PatchSet)
//	f.Key(vocab.PatchProperty); f.URID(param)
//	f.Key(vocab.PatchValue);    f.String("0.8")
//	f.Pop()
type Forge struct {
	vocab  Vocabulary
	buf    []byte
	frames []int // offsets of open container headers
}

func NewForge(vocab Vocabulary) *Forge {
	return &Forge{vocab: vocab, buf: make([]byte, 0, 256)}
}

// Reset empties the forge for reuse.
func (f *Forge) Reset() {
	f.buf = f.buf[:0]
	f.frames = f.frames[:0]
}

// Bytes returns a copy of the forged atoms. It fails while a container is
// still open.
func (f *Forge) Bytes() ([]byte, error) {
	if len(f.frames) != 0 {
		return nil, ErrUnbalanced
	}
	out := make([]byte, len(f.buf))
	copy(out, f.buf)
	return out, nil
}

func (f *Forge) Int(v int32) {
	f.Raw(f.vocab.Int, le.AppendUint32(nil, uint32(v)))
}

func (f *Forge) Float(v float32) {
	f.Raw(f.vocab.Float, le.AppendUint32(nil, math.Float32bits(v)))
}

func (f *Forge) URID(v urid.URID) {
	f.Raw(f.vocab.URID, le.AppendUint32(nil, uint32(v)))
}

func (f *Forge) String(s string) {
	f.text(f.vocab.String, s)
}

func (f *Forge) Path(s string) {
	f.text(f.vocab.Path, s)
}

// Raw writes one atom of type typ with the given body.
func (f *Forge) Raw(typ urid.URID, body []byte) {
	f.header(typ, uint32(len(body)))
	f.buf = append(f.buf, body...)
	f.padTo8()
}

// Object opens an object container; close it with Pop.
func (f *Forge) Object(id, otype urid.URID) {
	f.open(f.vocab.Object)
	f.u32(uint32(id))
	f.u32(uint32(otype))
}

// Key writes a property header; the next atom written is its value.
func (f *Forge) Key(key urid.URID) {
	f.u32(uint32(key))
	f.u32(0)
}

// Sequence opens a sequence container; close it with Pop.
func (f *Forge) Sequence(unit urid.URID) {
	f.open(f.vocab.Sequence)
	f.u32(uint32(unit))
	f.u32(0)
}

// FrameTime writes an event timestamp; the next atom written is its body.
func (f *Forge) FrameTime(frames int64) {
	f.buf = le.AppendUint64(f.buf, uint64(frames))
}

// Pop closes the innermost open container.
func (f *Forge) Pop() error {
	if len(f.frames) == 0 {
		return ErrUnbalanced
	}
	off := f.frames[len(f.frames)-1]
	f.frames = f.frames[:len(f.frames)-1]
	le.PutUint32(f.buf[off:off+4], uint32(len(f.buf)-off-HeaderSize))
	f.padTo8()
	return nil
}

func (f *Forge) text(typ urid.URID, s string) {
	f.header(typ, uint32(len(s)+1))
	f.buf = append(f.buf, s...)
	f.buf = append(f.buf, 0)
	f.padTo8()
}

func (f *Forge) open(typ urid.URID) {
	f.frames = append(f.frames, len(f.buf))
	f.header(typ, 0)
}

func (f *Forge) header(typ urid.URID, size uint32) {
	f.u32(size)
	f.u32(uint32(typ))
}

func (f *Forge) u32(v uint32) {
	f.buf = le.AppendUint32(f.buf, v)
}

func (f *Forge) padTo8() {
	for len(f.buf)%8 != 0 {
		f.buf = append(f.buf, 0)
	}
}
