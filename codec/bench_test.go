package codec

import (
	"testing"

	"madigan/atom"
	"madigan/urid"
)

func BenchmarkFlattenAtom(b *testing.B) {
	m := urid.New()
	v := atom.NewVocabulary(m)
	f := atom.NewForge(v)
	f.Object(0, v.PatchSet)
	f.Key(v.PatchProperty)
	f.URID(m.Map("urn:bench:gain"))
	f.Key(v.PatchValue)
	f.Float(0.75)
	if err := f.Pop(); err != nil {
		b.Fatal(err)
	}
	buf, err := f.Bytes()
	if err != nil {
		b.Fatal(err)
	}
	c := NewFlat("4d2-0", m, DefaultMaxMessage)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := c.FlattenAtom(buf); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParseCommand(b *testing.B) {
	raw := "type|midicc-parameter||key|74||value|100"
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := ParseCommand(raw, Limits{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParseCommandParallel(b *testing.B) {
	raw := "type|patch-parameter||key|urn:bench:gain||value|0.5"
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := ParseCommand(raw, Limits{}); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
