package codec

import (
	"fmt"

	"madigan/atom"
	"madigan/message"
	"madigan/urid"
)

// AtomCodec converts typed objects to and from host atom bytes.
type AtomCodec struct {
	mapper urid.Mapper
	vocab  atom.Vocabulary
}

func NewAtom(m urid.Mapper) *AtomCodec {
	return &AtomCodec{mapper: m, vocab: atom.NewVocabulary(m)}
}

func (c *AtomCodec) Type() CodecType { return CodecTypeAtom }

func (c *AtomCodec) Vocabulary() atom.Vocabulary { return c.vocab }

// Encode forges obj as an atom:Object.
func (c *AtomCodec) Encode(obj *message.Object) ([]byte, error) {
	if obj == nil {
		return nil, fmt.Errorf("%w: nil object", ErrNotObject)
	}
	f := atom.NewForge(c.vocab)
	if err := c.forgeObject(f, obj, nil); err != nil {
		return nil, err
	}
	return f.Bytes()
}

func (c *AtomCodec) forgeObject(f *atom.Forge, obj *message.Object, path []string) error {
	f.Object(0, obj.Kind)
	for _, p := range obj.Properties {
		at := childPath(path, c.name(p.Key))
		f.Key(p.Key)
		switch v := p.Value; v.Type {
		case message.TypeInt:
			f.Int(v.Int)
		case message.TypeFloat:
			f.Float(v.Float)
		case message.TypeString:
			f.String(v.Text)
		case message.TypePath:
			f.Path(v.Text)
		case message.TypeURI:
			f.URID(v.URI)
		case message.TypeObject:
			if v.Object == nil {
				return &EncodeError{Path: at, Type: "object", Err: ErrNotObject}
			}
			if err := c.forgeObject(f, v.Object, at); err != nil {
				return err
			}
		default:
			return &EncodeError{Path: at, Type: fmt.Sprintf("type %d", v.Type), Err: ErrUnsupportedType}
		}
	}
	return f.Pop()
}

// Decode reads an atom:Object (or atom:Blank) into a typed object. A
// property of any other atom type fails with an EncodeError naming it.
func (c *AtomCodec) Decode(data []byte) (*message.Object, error) {
	a, err := atom.Parse(data)
	if err != nil {
		return nil, err
	}
	if !c.vocab.IsObject(a.Type) {
		return nil, fmt.Errorf("%w: atom type %s", ErrNotObject, c.name(a.Type))
	}
	return c.decodeObject(a, nil)
}

func (c *AtomCodec) decodeObject(a atom.Atom, path []string) (*message.Object, error) {
	body, err := a.Object()
	if err != nil {
		return nil, err
	}
	obj := &message.Object{Kind: body.OType}
	for _, p := range body.Properties {
		at := childPath(path, c.name(p.Key))
		v, err := c.decodeValue(p.Value, at)
		if err != nil {
			return nil, err
		}
		obj.Add(p.Key, v)
	}
	return obj, nil
}

func (c *AtomCodec) decodeValue(a atom.Atom, at []string) (message.Value, error) {
	wrap := func(err error) error {
		return &EncodeError{Path: at, Type: c.name(a.Type), Err: err}
	}
	switch {
	case a.Type == c.vocab.Int:
		n, err := a.Int()
		if err != nil {
			return message.Value{}, wrap(err)
		}
		return message.IntValue(n), nil
	case a.Type == c.vocab.Float:
		f, err := a.Float()
		if err != nil {
			return message.Value{}, wrap(err)
		}
		return message.FloatValue(f), nil
	case a.Type == c.vocab.String:
		return message.StringValue(a.Text()), nil
	case a.Type == c.vocab.Path:
		return message.PathValue(a.Text()), nil
	case a.Type == c.vocab.URID:
		id, err := a.URIDValue()
		if err != nil {
			return message.Value{}, wrap(err)
		}
		return message.URIValue(id), nil
	case c.vocab.IsObject(a.Type):
		nested, err := c.decodeObject(a, at)
		if err != nil {
			return message.Value{}, err
		}
		return message.ObjectValue(nested), nil
	}
	return message.Value{}, wrap(ErrUnsupportedType)
}

func (c *AtomCodec) name(id urid.URID) string {
	if name, ok := c.mapper.Unmap(id); ok {
		return name
	}
	return unmappedName(id)
}
