package codec

import (
	"fmt"
	"reflect"
	"sort"

	"go.dedis.ch/polybson/serde"
	"go.dedis.ch/polybson/serde/registry"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"golang.org/x/xerrors"
)

// listCodec is the codec of the slices and the arrays. The elements are
// written in order, each one with its own discriminator.
//
// - implements codec.Codec
type listCodec struct{}

// Encode implements codec.Codec.
func (listCodec) Encode(ctx *Context, vw bsonrw.ValueWriter, value interface{}) error {
	rv := reflect.ValueOf(value)

	return writeContainer(ctx, vw, rv.Type(), func(aw bsonrw.ArrayWriter) error {
		for i := 0; i < rv.Len(); i++ {
			ew, err := aw.WriteArrayElement()
			if err != nil {
				return xerrors.Errorf("failed to write element: %v", err)
			}

			err = ctx.encodeValue(ew, rv.Index(i))
			if err != nil {
				return xerrors.Errorf("failed to encode element #%d: %w", i, err)
			}
		}

		return nil
	})
}

// Decode implements codec.Codec. It returns a new instance of the type with the
// decoded elements in order.
func (listCodec) Decode(ctx *Context, vr bsonrw.ValueReader, t reflect.Type) (interface{}, error) {
	if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
		return nil, xerrors.Errorf("list of type '%s': %w", registry.KeyOf(t),
			serde.ErrCannotInstantiate)
	}

	var elements []reflect.Value

	err := readContainer(ctx, vr, func(ev bsonrw.ValueReader) error {
		value, err := ctx.Decode(ev)
		if err != nil {
			return xerrors.Errorf("failed to decode element #%d: %w", len(elements), err)
		}

		elem, err := assign(value, t.Elem())
		if err != nil {
			return err
		}

		elements = append(elements, elem)

		return nil
	})

	if err != nil {
		return nil, err
	}

	if t.Kind() == reflect.Array {
		if len(elements) > t.Len() {
			return nil, xerrors.Errorf("%d elements for '%s': %w", len(elements),
				registry.KeyOf(t), errShapeChanged)
		}

		out := reflect.New(t).Elem()
		for i, elem := range elements {
			out.Index(i).Set(elem)
		}

		return out.Interface(), nil
	}

	out := reflect.MakeSlice(t, 0, len(elements))
	out = reflect.Append(out, elements...)

	return out.Interface(), nil
}

// DiscriminatorCompatible implements codec.Codec. The list writes its own
// discriminator.
func (listCodec) DiscriminatorCompatible() bool {
	return true
}

// mapCodec is the codec of the maps. Each entry is written as a document with
// the key and the value, so that the key can be of any type.
//
// - implements codec.Codec
type mapCodec struct{}

// Encode implements codec.Codec. The entries are sorted by the text of their
// key so that the output is deterministic.
func (mapCodec) Encode(ctx *Context, vw bsonrw.ValueWriter, value interface{}) error {
	rv := reflect.ValueOf(value)

	keys := rv.MapKeys()
	texts := make(map[int]string, len(keys))
	for i, key := range keys {
		texts[i] = fmt.Sprint(key.Interface())
	}

	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(i, j int) bool {
		return texts[order[i]] < texts[order[j]]
	})

	return writeContainer(ctx, vw, rv.Type(), func(aw bsonrw.ArrayWriter) error {
		for _, i := range order {
			key := keys[i]

			ew, err := aw.WriteArrayElement()
			if err != nil {
				return xerrors.Errorf("failed to write entry: %v", err)
			}

			err = writeEntry(ctx, ew, key.Interface(), rv.MapIndex(key).Interface())
			if err != nil {
				return xerrors.Errorf("failed to encode entry '%s': %w", texts[i], err)
			}
		}

		return nil
	})
}

// Decode implements codec.Codec.
func (mapCodec) Decode(ctx *Context, vr bsonrw.ValueReader, t reflect.Type) (interface{}, error) {
	if t.Kind() != reflect.Map {
		return nil, xerrors.Errorf("map of type '%s': %w", registry.KeyOf(t),
			serde.ErrCannotInstantiate)
	}

	out := reflect.MakeMap(t)

	err := readContainer(ctx, vr, func(ev bsonrw.ValueReader) error {
		key, value, err := readEntry(ctx, ev)
		if err != nil {
			return xerrors.Errorf("failed to decode entry #%d: %w", out.Len(), err)
		}

		k, err := assign(key, t.Key())
		if err != nil {
			return err
		}

		if k.Kind() != reflect.Interface && !k.Type().Comparable() {
			return xerrors.Errorf("key of type '%s': %w", registry.KeyOf(k.Type()),
				errShapeChanged)
		}

		v, err := assign(value, t.Elem())
		if err != nil {
			return err
		}

		out.SetMapIndex(k, v)

		return nil
	})

	if err != nil {
		return nil, err
	}

	return out.Interface(), nil
}

// DiscriminatorCompatible implements codec.Codec. The map writes its own
// discriminator.
func (mapCodec) DiscriminatorCompatible() bool {
	return true
}

// writeContainer writes the document of a container with its discriminator,
// the elements written by the function and the version stamp when the
// container is the outermost value.
func writeContainer(ctx *Context, vw bsonrw.ValueWriter, t reflect.Type,
	fn func(bsonrw.ArrayWriter) error) error {

	dw, err := vw.WriteDocument()
	if err != nil {
		return xerrors.Errorf("failed to write container: %v", err)
	}

	err = writeDiscriminator(dw, registry.KeyOf(t))
	if err != nil {
		return err
	}

	ew, err := dw.WriteDocumentElement(serde.ValueField)
	if err != nil {
		return xerrors.Errorf("failed to write elements: %v", err)
	}

	aw, err := ew.WriteArray()
	if err != nil {
		return xerrors.Errorf("failed to write elements: %v", err)
	}

	err = fn(aw)
	if err != nil {
		return err
	}

	err = aw.WriteArrayEnd()
	if err != nil {
		return xerrors.Errorf("failed to write elements: %v", err)
	}

	if ctx.Outermost() && ctx.version != "" {
		ew, err = dw.WriteDocumentElement(serde.VersionField)
		if err != nil {
			return xerrors.Errorf("failed to write version: %v", err)
		}

		err = ew.WriteString(ctx.version)
		if err != nil {
			return xerrors.Errorf("failed to write version: %v", err)
		}
	}

	return dw.WriteDocumentEnd()
}

// readContainer reads the document of a container and calls the function for
// each element. The discriminator and the version stamp are skipped.
func readContainer(ctx *Context, vr bsonrw.ValueReader, fn func(bsonrw.ValueReader) error) error {
	dr, err := vr.ReadDocument()
	if err != nil {
		return xerrors.Errorf("failed to read container: %v", err)
	}

	for {
		name, fr, err := dr.ReadElement()
		if err == bsonrw.ErrEOD {
			return nil
		}

		if err != nil {
			return xerrors.Errorf("failed to read container: %v", err)
		}

		switch {
		case name == serde.ValueField && fr.Type() == bsontype.Array:
			err = readArray(fr, fn)
		case name == serde.ValueField:
			return xerrors.Errorf("elements with wire type %v: %w", fr.Type(),
				serde.ErrUnsupportedWireType)
		case name == serde.DiscriminatorField || name == serde.VersionField:
			err = fr.Skip()
		default:
			return xerrors.Errorf("unknown field '%s': %w", name, errShapeChanged)
		}

		if err != nil {
			return err
		}
	}
}

func readArray(vr bsonrw.ValueReader, fn func(bsonrw.ValueReader) error) error {
	ar, err := vr.ReadArray()
	if err != nil {
		return xerrors.Errorf("failed to read array: %v", err)
	}

	for {
		ev, err := ar.ReadValue()
		if err == bsonrw.ErrEOA {
			return nil
		}

		if err != nil {
			return xerrors.Errorf("failed to read array: %v", err)
		}

		err = fn(ev)
		if err != nil {
			return err
		}
	}
}

func writeEntry(ctx *Context, vw bsonrw.ValueWriter, key, value interface{}) error {
	dw, err := vw.WriteDocument()
	if err != nil {
		return xerrors.Errorf("failed to write entry: %v", err)
	}

	kw, err := dw.WriteDocumentElement(serde.KeyField)
	if err != nil {
		return xerrors.Errorf("failed to write key: %v", err)
	}

	err = ctx.Encode(kw, key)
	if err != nil {
		return xerrors.Errorf("failed to encode key: %w", err)
	}

	ew, err := dw.WriteDocumentElement(serde.EntryValueField)
	if err != nil {
		return xerrors.Errorf("failed to write value: %v", err)
	}

	err = ctx.Encode(ew, value)
	if err != nil {
		return xerrors.Errorf("failed to encode value: %w", err)
	}

	return dw.WriteDocumentEnd()
}

func readEntry(ctx *Context, vr bsonrw.ValueReader) (interface{}, interface{}, error) {
	if vr.Type() != bsontype.EmbeddedDocument {
		return nil, nil, xerrors.Errorf("entry with wire type %v: %w", vr.Type(),
			serde.ErrUnsupportedWireType)
	}

	dr, err := vr.ReadDocument()
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to read entry: %v", err)
	}

	var key, value interface{}

	for {
		name, fr, err := dr.ReadElement()
		if err == bsonrw.ErrEOD {
			return key, value, nil
		}

		if err != nil {
			return nil, nil, xerrors.Errorf("failed to read entry: %v", err)
		}

		switch name {
		case serde.KeyField:
			key, err = ctx.Decode(fr)
		case serde.EntryValueField:
			value, err = ctx.Decode(fr)
		default:
			err = fr.Skip()
		}

		if err != nil {
			return nil, nil, xerrors.Errorf("failed to decode '%s': %w", name, err)
		}
	}
}

// decodeDynamicArray is the default array handler. It returns a list of
// values where each element is decoded with its own type.
func decodeDynamicArray(ctx *Context, vr bsonrw.ValueReader) (interface{}, error) {
	values := []interface{}{}

	err := readArray(vr, func(ev bsonrw.ValueReader) error {
		value, err := ctx.Decode(ev)
		if err != nil {
			return xerrors.Errorf("failed to decode element #%d: %w", len(values), err)
		}

		values = append(values, value)

		return nil
	})

	if err != nil {
		return nil, err
	}

	return values, nil
}

// assign returns the decoded value as a value of the type. A pointer is added
// or removed when the decoded value is of the element type or of the pointer
// type respectively. It returns an error if the value cannot be assigned, which
// means that the shape of the type has changed since the encoding.
func assign(value interface{}, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(value)

	switch {
	case rv.Type().AssignableTo(t):
		return rv, nil
	case t.Kind() == reflect.Ptr && rv.Type().AssignableTo(t.Elem()):
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(rv)

		return ptr, nil
	case rv.Kind() == reflect.Ptr && rv.Type().Elem().AssignableTo(t):
		if rv.IsNil() {
			return reflect.Zero(t), nil
		}

		return rv.Elem(), nil
	}

	return reflect.Value{}, xerrors.Errorf("'%s' is not assignable to '%s': %w",
		registry.KeyOf(rv.Type()), registry.KeyOf(t), errShapeChanged)
}
