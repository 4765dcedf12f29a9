package codec

import (
	"reflect"
	"strings"

	"go.dedis.ch/polybson/serde"
	"go.dedis.ch/polybson/serde/registry"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"golang.org/x/xerrors"
)

// errShapeChanged is returned by a codec when the document does not match the
// current definition of its type. Such a document is routed to the fallback.
var errShapeChanged = xerrors.New("shape of the type has changed")

// classCodec is the codec of the structures and the pointers to structures.
// The exported fields are written next to the discriminator, each one with its
// own type. The name of a field can be changed with a bson tag, and a field is
// ignored with the "-" tag.
//
// - implements codec.Codec
type classCodec struct{}

// Encode implements codec.Codec.
func (classCodec) Encode(ctx *Context, vw bsonrw.ValueWriter, value interface{}) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Struct {
		return xerrors.Errorf("type %T: %w", value, serde.ErrNoCodec)
	}

	dw, err := vw.WriteDocument()
	if err != nil {
		return xerrors.Errorf("failed to write object: %v", err)
	}

	err = writeDiscriminator(dw, registry.KeyOf(reflect.TypeOf(value)))
	if err != nil {
		return err
	}

	for _, f := range fieldsOf(rv.Type()) {
		fv := rv.Field(f.index)
		if f.omitEmpty && fv.IsZero() {
			continue
		}

		ew, err := dw.WriteDocumentElement(f.name)
		if err != nil {
			return xerrors.Errorf("failed to write field: %v", err)
		}

		err = ctx.encodeValue(ew, fv)
		if err != nil {
			return xerrors.Errorf("failed to encode field '%s': %w", f.name, err)
		}
	}

	return dw.WriteDocumentEnd()
}

// Decode implements codec.Codec. A field of the document that the structure
// does not have, or a value that cannot be assigned to its field, makes the
// decoding fail with a changed shape. A missing field keeps its zero value.
func (classCodec) Decode(ctx *Context, vr bsonrw.ValueReader, t reflect.Type) (interface{}, error) {
	st := t
	if st.Kind() == reflect.Ptr {
		st = st.Elem()
	}

	if st.Kind() != reflect.Struct {
		return nil, xerrors.Errorf("type '%s': %w", registry.KeyOf(t), serde.ErrCannotInstantiate)
	}

	fields := make(map[string]field)
	for _, f := range fieldsOf(st) {
		fields[f.name] = f
	}

	out := reflect.New(st).Elem()

	dr, err := vr.ReadDocument()
	if err != nil {
		return nil, xerrors.Errorf("failed to read object: %v", err)
	}

	for {
		name, fr, err := dr.ReadElement()
		if err == bsonrw.ErrEOD {
			break
		}

		if err != nil {
			return nil, xerrors.Errorf("failed to read object: %v", err)
		}

		if name == serde.DiscriminatorField {
			err = fr.Skip()
			if err != nil {
				return nil, xerrors.Errorf("failed to skip: %v", err)
			}

			continue
		}

		f, found := fields[name]
		if !found {
			return nil, xerrors.Errorf("unknown field '%s': %w", name, errShapeChanged)
		}

		value, err := ctx.Decode(fr)
		if err != nil {
			return nil, xerrors.Errorf("failed to decode field '%s': %w", name, err)
		}

		fv, err := assign(value, f.typ)
		if err != nil {
			return nil, xerrors.Errorf("field '%s': %w", name, err)
		}

		out.Field(f.index).Set(fv)
	}

	if t.Kind() == reflect.Ptr {
		return out.Addr().Interface(), nil
	}

	return out.Interface(), nil
}

// DiscriminatorCompatible implements codec.Codec. The object writes its own
// discriminator.
func (classCodec) DiscriminatorCompatible() bool {
	return true
}

type field struct {
	index     int
	name      string
	typ       reflect.Type
	omitEmpty bool
}

// fieldsOf returns the serialized fields of the structure in declaration
// order.
func fieldsOf(t reflect.Type) []field {
	var fields []field

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}

		f := field{
			index: i,
			name:  sf.Name,
			typ:   sf.Type,
		}

		tag, found := sf.Tag.Lookup("bson")
		if found {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}

			if parts[0] != "" {
				f.name = parts[0]
			}

			for _, opt := range parts[1:] {
				f.omitEmpty = f.omitEmpty || opt == "omitempty"
			}
		}

		if f.name == serde.DiscriminatorField {
			continue
		}

		fields = append(fields, f)
	}

	return fields
}
