package codec

import (
	"reflect"

	"go.dedis.ch/polybson/serde"
	"go.dedis.ch/polybson/serde/registry"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"golang.org/x/xerrors"
)

// scalarCodec is the codec of the scalars that are wrapped with their
// discriminator, which are the scalars without a native wire type and the
// named scalar types like enumerations.
//
// - implements codec.Codec
type scalarCodec struct{}

// Encode implements codec.Codec. It writes the underlying value with the
// narrowest wire type that can hold any value of the kind.
func (scalarCodec) Encode(ctx *Context, vw bsonrw.ValueWriter, value interface{}) error {
	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Bool:
		return vw.WriteBoolean(rv.Bool())
	case reflect.String:
		return vw.WriteString(rv.String())
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return vw.WriteInt32(int32(rv.Int()))
	case reflect.Int, reflect.Int64:
		return vw.WriteInt64(rv.Int())
	case reflect.Uint8, reflect.Uint16:
		return vw.WriteInt32(int32(rv.Uint()))
	case reflect.Uint, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return vw.WriteInt64(int64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return vw.WriteDouble(rv.Float())
	}

	return xerrors.Errorf("type '%s': %w", registry.KeyOf(rv.Type()), serde.ErrNoCodec)
}

// Decode implements codec.Codec. The wire type must be the one the kind is
// written with, as no conversion happens between wire types.
func (scalarCodec) Decode(ctx *Context, vr bsonrw.ValueReader, t reflect.Type) (interface{}, error) {
	if t == nil {
		return nil, xerrors.Errorf("scalar without type: %w", serde.ErrCannotInstantiate)
	}

	expected, found := scalarWireType(t.Kind())
	if !found {
		return nil, xerrors.Errorf("type '%s': %w", registry.KeyOf(t), serde.ErrCannotInstantiate)
	}

	if vr.Type() != expected {
		return nil, xerrors.Errorf("type '%s' with wire type %v: %w",
			registry.KeyOf(t), vr.Type(), serde.ErrUnsupportedWireType)
	}

	out := reflect.New(t).Elem()

	switch expected {
	case bsontype.Boolean:
		v, err := vr.ReadBoolean()
		if err != nil {
			return nil, err
		}

		out.SetBool(v)
	case bsontype.String:
		v, err := vr.ReadString()
		if err != nil {
			return nil, err
		}

		out.SetString(v)
	case bsontype.Int32:
		v, err := vr.ReadInt32()
		if err != nil {
			return nil, err
		}

		setInteger(out, int64(v))
	case bsontype.Int64:
		v, err := vr.ReadInt64()
		if err != nil {
			return nil, err
		}

		setInteger(out, v)
	case bsontype.Double:
		v, err := vr.ReadDouble()
		if err != nil {
			return nil, err
		}

		out.SetFloat(v)
	}

	return out.Interface(), nil
}

// DiscriminatorCompatible implements codec.Codec. The value is wrapped.
func (scalarCodec) DiscriminatorCompatible() bool {
	return false
}

func scalarWireType(kind reflect.Kind) (bsontype.Type, bool) {
	switch kind {
	case reflect.Bool:
		return bsontype.Boolean, true
	case reflect.String:
		return bsontype.String, true
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return bsontype.Int32, true
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr:
		return bsontype.Int64, true
	case reflect.Float32, reflect.Float64:
		return bsontype.Double, true
	}

	return 0, false
}

func setInteger(out reflect.Value, v int64) {
	switch out.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64, reflect.Uintptr:

		out.SetUint(uint64(v))
	default:
		out.SetInt(v)
	}
}
