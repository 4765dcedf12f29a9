package codec

import (
	"image/color"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.dedis.ch/polybson/serde"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/xerrors"
)

// wrappedScalars are the scalar types without a native wire type. They are
// written with the narrowest wire type that can hold them and wrapped with
// their discriminator.
var wrappedScalars = []reflect.Type{
	reflect.TypeOf(int(0)),
	reflect.TypeOf(int8(0)),
	reflect.TypeOf(int16(0)),
	reflect.TypeOf(uint(0)),
	reflect.TypeOf(uint8(0)),
	reflect.TypeOf(uint16(0)),
	reflect.TypeOf(uint32(0)),
	reflect.TypeOf(uint64(0)),
	reflect.TypeOf(uintptr(0)),
	reflect.TypeOf(float32(0)),
}

// isBare returns true if the value is written with its native wire type and
// without discriminator.
func isBare(value interface{}) bool {
	switch value.(type) {
	case bool, int32, int64, float64, string, time.Time, []byte, uuid.UUID,
		primitive.Decimal128, primitive.ObjectID:

		return true
	}

	return false
}

// primitiveCodec is the codec of the bare scalars. The wire type alone
// determines the type of a decoded value.
//
// - implements codec.Codec
type primitiveCodec struct{}

// Encode implements codec.Codec. It writes the value with its native wire
// type.
func (primitiveCodec) Encode(ctx *Context, vw bsonrw.ValueWriter, value interface{}) error {
	switch v := value.(type) {
	case nil:
		return vw.WriteNull()
	case bool:
		return vw.WriteBoolean(v)
	case int32:
		return vw.WriteInt32(v)
	case int64:
		return vw.WriteInt64(v)
	case float64:
		return vw.WriteDouble(v)
	case string:
		return vw.WriteString(v)
	case time.Time:
		return vw.WriteDateTime(v.UnixMilli())
	case []byte:
		return vw.WriteBinary(v)
	case uuid.UUID:
		return vw.WriteBinaryWithSubtype(v[:], bsontype.BinaryUUID)
	case primitive.Decimal128:
		return vw.WriteDecimal128(v)
	case primitive.ObjectID:
		return vw.WriteObjectID(v)
	}

	return xerrors.Errorf("type %T: %w", value, serde.ErrNoCodec)
}

// Decode implements codec.Codec. It reads the next scalar and returns the type
// that corresponds to the wire type. A binary of the UUID subtypes is decoded
// as a UUID.
func (primitiveCodec) Decode(ctx *Context, vr bsonrw.ValueReader, t reflect.Type) (interface{}, error) {
	switch vr.Type() {
	case bsontype.Null:
		return nil, vr.ReadNull()
	case bsontype.Boolean:
		return vr.ReadBoolean()
	case bsontype.Int32:
		return vr.ReadInt32()
	case bsontype.Int64:
		return vr.ReadInt64()
	case bsontype.Double:
		return vr.ReadDouble()
	case bsontype.String:
		return vr.ReadString()
	case bsontype.DateTime:
		ms, err := vr.ReadDateTime()
		if err != nil {
			return nil, err
		}

		return time.UnixMilli(ms).UTC(), nil
	case bsontype.Binary:
		data, subtype, err := vr.ReadBinary()
		if err != nil {
			return nil, err
		}

		isUUID := subtype == bsontype.BinaryUUID || subtype == bsontype.BinaryUUIDOld
		if isUUID && len(data) == 16 {
			return uuid.FromBytes(data)
		}

		buffer := make([]byte, len(data))
		copy(buffer, data)

		return buffer, nil
	case bsontype.Decimal128:
		return vr.ReadDecimal128()
	case bsontype.ObjectID:
		return vr.ReadObjectID()
	}

	return nil, xerrors.Errorf("type %v: %w", vr.Type(), serde.ErrUnsupportedWireType)
}

// DiscriminatorCompatible implements codec.Codec. The bare scalars are never
// wrapped.
func (primitiveCodec) DiscriminatorCompatible() bool {
	return true
}

// colorCodec is the codec of the 4-channel colors.
//
// - implements codec.Codec
type colorCodec struct{}

// Encode implements codec.Codec. It writes the channels in a document.
func (colorCodec) Encode(ctx *Context, vw bsonrw.ValueWriter, value interface{}) error {
	var channels [4]uint8

	switch c := value.(type) {
	case color.RGBA:
		channels = [4]uint8{c.R, c.G, c.B, c.A}
	case color.NRGBA:
		channels = [4]uint8{c.R, c.G, c.B, c.A}
	default:
		return xerrors.Errorf("type %T: %w", value, serde.ErrNoCodec)
	}

	dw, err := vw.WriteDocument()
	if err != nil {
		return xerrors.Errorf("failed to write color: %v", err)
	}

	for i, name := range colorChannels {
		cw, err := dw.WriteDocumentElement(name)
		if err != nil {
			return xerrors.Errorf("failed to write channel: %v", err)
		}

		err = cw.WriteInt32(int32(channels[i]))
		if err != nil {
			return xerrors.Errorf("failed to write channel: %v", err)
		}
	}

	return dw.WriteDocumentEnd()
}

// Decode implements codec.Codec. It reads the channels and returns a color of
// the given type.
func (colorCodec) Decode(ctx *Context, vr bsonrw.ValueReader, t reflect.Type) (interface{}, error) {
	dr, err := vr.ReadDocument()
	if err != nil {
		return nil, xerrors.Errorf("failed to read color: %v", err)
	}

	var channels [4]uint8

	for {
		name, cr, err := dr.ReadElement()
		if err == bsonrw.ErrEOD {
			break
		}

		if err != nil {
			return nil, xerrors.Errorf("failed to read color: %v", err)
		}

		idx := indexOf(colorChannels, name)
		if idx < 0 {
			err = cr.Skip()
			if err != nil {
				return nil, xerrors.Errorf("failed to skip: %v", err)
			}

			continue
		}

		value, err := cr.ReadInt32()
		if err != nil {
			return nil, xerrors.Errorf("failed to read channel '%s': %w", name,
				serde.ErrUnsupportedWireType)
		}

		channels[idx] = uint8(value)
	}

	switch t {
	case reflect.TypeOf(color.NRGBA{}):
		return color.NRGBA{R: channels[0], G: channels[1], B: channels[2], A: channels[3]}, nil
	default:
		return color.RGBA{R: channels[0], G: channels[1], B: channels[2], A: channels[3]}, nil
	}
}

// DiscriminatorCompatible implements codec.Codec. The color is wrapped.
func (colorCodec) DiscriminatorCompatible() bool {
	return false
}

var colorChannels = []string{"R", "G", "B", "A"}

func indexOf(list []string, s string) int {
	for i, e := range list {
		if e == s {
			return i
		}
	}

	return -1
}
