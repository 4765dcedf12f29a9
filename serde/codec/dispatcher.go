package codec

import (
	"reflect"

	"go.dedis.ch/polybson/serde"
	"go.dedis.ch/polybson/serde/object"
	"go.dedis.ch/polybson/serde/registry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"golang.org/x/xerrors"
)

// Encode writes a value of any type. Nil is written as a null, the bare
// scalars are written as they are, and any other value is tagged with its
// discriminator. A pointer to anything else than a structure is written as the
// value it points to.
func (ctx *Context) Encode(vw bsonrw.ValueWriter, value interface{}) error {
	if isNil(value) {
		return vw.WriteNull()
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr && rv.Elem().Kind() != reflect.Struct && ctx.codecFor(rv.Type()) == nil {
		return ctx.Encode(vw, rv.Elem().Interface())
	}

	ctx.depth++
	defer func() { ctx.depth-- }()

	switch v := value.(type) {
	case struct{}:
		return writeEmptyDocument(vw)
	case *object.CustomObject:
		return dynamicCodec{}.Encode(ctx, vw, v)
	}

	if isBare(value) {
		return primitiveCodec{}.Encode(ctx, vw, value)
	}

	t := reflect.TypeOf(value)

	c := ctx.codecFor(t)
	if c == nil {
		return xerrors.Errorf("type '%s': %w", registry.KeyOf(t), serde.ErrNoCodec)
	}

	if c.DiscriminatorCompatible() {
		return c.Encode(ctx, vw, value)
	}

	dw, err := vw.WriteDocument()
	if err != nil {
		return xerrors.Errorf("failed to write wrapper: %v", err)
	}

	err = writeDiscriminator(dw, registry.KeyOf(t))
	if err != nil {
		return err
	}

	ew, err := dw.WriteDocumentElement(serde.ValueField)
	if err != nil {
		return xerrors.Errorf("failed to write wrapper: %v", err)
	}

	err = c.Encode(ctx, ew, value)
	if err != nil {
		return xerrors.Errorf("failed to encode '%s': %w", registry.KeyOf(t), err)
	}

	return dw.WriteDocumentEnd()
}

// encodeValue writes the value of a field or of an element. A nil type
// reference is written as a type without name since the static type is known.
func (ctx *Context) encodeValue(vw bsonrw.ValueWriter, rv reflect.Value) error {
	if rv.Type() == registry.TypeType {
		return typeCodec{}.Encode(ctx, vw, rv.Interface())
	}

	return ctx.Encode(vw, rv.Interface())
}

// Decode reads the next value of any type. The wire type of the value drives
// the decoding: a document is the polymorphic case where the discriminator is
// read before the payload.
func (ctx *Context) Decode(vr bsonrw.ValueReader) (interface{}, error) {
	ctx.depth++
	defer func() { ctx.depth-- }()

	switch vr.Type() {
	case bsontype.Array:
		return ctx.arrays(ctx, vr)
	case bsontype.Binary, bsontype.Boolean, bsontype.DateTime,
		bsontype.Decimal128, bsontype.Double, bsontype.Int32, bsontype.Int64,
		bsontype.Null, bsontype.ObjectID, bsontype.String:

		return primitiveCodec{}.Decode(ctx, vr, nil)
	case bsontype.EmbeddedDocument:
		raw, ok := rawDocument(vr)
		if ok {
			return ctx.decodeDocument(raw)
		}

		raw, err := bsonrw.Copier{}.CopyDocumentToBytes(vr)
		if err != nil {
			return nil, xerrors.Errorf("failed to read document: %v", err)
		}

		return ctx.decodeDocument(raw)
	default:
		return nil, xerrors.Errorf("type %v: %w", vr.Type(), serde.ErrUnsupportedWireType)
	}
}

// origin is a document as it was read, before any migration.
type origin struct {
	raw bson.Raw
	key string
}

// decodeDocument resolves the discriminator of the document and delegates to
// the codec of the type.
func (ctx *Context) decodeDocument(raw bson.Raw) (interface{}, error) {
	key, found := discriminatorOf(raw)
	if !found {
		key = registry.AnyKey
	}

	return ctx.decodeAs(raw, key, origin{raw: raw, key: key})
}

// decodeAs decodes the document of the discriminator. When the document
// cannot be decoded, the fallback starts again from the origin.
func (ctx *Context) decodeAs(raw bson.Raw, key string, from origin) (interface{}, error) {
	t, found := ctx.registry.Resolve(key)
	if !found {
		return ctx.fallback(raw, key, from)
	}

	if t == registry.AnyType {
		if !ctx.dynamic {
			return struct{}{}, nil
		}

		return dynamicCodec{}.Decode(ctx, documentReader(raw), t)
	}

	c := ctx.codecFor(t)
	if c == nil {
		return ctx.fallback(raw, key, from)
	}

	if !c.DiscriminatorCompatible() {
		wrapped, err := raw.LookupErr(serde.ValueField)
		if err != nil {
			return nil, xerrors.Errorf("wrapper of '%s' has no value: %v", key, err)
		}

		value, err := c.Decode(ctx, newRawReader(wrapped), t)
		if err != nil {
			return nil, xerrors.Errorf("failed to decode '%s': %w", key, err)
		}

		return value, nil
	}

	value, err := c.Decode(ctx, documentReader(raw), t)
	if xerrors.Is(err, errShapeChanged) {
		return ctx.fallback(raw, key, from)
	}

	if err != nil {
		return nil, xerrors.Errorf("failed to decode '%s': %w", key, err)
	}

	return value, nil
}

// discriminatorOf returns the discriminator of the document if it has one.
func discriminatorOf(raw bson.Raw) (string, bool) {
	value, err := raw.LookupErr(serde.DiscriminatorField)
	if err != nil {
		return "", false
	}

	return value.StringValueOK()
}

func writeDiscriminator(dw bsonrw.DocumentWriter, key string) error {
	vw, err := dw.WriteDocumentElement(serde.DiscriminatorField)
	if err != nil {
		return xerrors.Errorf("failed to write discriminator: %v", err)
	}

	err = vw.WriteString(key)
	if err != nil {
		return xerrors.Errorf("failed to write discriminator: %v", err)
	}

	return nil
}

func writeEmptyDocument(vw bsonrw.ValueWriter) error {
	dw, err := vw.WriteDocument()
	if err != nil {
		return xerrors.Errorf("failed to write document: %v", err)
	}

	return dw.WriteDocumentEnd()
}

// isNil returns true for nil and for the nil values of the nillable kinds.
func isNil(value interface{}) bool {
	if value == nil {
		return true
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func,
		reflect.Interface, reflect.Chan:

		return rv.IsNil()
	}

	return false
}
