package codec

import (
	"reflect"

	"github.com/rs/xid"
	"go.dedis.ch/polybson/serde"
	"go.dedis.ch/polybson/serde/object"
	"go.dedis.ch/polybson/serde/registry"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/xerrors"
)

var customObjectKey = registry.KeyOf(reflect.TypeOf(&object.CustomObject{}))

// dynamicCodec is the codec of the custom objects. The reserved properties are
// written as fields of their own and the open properties as sibling fields.
// No discriminator is written as a document without one is decoded as a
// custom object.
//
// - implements codec.Codec
type dynamicCodec struct{}

// Encode implements codec.Codec.
func (dynamicCodec) Encode(ctx *Context, vw bsonrw.ValueWriter, value interface{}) error {
	obj, ok := value.(*object.CustomObject)
	if !ok {
		return xerrors.Errorf("type %T: %w", value, serde.ErrNoCodec)
	}

	dw, err := vw.WriteDocument()
	if err != nil {
		return xerrors.Errorf("failed to write object: %v", err)
	}

	if !obj.ID.IsNil() {
		ew, err := dw.WriteDocumentElement(object.IDProperty)
		if err != nil {
			return xerrors.Errorf("failed to write identifier: %v", err)
		}

		err = ew.WriteObjectID(primitive.ObjectID(obj.ID))
		if err != nil {
			return xerrors.Errorf("failed to write identifier: %v", err)
		}
	}

	if obj.Name != "" {
		ew, err := dw.WriteDocumentElement(object.NameProperty)
		if err != nil {
			return xerrors.Errorf("failed to write name: %v", err)
		}

		err = ew.WriteString(obj.Name)
		if err != nil {
			return xerrors.Errorf("failed to write name: %v", err)
		}
	}

	if len(obj.Tags) > 0 {
		err = writeTags(dw, obj.Tags)
		if err != nil {
			return err
		}
	}

	for _, key := range obj.Keys() {
		if isLifted(obj, key) {
			continue
		}

		ew, err := dw.WriteDocumentElement(key)
		if err != nil {
			return xerrors.Errorf("failed to write property: %v", err)
		}

		err = ctx.Encode(ew, obj.Properties[key])
		if err != nil {
			return xerrors.Errorf("failed to encode property '%s': %w", key, err)
		}
	}

	return dw.WriteDocumentEnd()
}

// Decode implements codec.Codec. Every field that is not reserved becomes a
// property. The discriminator is kept as a property unless it names the
// custom object itself, so that the type of a document that could not be
// resolved is not lost.
func (dynamicCodec) Decode(ctx *Context, vr bsonrw.ValueReader, t reflect.Type) (interface{}, error) {
	dr, err := vr.ReadDocument()
	if err != nil {
		return nil, xerrors.Errorf("failed to read object: %v", err)
	}

	obj := &object.CustomObject{
		Properties: make(map[string]interface{}),
	}

	for {
		name, fr, err := dr.ReadElement()
		if err == bsonrw.ErrEOD {
			break
		}

		if err != nil {
			return nil, xerrors.Errorf("failed to read object: %v", err)
		}

		switch {
		case name == object.IDProperty && fr.Type() == bsontype.ObjectID:
			oid, err := fr.ReadObjectID()
			if err != nil {
				return nil, xerrors.Errorf("failed to read identifier: %v", err)
			}

			obj.ID = xid.ID(oid)
		case name == object.NameProperty && fr.Type() == bsontype.String:
			obj.Name, err = fr.ReadString()
			if err != nil {
				return nil, xerrors.Errorf("failed to read name: %v", err)
			}
		case name == object.TagsProperty && fr.Type() == bsontype.Array:
			value, err := decodeDynamicArray(ctx, fr)
			if err != nil {
				return nil, xerrors.Errorf("failed to decode tags: %w", err)
			}

			tags, ok := stringsOf(value.([]interface{}))
			if !ok {
				obj.Properties[name] = value
				continue
			}

			for _, tag := range tags {
				obj.AddTag(tag)
			}
		default:
			value, err := decodeProperty(ctx, fr)
			if err != nil {
				return nil, xerrors.Errorf("failed to decode property '%s': %w", name, err)
			}

			if name == serde.DiscriminatorField && (value == customObjectKey || value == registry.AnyKey) {
				continue
			}

			obj.Properties[name] = value
		}
	}

	return obj, nil
}

// DiscriminatorCompatible implements codec.Codec. The custom object is never
// wrapped.
func (dynamicCodec) DiscriminatorCompatible() bool {
	return true
}

// decodeProperty decodes the value of a property. The arrays of a custom
// object are always decoded element by element whatever the array handler of
// the serializer is.
func decodeProperty(ctx *Context, vr bsonrw.ValueReader) (interface{}, error) {
	if vr.Type() == bsontype.Array {
		return decodeDynamicArray(ctx, vr)
	}

	return ctx.Decode(vr)
}

func writeTags(dw bsonrw.DocumentWriter, tags []string) error {
	ew, err := dw.WriteDocumentElement(object.TagsProperty)
	if err != nil {
		return xerrors.Errorf("failed to write tags: %v", err)
	}

	aw, err := ew.WriteArray()
	if err != nil {
		return xerrors.Errorf("failed to write tags: %v", err)
	}

	for _, tag := range tags {
		tw, err := aw.WriteArrayElement()
		if err != nil {
			return xerrors.Errorf("failed to write tag: %v", err)
		}

		err = tw.WriteString(tag)
		if err != nil {
			return xerrors.Errorf("failed to write tag: %v", err)
		}
	}

	return aw.WriteArrayEnd()
}

// isLifted returns true if the reserved property is written from the field of
// the object. A reserved name found in a document with another wire type is
// kept as an open property, which is written only when the field is unset.
func isLifted(obj *object.CustomObject, key string) bool {
	switch key {
	case object.IDProperty:
		return !obj.ID.IsNil()
	case object.NameProperty:
		return obj.Name != ""
	case object.TagsProperty:
		return len(obj.Tags) > 0
	}

	return false
}

func stringsOf(values []interface{}) ([]string, bool) {
	strs := make([]string, len(values))

	for i, value := range values {
		str, ok := value.(string)
		if !ok {
			return nil, false
		}

		strs[i] = str
	}

	return strs, true
}
