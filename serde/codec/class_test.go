package codec

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/polybson/serde"
	"go.dedis.ch/polybson/serde/registry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

func TestClassCodec_RoundTrip(t *testing.T) {
	reg := makeRegistry()
	reg.Register(&wall{})

	s := NewSerializer(reg)

	value := &wall{
		Name:   "north",
		Height: 2.5,
		Hidden: 3,
		Kind:   reflect.TypeOf(point{}),
		Corner: &point{X: 1},
		Shape:  point{Y: 2},
		Layers: []interface{}{int32(1), "a"},
	}

	res := roundTrip(t, s, value)

	value.Hidden = 0
	require.Equal(t, value, res)

	require.Equal(t, point{X: 1, Y: 2}, roundTrip(t, s, point{X: 1, Y: 2}))
	require.Equal(t, point{X: 1, Y: 2}, roundTrip(t, s, &point{X: 1, Y: 2}))
	require.Equal(t, Pair[int32, string]{Key: 1, Value: "a"},
		roundTrip(t, s, Pair[int32, string]{Key: 1, Value: "a"}))
}

func TestClassCodec_WireShape(t *testing.T) {
	reg := makeRegistry()
	reg.Register(&wall{})

	s := NewSerializer(reg)

	data, err := s.Marshal(&wall{Name: "a", Height: 1})
	require.NoError(t, err)

	doc := bson.Raw(data).Lookup(serde.ValueField).Document()
	require.Equal(t, "go.dedis.ch/polybson/serde/codec.wall", doc.Lookup(serde.DiscriminatorField).StringValue())
	require.Equal(t, "a", doc.Lookup("Name").StringValue())
	require.Equal(t, 1.0, doc.Lookup("h").Double())

	_, err = doc.LookupErr("Hidden")
	require.Error(t, err)

	_, err = doc.LookupErr("note")
	require.Error(t, err)

	data, err = s.Marshal(&wall{Note: "b"})
	require.NoError(t, err)
	require.Equal(t, "b", bson.Raw(data).Lookup(serde.ValueField, "note").StringValue())
}

func TestClassCodec_NilTypeField(t *testing.T) {
	reg := makeRegistry()
	reg.Register(&wall{})

	s := NewSerializer(reg)

	data, err := s.Marshal(&wall{Name: "a"})
	require.NoError(t, err)

	kind := bson.Raw(data).Lookup(serde.ValueField, "Kind")
	require.Equal(t, bsontype.EmbeddedDocument, kind.Type)
	require.Equal(t, "", kind.Document().Lookup(nameField).StringValue())

	res := roundTrip(t, s, &wall{Name: "a"})
	require.Nil(t, res.(*wall).Kind)

	data, err = s.Marshal([]reflect.Type{nil, reflect.TypeOf(point{})})
	require.NoError(t, err)
	require.Equal(t, bsontype.EmbeddedDocument, bson.Raw(data).Lookup(serde.ValueField, serde.ValueField, "0").Type)
}

func TestClassCodec_ScalarPointers(t *testing.T) {
	reg := makeRegistry()
	reg.Register(gauge{})

	s := NewSerializer(reg)

	count := int32(3)
	ratio := 0.5

	value := gauge{Count: &count, Ratio: &ratio}

	data, err := s.Marshal(value)
	require.NoError(t, err)

	doc := bson.Raw(data).Lookup(serde.ValueField).Document()
	require.Equal(t, int32(3), doc.Lookup("Count").Int32())
	require.Equal(t, 0.5, doc.Lookup("Ratio").Double())
	require.Equal(t, bsontype.Null, doc.Lookup("Label").Type)

	res, err := s.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, value, res)

	label := "a"
	require.Equal(t, gauge{Label: &label}, roundTrip(t, s, gauge{Label: &label}))
	require.Equal(t, int32(3), roundTrip(t, s, &count))
}

func TestClassCodec_Decode(t *testing.T) {
	ctx := newContext(NewSerializer(makeRegistry()))

	_, err := classCodec{}.Decode(ctx, nil, reflect.TypeOf((*shape)(nil)).Elem())
	require.ErrorIs(t, err, serde.ErrCannotInstantiate)

	_, err = classCodec{}.Decode(ctx, nil, reflect.TypeOf(new(int)))
	require.ErrorIs(t, err, serde.ErrCannotInstantiate)

	raw := makeDocument(t, bson.D{
		{Key: serde.DiscriminatorField, Value: pointKey},
		{Key: "X", Value: 1.0},
	})

	value, err := classCodec{}.Decode(ctx, documentReader(raw), reflect.TypeOf(&point{}))
	require.NoError(t, err)
	require.Equal(t, &point{X: 1}, value)

	raw = makeDocument(t, bson.D{{Key: "Z", Value: 1.0}})

	_, err = classCodec{}.Decode(ctx, documentReader(raw), reflect.TypeOf(point{}))
	require.ErrorIs(t, err, errShapeChanged)
	require.EqualError(t, err, "unknown field 'Z': shape of the type has changed")

	raw = makeDocument(t, bson.D{{Key: "X", Value: "a"}})

	_, err = classCodec{}.Decode(ctx, documentReader(raw), reflect.TypeOf(point{}))
	require.ErrorIs(t, err, errShapeChanged)

	raw = makeDocument(t, bson.D{{Key: "X", Value: bson.A{1.0}}})
	_, err = classCodec{}.Decode(ctx, documentReader(raw), reflect.TypeOf(point{}))
	require.ErrorIs(t, err, errShapeChanged)
}

func TestClassCodec_Encode(t *testing.T) {
	ctx := newContext(NewSerializer(makeRegistry()))

	err := classCodec{}.Encode(ctx, nil, 1)
	require.ErrorIs(t, err, serde.ErrNoCodec)
}

func TestFieldsOf(t *testing.T) {
	fields := fieldsOf(reflect.TypeOf(wall{}))

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}

	require.Equal(t, []string{"Name", "h", "note", "Kind", "Corner", "Shape", "Layers"}, names)
	require.True(t, fields[2].omitEmpty)
	require.Equal(t, registry.TypeType, fields[3].typ)
}

// -----------------------------------------------------------------------------
// Utility functions

type wall struct {
	Name   string
	Height float64 `bson:"h"`
	Hidden int     `bson:"-"`
	Note   string  `bson:"note,omitempty"`
	Kind   reflect.Type
	Corner *point
	Shape  interface{}
	Layers []interface{}

	secret int
	Tag    string `bson:"_t"`
}

type gauge struct {
	Count *int32
	Label *string
	Ratio *float64
}
