package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/polybson/internal/testing/fake"
	"go.dedis.ch/polybson/serde"
	"go.dedis.ch/polybson/serde/diag"
	"go.dedis.ch/polybson/serde/migration"
	"go.dedis.ch/polybson/serde/object"
	"go.mongodb.org/mongo-driver/bson"
)

func TestFallback_UnknownType(t *testing.T) {
	rec := &diag.Recorder{}
	migrator := fake.NewMigrator()

	s := NewSerializer(makeRegistry(), WithSink(rec), WithMigrator(migrator))

	value, err := s.Unmarshal(makeRoot(t, bson.D{
		{Key: serde.DiscriminatorField, Value: "legacy.Wall"},
		{Key: "Height", Value: 3.5},
		{Key: "Layers", Value: bson.A{int32(1), "a"}},
		{Key: object.NameProperty, Value: "north"},
	}))
	require.NoError(t, err)

	obj := value.(*object.CustomObject)
	require.Equal(t, "north", obj.Name)
	require.Equal(t, map[string]interface{}{
		serde.DiscriminatorField: "legacy.Wall",
		"Height":                 3.5,
		"Layers":                 []interface{}{int32(1), "a"},
	}, obj.Properties)

	require.Equal(t, 1, migrator.Call.Len())
	require.Len(t, rec.Entries(), 1)
	require.Equal(t, diag.WarnLevel, rec.Entries()[0].Level)
	require.Contains(t, rec.Entries()[0].Message, "legacy.Wall")
}

func TestFallback_NestedUnknownType(t *testing.T) {
	rec := &diag.Recorder{}
	s := NewSerializer(makeRegistry(), WithSink(rec))

	value, err := s.Unmarshal(makeRoot(t, bson.D{
		{Key: serde.DiscriminatorField, Value: "[]any"},
		{Key: serde.ValueField, Value: bson.A{
			int32(1),
			bson.D{{Key: serde.DiscriminatorField, Value: "legacy.A"}},
			bson.D{{Key: serde.DiscriminatorField, Value: "legacy.B"}},
		}},
	}))
	require.NoError(t, err)

	list := value.([]interface{})
	require.Len(t, list, 3)
	require.Equal(t, int32(1), list[0])
	require.Equal(t, "legacy.A", list[1].(*object.CustomObject).Properties[serde.DiscriminatorField])
	require.Equal(t, "legacy.B", list[2].(*object.CustomObject).Properties[serde.DiscriminatorField])
	require.Equal(t, 2, rec.Count(diag.WarnLevel))
}

func TestFallback_MigrationRetry(t *testing.T) {
	rec := &diag.Recorder{}
	migrator := fake.NewMigrator("legacy.Point", pointKey)

	s := NewSerializer(makeRegistry(), WithSink(rec), WithMigrator(migrator))

	value, err := s.Unmarshal(makeRoot(t, bson.D{
		{Key: serde.DiscriminatorField, Value: "legacy.Point"},
		{Key: "X", Value: 1.0},
		{Key: "Y", Value: 2.0},
	}))
	require.NoError(t, err)
	require.Equal(t, point{X: 1, Y: 2}, value)
	require.Empty(t, rec.Entries())
}

func TestFallback_MigrationRules(t *testing.T) {
	rec := &diag.Recorder{}

	rules, err := migration.NewRules(
		migration.Rule{
			From:   "legacy.Point",
			To:     pointKey,
			Rename: map[string]string{"X0": "X"},
			Remove: []string{"Legacy"},
		},
		migration.Rule{
			From:   pointKey,
			Remove: []string{"Z"},
		},
	)
	require.NoError(t, err)

	s := NewSerializer(makeRegistry(), WithSink(rec), WithMigrator(rules))

	value, err := s.Unmarshal(makeRoot(t, bson.D{
		{Key: serde.DiscriminatorField, Value: "legacy.Point"},
		{Key: "X0", Value: 1.0},
		{Key: "Y", Value: 2.0},
		{Key: "Legacy", Value: true},
	}))
	require.NoError(t, err)
	require.Equal(t, point{X: 1, Y: 2}, value)

	// The type exists but has changed shape.
	value, err = s.Unmarshal(makeRoot(t, bson.D{
		{Key: serde.DiscriminatorField, Value: pointKey},
		{Key: "X", Value: 1.0},
		{Key: "Z", Value: 3.0},
	}))
	require.NoError(t, err)
	require.Equal(t, point{X: 1}, value)
	require.Empty(t, rec.Entries())
}

func TestFallback_ChainedMigrations(t *testing.T) {
	migrator := fake.NewMigrator("v1.Point", "v2.Point", "v2.Point", pointKey)

	s := NewSerializer(makeRegistry(), WithMigrator(migrator))

	value, err := s.Unmarshal(makeRoot(t, bson.D{
		{Key: serde.DiscriminatorField, Value: "v1.Point"},
		{Key: "X", Value: 1.0},
	}))
	require.NoError(t, err)
	require.Equal(t, point{X: 1}, value)
	require.Equal(t, 2, migrator.Call.Len())
}

func TestFallback_MigrationCycle(t *testing.T) {
	rec := &diag.Recorder{}
	migrator := fake.NewMigrator("a.A", "b.B", "b.B", "a.A")

	s := NewSerializer(makeRegistry(), WithSink(rec), WithMigrator(migrator))

	value, err := s.Unmarshal(makeRoot(t, bson.D{
		{Key: serde.DiscriminatorField, Value: "a.A"},
		{Key: "X", Value: 1.0},
	}))
	require.NoError(t, err)

	// The original document is kept.
	require.Equal(t, "a.A", value.(*object.CustomObject).Properties[serde.DiscriminatorField])
	require.Equal(t, maxMigrations, migrator.Call.Len())
	require.Equal(t, 1, rec.Count(diag.WarnLevel))
}

func TestFallback_MigrationWithChangedShape(t *testing.T) {
	rec := &diag.Recorder{}
	migrator := fake.NewMigrator("legacy.Point", pointKey)

	s := NewSerializer(makeRegistry(), WithSink(rec), WithMigrator(migrator))

	value, err := s.Unmarshal(makeRoot(t, bson.D{
		{Key: serde.DiscriminatorField, Value: "legacy.Point"},
		{Key: "Z", Value: 1.0},
	}))
	require.NoError(t, err)

	// The document as it was read is decoded, not the migrated one.
	obj := value.(*object.CustomObject)
	require.Equal(t, map[string]interface{}{
		serde.DiscriminatorField: "legacy.Point",
		"Z":                      1.0,
	}, obj.Properties)
	require.Equal(t, 2, migrator.Call.Len())

	require.Len(t, rec.Entries(), 1)
	require.Equal(t, "type 'legacy.Point' cannot be resolved: decoded as a custom object",
		rec.Entries()[0].Message)
}

func TestFallback_GenericDisambiguation(t *testing.T) {
	rec := &diag.Recorder{}
	s := NewSerializer(makeRegistry(), WithSink(rec))

	doc := bson.D{
		{Key: serde.DiscriminatorField, Value: "Pair[int32,string]"},
		{Key: "Key", Value: int32(3)},
		{Key: "Value", Value: "x"},
	}

	value, err := s.Unmarshal(makeRoot(t, doc))
	require.NoError(t, err)
	require.Equal(t, Pair[int32, string]{Key: 3, Value: "x"}, value)
	require.Empty(t, rec.Entries())

	// A second definition with the same name makes the discriminator
	// ambiguous.
	s.Registry().Register(fake.Pair[int32, string]{})

	value, err = s.Unmarshal(makeRoot(t, doc))
	require.NoError(t, err)

	obj := value.(*object.CustomObject)
	require.Equal(t, "Pair[int32,string]", obj.Properties[serde.DiscriminatorField])
	require.Equal(t, int32(3), obj.Properties["Key"])
	require.Equal(t, 1, rec.Count(diag.WarnLevel))
}

func TestWithDiscriminator(t *testing.T) {
	raw := makeDocument(t, bson.D{
		{Key: "A", Value: int32(1)},
		{Key: serde.DiscriminatorField, Value: "a.A"},
	})

	out, err := withDiscriminator(raw, "b.B")
	require.NoError(t, err)
	require.Equal(t, "b.B", out.Lookup(serde.DiscriminatorField).StringValue())
	require.Equal(t, int32(1), out.Lookup("A").Int32())

	elems, err := out.Elements()
	require.NoError(t, err)
	require.Len(t, elems, 2)

	_, err = withDiscriminator([]byte{1, 2}, "b.B")
	require.Error(t, err)
}
