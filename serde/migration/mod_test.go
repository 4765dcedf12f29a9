package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestIdentity_Migrate(t *testing.T) {
	doc := makeDoc(t, bson.D{{Key: "_t", Value: "a.B"}})

	require.Equal(t, doc, Identity{}.Migrate(doc))
}

func TestChain_Migrate(t *testing.T) {
	first, err := NewRules(Rule{From: "a.A", To: "a.B"})
	require.NoError(t, err)

	second, err := NewRules(Rule{From: "a.B", To: "a.C"})
	require.NoError(t, err)

	out := Chain{first, Identity{}, second}.Migrate(makeDoc(t, bson.D{{Key: "_t", Value: "a.A"}}))
	require.Equal(t, "a.C", out.Lookup("_t").StringValue())
}

func TestNewRules(t *testing.T) {
	rules, err := NewRules(Rule{From: "a"}, Rule{From: "b"})
	require.NoError(t, err)
	require.Equal(t, 2, rules.Len())

	_, err = NewRules(Rule{To: "a"})
	require.EqualError(t, err, "rule #0: missing source discriminator")

	_, err = NewRules(Rule{From: "a"}, Rule{From: "a"})
	require.EqualError(t, err, "rule #1: duplicate rule for 'a'")
}

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(testRules))
	require.NoError(t, err)
	require.Equal(t, 2, rules.Len())

	rule := rules.rules["old.Point"]
	require.Equal(t, "new.Point", rule.To)
	require.Equal(t, map[string]string{"X0": "X"}, rule.Rename)
	require.Equal(t, []string{"Legacy"}, rule.Remove)
	require.Equal(t, map[string]interface{}{"Unit": "m"}, rule.Defaults)

	_, err = ParseRules([]byte("rules: [{unknown: 1}]"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to unmarshal rules: ")

	_, err = ParseRules([]byte("rules: [{to: a}]"))
	require.EqualError(t, err, "rule #0: missing source discriminator")
}

func TestLoadRules(t *testing.T) {
	dir, err := os.MkdirTemp("", "polybson-migration")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRules), 0600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Equal(t, 2, rules.Len())

	_, err = LoadRules(filepath.Join(dir, "unknown.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read rules: ")

	require.NoError(t, os.WriteFile(path, []byte("rules: 1"), 0600))

	_, err = LoadRules(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse '"+path+"': ")
}

func TestRules_Migrate(t *testing.T) {
	rules, err := ParseRules([]byte(testRules))
	require.NoError(t, err)

	doc := makeDoc(t, bson.D{
		{Key: "_t", Value: "old.Point"},
		{Key: "X0", Value: 1.5},
		{Key: "Y", Value: 2.5},
		{Key: "Legacy", Value: true},
	})

	out := rules.Migrate(doc)

	expected := makeDoc(t, bson.D{
		{Key: "_t", Value: "new.Point"},
		{Key: "X", Value: 1.5},
		{Key: "Y", Value: 2.5},
		{Key: "Unit", Value: "m"},
	})

	require.Equal(t, expected, out)

	// A field that already exists is not overwritten by the default.
	doc = makeDoc(t, bson.D{
		{Key: "_t", Value: "old.Point"},
		{Key: "Unit", Value: "cm"},
	})

	out = rules.Migrate(doc)
	require.Equal(t, "cm", out.Lookup("Unit").StringValue())
	require.Equal(t, "new.Point", out.Lookup("_t").StringValue())
}

func TestRules_MigrateKeepDiscriminator(t *testing.T) {
	rules, err := ParseRules([]byte(testRules))
	require.NoError(t, err)

	doc := makeDoc(t, bson.D{
		{Key: "_t", Value: "model.Line"},
		{Key: "Start", Value: 1.0},
	})

	out := rules.Migrate(doc)
	require.Equal(t, "model.Line", out.Lookup("_t").StringValue())
	require.Equal(t, 1.0, out.Lookup("Origin").Double())
}

func TestRules_MigrateUnchanged(t *testing.T) {
	rules, err := ParseRules([]byte(testRules))
	require.NoError(t, err)

	var docs = []bson.Raw{
		makeDoc(t, bson.D{{Key: "A", Value: 1}}),
		makeDoc(t, bson.D{{Key: "_t", Value: 1}}),
		makeDoc(t, bson.D{{Key: "_t", Value: "unknown.Type"}}),
	}

	for _, doc := range docs {
		require.Equal(t, doc, rules.Migrate(doc))
	}

	// The default cannot be marshaled so the document is kept.
	rules, err = NewRules(Rule{
		From:     "a.A",
		To:       "a.B",
		Defaults: map[string]interface{}{"C": make(chan int)},
	})
	require.NoError(t, err)

	doc := makeDoc(t, bson.D{{Key: "_t", Value: "a.A"}})
	require.Equal(t, doc, rules.Migrate(doc))
}

func TestRules_MigrateAll(t *testing.T) {
	rules, err := ParseRules([]byte(testRules))
	require.NoError(t, err)

	doc := makeDoc(t, bson.D{
		{Key: "_t", Value: "model.Polyline"},
		{Key: "Points", Value: bson.A{
			bson.D{{Key: "_t", Value: "old.Point"}, {Key: "X0", Value: 1.0}},
			int32(42),
			bson.A{bson.D{{Key: "_t", Value: "old.Point"}, {Key: "X0", Value: 2.0}}},
		}},
		{Key: "Anchor", Value: bson.D{{Key: "_t", Value: "old.Point"}, {Key: "X0", Value: 3.0}}},
	})

	out, err := rules.MigrateAll(doc)
	require.NoError(t, err)

	first := out.Lookup("Points", "0")
	require.Equal(t, "new.Point", first.Document().Lookup("_t").StringValue())
	require.Equal(t, 1.0, first.Document().Lookup("X").Double())

	require.Equal(t, int32(42), out.Lookup("Points", "1").Int32())

	nested := out.Lookup("Points", "2", "0").Document()
	require.Equal(t, 2.0, nested.Lookup("X").Double())

	anchor := out.Lookup("Anchor").Document()
	require.Equal(t, "new.Point", anchor.Lookup("_t").StringValue())
	require.Equal(t, "m", anchor.Lookup("Unit").StringValue())

	_, err = rules.MigrateAll(bson.Raw{1, 2, 3})
	require.Error(t, err)
}

// -----------------------------------------------------------------------------
// Utility functions

const testRules = `
rules:
  - from: old.Point
    to: new.Point
    rename:
      X0: X
    remove:
      - Legacy
    defaults:
      Unit: m
  - from: model.Line
    rename:
      Start: Origin
`

func makeDoc(t *testing.T, d bson.D) bson.Raw {
	data, err := bson.Marshal(d)
	require.NoError(t, err)

	return data
}
