package controller

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	urfave "github.com/urfave/cli/v2"
	"go.dedis.ch/polybson/cli"
	"go.dedis.ch/polybson/cli/ucli"
	"go.dedis.ch/polybson/serde/codec"
	"go.dedis.ch/polybson/serde/object"
	"go.dedis.ch/polybson/serde/registry"
	"go.mongodb.org/mongo-driver/bson"
)

const gearKey = "go.dedis.ch/polybson/serde/controller.gear"

func TestController_SetCommands(t *testing.T) {
	path := writeFile(t, "in.bson", makeDocument(t, bson.D{{Key: "a", Value: int32(1)}}))

	out := new(bytes.Buffer)
	builder := ucli.NewBuilder("polybson", nil)

	NewController(makeRegistry(), out).SetCommands(builder)

	app := builder.Build()
	require.Len(t, app.(*urfave.App).Commands, 5)

	err := app.Run([]string{"polybson", "dump", path})
	require.NoError(t, err)
	require.Equal(t, "{\"a\":1}\n", out.String())
}

func TestInspectAction_Execute(t *testing.T) {
	data, err := codec.NewSerializer(makeRegistry()).Marshal([]interface{}{gear{Teeth: 12}})
	require.NoError(t, err)

	path := writeFile(t, "in.bson", data)

	out := new(bytes.Buffer)
	action := inspectAction{Controller: NewController(makeRegistry(), out)}

	err = action.Execute(makeContext(out, cli.FlagSet{cli.ArgsKey: []string{path}}))
	require.NoError(t, err)
	require.Contains(t, out.String(), "document #0\n")
	require.Contains(t, out.String(), "  []any (1)\n")
	require.Contains(t, out.String(), "    "+gearKey+": {Teeth:12}\n")
	require.Contains(t, out.String(), "1 document(s), 0 warning(s), 0 error(s)\n")
}

func TestInspectAction_UnknownType(t *testing.T) {
	data, err := codec.NewSerializer(makeRegistry()).Marshal([]interface{}{gear{Teeth: 12}})
	require.NoError(t, err)

	path := writeFile(t, "in.bson", data)

	out := new(bytes.Buffer)
	action := inspectAction{Controller: NewController(registry.NewRegistry(), out)}

	err = action.Execute(makeContext(out, cli.FlagSet{cli.ArgsKey: []string{path}}))
	require.NoError(t, err)
	require.Contains(t, out.String(), "custom object")
	require.Contains(t, out.String(), "Teeth:\n")
	require.Contains(t, out.String(), "diagnostics:\n")
	require.Contains(t, out.String(), "[warn] type '"+gearKey+"' cannot be resolved")
	require.Contains(t, out.String(), "1 document(s), 1 warning(s), 0 error(s)\n")

	out.Reset()
	err = action.Execute(makeContext(out, cli.FlagSet{
		cli.ArgsKey: []string{path},
		strictFlag:  true,
	}))
	require.EqualError(t, err, "1 diagnostic(s) reported")
}

func TestInspectAction_WithRules(t *testing.T) {
	doc := makeDocument(t, bson.D{{Key: "_v", Value: bson.D{
		{Key: "_t", Value: "old.gear"},
		{Key: "Count", Value: int32(7)},
	}}})

	path := writeFile(t, "in.bson", doc)
	rules := writeRules(t)

	out := new(bytes.Buffer)
	action := inspectAction{Controller: NewController(makeRegistry(), out)}

	err := action.Execute(makeContext(out, cli.FlagSet{
		cli.ArgsKey: []string{path},
		rulesFlag:   []string{rules},
	}))
	require.NoError(t, err)
	require.Contains(t, out.String(), gearKey+": {Teeth:7}\n")
	require.Contains(t, out.String(), "0 warning(s)")
}

func TestInspectAction_PlainDocument(t *testing.T) {
	doc := makeDocument(t, bson.D{
		{Key: "Name", Value: "robot"},
		{Key: "speed", Value: int32(3)},
	})

	path := writeFile(t, "in.bson", append(doc, doc...))

	out := new(bytes.Buffer)
	action := inspectAction{Controller: NewController(registry.NewRegistry(), out)}

	err := action.Execute(makeContext(out, cli.FlagSet{cli.ArgsKey: []string{path}}))
	require.NoError(t, err)
	require.Contains(t, out.String(), "document #1\n")
	require.Contains(t, out.String(), "custom object \"robot\"")
	require.Contains(t, out.String(), "speed:\n")
	require.Contains(t, out.String(), "int32: 3\n")
	require.Contains(t, out.String(), "2 document(s), 0 warning(s), 0 error(s)\n")
}

func TestInspectAction_BadInput(t *testing.T) {
	out := new(bytes.Buffer)
	action := inspectAction{Controller: NewController(registry.NewRegistry(), out)}

	err := action.Execute(makeContext(out, cli.FlagSet{}))
	require.EqualError(t, err, "failed to read input: missing input file")

	path := writeFile(t, "in.bson", []byte{1, 2, 3})

	err = action.Execute(makeContext(out, cli.FlagSet{cli.ArgsKey: []string{path}}))
	require.EqualError(t, err, "failed to read input: document #0 is truncated")

	path = writeFile(t, "in.bson", makeDocument(t, bson.D{{Key: "a", Value: int32(1)}}))

	err = action.Execute(makeContext(out, cli.FlagSet{
		cli.ArgsKey: []string{path},
		rulesFlag:   []string{filepath.Join(t.TempDir(), "unknown.yaml")},
	}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to load rules: ")
}

func TestMigrateAction_Execute(t *testing.T) {
	doc := makeDocument(t, bson.D{{Key: "_v", Value: bson.D{
		{Key: "_t", Value: "old.gear"},
		{Key: "Count", Value: int32(12)},
	}}})

	in := writeFile(t, "in.bson", doc)
	rules := writeRules(t)
	outPath := filepath.Join(t.TempDir(), "out.bson")

	out := new(bytes.Buffer)
	flags := cli.FlagSet{
		cli.ArgsKey: []string{in},
		rulesFlag:   []string{rules},
		outFlag:     outPath,
	}

	err := migrateAction{}.Execute(makeContext(out, flags))
	require.NoError(t, err)
	require.Equal(t, "1 of 1 document(s) migrated into "+outPath+"\n", out.String())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	value, err := codec.NewSerializer(makeRegistry()).Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, gear{Teeth: 12}, value)

	err = migrateAction{}.Execute(makeContext(out, flags))
	require.EqualError(t, err, "output file '"+outPath+"' already exists")

	flags[forceFlag] = true

	out.Reset()
	err = migrateAction{}.Execute(makeContext(out, flags))
	require.NoError(t, err)
	require.Contains(t, out.String(), "1 of 1 document(s)")
}

func TestMigrateAction_BadArguments(t *testing.T) {
	out := new(bytes.Buffer)

	err := migrateAction{}.Execute(makeContext(out, cli.FlagSet{}))
	require.EqualError(t, err, "missing output file")

	outPath := filepath.Join(t.TempDir(), "out.bson")

	err = migrateAction{}.Execute(makeContext(out, cli.FlagSet{outFlag: outPath}))
	require.EqualError(t, err, "failed to read input: missing input file")

	in := writeFile(t, "in.bson", makeDocument(t, bson.D{{Key: "a", Value: int32(1)}}))

	err = migrateAction{}.Execute(makeContext(out, cli.FlagSet{
		cli.ArgsKey: []string{in},
		outFlag:     outPath,
	}))
	require.EqualError(t, err, "no migration rules")

	bad := writeFile(t, "bad.yaml", []byte("rules:\n  - to: x\n"))

	err = migrateAction{}.Execute(makeContext(out, cli.FlagSet{
		cli.ArgsKey: []string{in},
		outFlag:     outPath,
		rulesFlag:   []string{bad},
	}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing source discriminator")

	_, err = os.Stat(outPath)
	require.True(t, os.IsNotExist(err))
}

func TestDumpAction_Execute(t *testing.T) {
	doc := makeDocument(t, bson.D{{Key: "a", Value: int32(1)}})
	path := writeFile(t, "in.bson", append(doc, doc...))

	out := new(bytes.Buffer)

	err := dumpAction{}.Execute(makeContext(out, cli.FlagSet{cli.ArgsKey: []string{path}}))
	require.NoError(t, err)
	require.Equal(t, "{\"a\":1}\n{\"a\":1}\n", out.String())

	out.Reset()
	err = dumpAction{}.Execute(makeContext(out, cli.FlagSet{
		cli.ArgsKey:   []string{path},
		canonicalFlag: true,
	}))
	require.NoError(t, err)
	require.Equal(t, "{\"a\":{\"$numberInt\":\"1\"}}\n{\"a\":{\"$numberInt\":\"1\"}}\n", out.String())

	err = dumpAction{}.Execute(makeContext(out, cli.FlagSet{}))
	require.EqualError(t, err, "failed to read input: missing input file")
}

func TestTypesAction_Execute(t *testing.T) {
	out := new(bytes.Buffer)
	action := typesAction{Controller: NewController(makeRegistry(), out)}

	err := action.Execute(makeContext(out, cli.FlagSet{}))
	require.NoError(t, err)
	require.Contains(t, out.String(), gearKey+"\n")
	require.Contains(t, out.String(), "go.dedis.ch/polybson/serde/object.CustomObject\n")
	require.Contains(t, out.String(), "\nint\n")
}

func TestPrintValue(t *testing.T) {
	obj := object.NewCustomObject("robot", "b", "a")
	obj.Set("parts", map[string]interface{}{"wheel": nil, "arm": []byte{0xca, 0xfe}})

	out := new(bytes.Buffer)
	printValue(out, obj, 0)

	expected := "custom object \"robot\" id=" + obj.ID.String() + " tags=[a b]\n" +
		"  parts:\n" +
		"    map[string]any (2)\n" +
		"      arm:\n" +
		"        []uint8: cafe\n" +
		"      wheel:\n" +
		"        null\n"

	require.Equal(t, expected, out.String())
}

// -----------------------------------------------------------------------------
// Utility functions

type gear struct {
	Teeth int32
}

func makeRegistry() *registry.Registry {
	reg := registry.NewRegistry()
	reg.Register(gear{})

	return reg
}

func makeContext(out *bytes.Buffer, flags cli.FlagSet) Context {
	return Context{
		Flags: flags,
		Out:   out,
	}
}

func makeDocument(t *testing.T, doc bson.D) []byte {
	data, err := bson.Marshal(doc)
	require.NoError(t, err)

	return data
}

func writeFile(t *testing.T, name string, data []byte) string {
	path := filepath.Join(t.TempDir(), name)

	err := os.WriteFile(path, data, 0644)
	require.NoError(t, err)

	return path
}

func writeRules(t *testing.T) string {
	rules := "rules:\n" +
		"  - from: old.gear\n" +
		"    to: " + gearKey + "\n" +
		"    rename:\n" +
		"      Count: Teeth\n"

	return writeFile(t, "rules.yaml", []byte(rules))
}
