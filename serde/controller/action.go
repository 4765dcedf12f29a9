package controller

import (
	"bytes"
	"fmt"
	"os"

	"go.dedis.ch/polybson/serde"
	"go.dedis.ch/polybson/serde/codec"
	"go.dedis.ch/polybson/serde/diag"
	"go.dedis.ch/polybson/serde/migration"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
	"golang.org/x/xerrors"
)

// inspectAction is an action to decode the documents of a file and print the
// decoded values alongside the diagnostics.
//
// - implements controller.actionTemplate
type inspectAction struct {
	Controller
}

// Execute implements controller.actionTemplate. It decodes every document of
// the file with a serializer that records the diagnostics.
func (a inspectAction) Execute(ctx Context) error {
	docs, err := readDocuments(ctx.Flags.Arg(0))
	if err != nil {
		return xerrors.Errorf("failed to read input: %v", err)
	}

	rules, err := loadRules(ctx.Flags.StringSlice(rulesFlag))
	if err != nil {
		return xerrors.Errorf("failed to load rules: %v", err)
	}

	recorder := new(diag.Recorder)

	opts := []codec.Option{codec.WithSink(recorder)}
	if len(rules) > 0 {
		chain := make(migration.Chain, len(rules))
		for i, r := range rules {
			chain[i] = r
		}

		opts = append(opts, codec.WithMigrator(chain))
	}

	s := a.serializer(opts...)

	for i, doc := range docs {
		value, err := decodeDocument(s, doc)
		if err != nil {
			return xerrors.Errorf("failed to decode document #%d: %v", i, err)
		}

		fmt.Fprintf(ctx.Out, "document #%d\n", i)
		printValue(ctx.Out, value, 1)
	}

	entries := recorder.Entries()
	if len(entries) > 0 {
		fmt.Fprintln(ctx.Out, "diagnostics:")

		for _, entry := range entries {
			fmt.Fprintf(ctx.Out, "  %v\n", entry)
		}
	}

	fmt.Fprintf(ctx.Out, "%d document(s), %d warning(s), %d error(s)\n", len(docs),
		recorder.Count(diag.WarnLevel), recorder.Count(diag.ErrorLevel))

	if ctx.Flags.Bool(strictFlag) && len(entries) > 0 {
		return xerrors.Errorf("%d diagnostic(s) reported", len(entries))
	}

	return nil
}

// migrateAction is an action to rewrite the documents of a file, and the
// documents nested in them, with a set of migration rules.
//
// - implements controller.actionTemplate
type migrateAction struct{}

// Execute implements controller.actionTemplate. It writes the migrated
// documents to the output file.
func (migrateAction) Execute(ctx Context) error {
	out := ctx.Flags.Path(outFlag)
	if out == "" {
		return xerrors.New("missing output file")
	}

	_, err := os.Stat(out)
	if err == nil && !ctx.Flags.Bool(forceFlag) {
		return xerrors.Errorf("output file '%s' already exists", out)
	}

	docs, err := readDocuments(ctx.Flags.Arg(0))
	if err != nil {
		return xerrors.Errorf("failed to read input: %v", err)
	}

	rules, err := loadRules(ctx.Flags.StringSlice(rulesFlag))
	if err != nil {
		return xerrors.Errorf("failed to load rules: %v", err)
	}

	if len(rules) == 0 {
		return xerrors.New("no migration rules")
	}

	buffer := new(bytes.Buffer)
	changed := 0

	for i, doc := range docs {
		migrated := doc

		for _, r := range rules {
			migrated, err = r.MigrateAll(migrated)
			if err != nil {
				return xerrors.Errorf("failed to migrate document #%d: %v", i, err)
			}
		}

		if !bytes.Equal(migrated, doc) {
			changed++
		}

		buffer.Write(migrated)
	}

	err = os.WriteFile(out, buffer.Bytes(), 0644)
	if err != nil {
		return xerrors.Errorf("failed to write '%s': %v", out, err)
	}

	fmt.Fprintf(ctx.Out, "%d of %d document(s) migrated into %s\n", changed, len(docs), out)

	return nil
}

// dumpAction is an action to print the documents of a file in the extended
// JSON format.
//
// - implements controller.actionTemplate
type dumpAction struct{}

// Execute implements controller.actionTemplate. It prints one line per
// document.
func (dumpAction) Execute(ctx Context) error {
	docs, err := readDocuments(ctx.Flags.Arg(0))
	if err != nil {
		return xerrors.Errorf("failed to read input: %v", err)
	}

	canonical := ctx.Flags.Bool(canonicalFlag)

	for i, doc := range docs {
		data, err := bson.MarshalExtJSON(doc, canonical, false)
		if err != nil {
			return xerrors.Errorf("failed to convert document #%d: %v", i, err)
		}

		fmt.Fprintf(ctx.Out, "%s\n", data)
	}

	return nil
}

// typesAction is an action to list the discriminators of the registry.
//
// - implements controller.actionTemplate
type typesAction struct {
	Controller
}

// Execute implements controller.actionTemplate.
func (a typesAction) Execute(ctx Context) error {
	// The serializer registers the types of the standard codecs.
	a.serializer()

	for _, key := range a.registry.Types() {
		fmt.Fprintln(ctx.Out, key)
	}

	return nil
}

// readDocuments returns the documents of the file, which is a sequence of
// documents without any separator.
func readDocuments(path string) ([]bson.Raw, error) {
	if path == "" {
		return nil, xerrors.New("missing input file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read '%s': %v", path, err)
	}

	var docs []bson.Raw

	for len(data) > 0 {
		doc, rem, ok := bsoncore.ReadDocument(data)
		if !ok {
			return nil, xerrors.Errorf("document #%d is truncated", len(docs))
		}

		err = doc.Validate()
		if err != nil {
			return nil, xerrors.Errorf("document #%d is malformed: %v", len(docs), err)
		}

		docs = append(docs, bson.Raw(doc))
		data = rem
	}

	return docs, nil
}

// loadRules returns the rules of the files in order.
func loadRules(paths []string) ([]*migration.Rules, error) {
	all := make([]*migration.Rules, 0, len(paths))

	for _, path := range paths {
		rules, err := migration.LoadRules(path)
		if err != nil {
			return nil, err
		}

		all = append(all, rules)
	}

	return all, nil
}

// decodeDocument decodes a root document written by a serializer, or decodes
// the document itself if it is not wrapped.
func decodeDocument(s *codec.Serializer, doc bson.Raw) (interface{}, error) {
	_, err := doc.LookupErr(serde.ValueField)
	if err == nil {
		return s.Unmarshal(doc)
	}

	return s.DecodeValue(bsonrw.NewBSONValueReader(bsontype.EmbeddedDocument, doc))
}
