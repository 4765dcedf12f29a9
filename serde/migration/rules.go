package migration

import (
	"io/ioutil"
	"sort"

	"go.dedis.ch/polybson"
	"go.dedis.ch/polybson/serde"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// Rule describes how to migrate the documents of a discriminator.
type Rule struct {
	// From is the discriminator of the old documents.
	From string `yaml:"from"`

	// To is the new discriminator. The discriminator is kept when empty.
	To string `yaml:"to"`

	// Rename maps old field names to new ones.
	Rename map[string]string `yaml:"rename"`

	// Remove lists the fields that are dropped.
	Remove []string `yaml:"remove"`

	// Defaults gives the scalar values of new fields missing from the old
	// documents.
	Defaults map[string]interface{} `yaml:"defaults"`
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// Rules is a migrator driven by a set of rules indexed by the old
// discriminator.
//
// - implements migration.Migrator
type Rules struct {
	rules map[string]Rule
}

// NewRules returns a migrator for the rules. It returns an error if a rule has
// no source discriminator or if two rules have the same one.
func NewRules(rules ...Rule) (*Rules, error) {
	r := &Rules{
		rules: make(map[string]Rule),
	}

	for i, rule := range rules {
		if rule.From == "" {
			return nil, xerrors.Errorf("rule #%d: missing source discriminator", i)
		}

		_, found := r.rules[rule.From]
		if found {
			return nil, xerrors.Errorf("rule #%d: duplicate rule for '%s'", i, rule.From)
		}

		r.rules[rule.From] = rule
	}

	return r, nil
}

// ParseRules returns the migrator for the YAML definition of the rules.
//
//	rules:
//	  - from: example.com/model.OldPoint
//	    to: example.com/model.Point
//	    rename:
//	      X0: X
//	    remove: [Legacy]
//	    defaults:
//	      Unit: m
func ParseRules(data []byte) (*Rules, error) {
	file := rulesFile{}

	err := yaml.UnmarshalStrict(data, &file)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal rules: %v", err)
	}

	return NewRules(file.Rules...)
}

// LoadRules reads the YAML file and returns the migrator of its rules.
func LoadRules(path string) (*Rules, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read rules: %v", err)
	}

	rules, err := ParseRules(data)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse '%s': %v", path, err)
	}

	return rules, nil
}

// Len returns the number of rules.
func (r *Rules) Len() int {
	return len(r.rules)
}

// Migrate implements migration.Migrator. It applies the rule of the
// discriminator of the document, if any. The document is returned unchanged
// when no rule applies or when the rule cannot be applied.
func (r *Rules) Migrate(doc bson.Raw) bson.Raw {
	value, err := doc.LookupErr(serde.DiscriminatorField)
	if err != nil {
		return doc
	}

	key, ok := value.StringValueOK()
	if !ok {
		return doc
	}

	rule, found := r.rules[key]
	if !found {
		return doc
	}

	out, err := rule.apply(doc)
	if err != nil {
		polybson.Logger.Warn().Err(err).Str("from", key).Msg("migration failed")
		return doc
	}

	promMigrations.WithLabelValues(key).Inc()

	return out
}

// MigrateAll migrates the document and every document nested in it, including
// the documents inside arrays.
func (r *Rules) MigrateAll(doc bson.Raw) (bson.Raw, error) {
	out, err := r.walk(r.Migrate(doc), false)
	if err != nil {
		return nil, xerrors.Errorf("failed to migrate nested documents: %v", err)
	}

	return out, nil
}

func (r *Rules) walk(doc bson.Raw, array bool) (bson.Raw, error) {
	elems, err := doc.Elements()
	if err != nil {
		return nil, xerrors.Errorf("malformed document: %v", err)
	}

	var idx int32
	var out []byte

	if array {
		idx, out = bsoncore.AppendArrayStart(nil)
	} else {
		idx, out = bsoncore.AppendDocumentStart(nil)
	}

	for _, elem := range elems {
		value := elem.Value()
		data := value.Value

		switch value.Type {
		case bsontype.EmbeddedDocument:
			data, err = r.MigrateAll(bson.Raw(value.Value))
		case bsontype.Array:
			data, err = r.walk(bson.Raw(value.Value), true)
		}

		if err != nil {
			return nil, err
		}

		out = bsoncore.AppendHeader(out, value.Type, elem.Key())
		out = append(out, data...)
	}

	if array {
		out, err = bsoncore.AppendArrayEnd(out, idx)
	} else {
		out, err = bsoncore.AppendDocumentEnd(out, idx)
	}

	if err != nil {
		return nil, xerrors.Errorf("failed to close document: %v", err)
	}

	return out, nil
}

func (rule Rule) apply(doc bson.Raw) (bson.Raw, error) {
	elems, err := doc.Elements()
	if err != nil {
		return nil, xerrors.Errorf("malformed document: %v", err)
	}

	removed := make(map[string]struct{})
	for _, name := range rule.Remove {
		removed[name] = struct{}{}
	}

	present := make(map[string]struct{})

	idx, out := bsoncore.AppendDocumentStart(nil)

	for _, elem := range elems {
		key := elem.Key()

		if key == serde.DiscriminatorField && rule.To != "" {
			out = bsoncore.AppendStringElement(out, key, rule.To)
			present[key] = struct{}{}
			continue
		}

		_, found := removed[key]
		if found {
			continue
		}

		name, found := rule.Rename[key]
		if found {
			key = name
		}

		value := elem.Value()
		out = bsoncore.AppendHeader(out, value.Type, key)
		out = append(out, value.Value...)

		present[key] = struct{}{}
	}

	names := make([]string, 0, len(rule.Defaults))
	for name := range rule.Defaults {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		_, found := present[name]
		if found {
			continue
		}

		t, data, err := bson.MarshalValue(rule.Defaults[name])
		if err != nil {
			return nil, xerrors.Errorf("failed to marshal default of '%s': %v", name, err)
		}

		out = bsoncore.AppendHeader(out, t, name)
		out = append(out, data...)
	}

	out, err = bsoncore.AppendDocumentEnd(out, idx)
	if err != nil {
		return nil, xerrors.Errorf("failed to close document: %v", err)
	}

	return out, nil
}
