// Package fake provides fake implementations for interfaces commonly used in
// the repository.
// The implementations offer configuration to return errors when it is needed by
// the unit test and it is also possible to record the call of functions of an
// object in some cases.
package fake

import (
	"sync"

	"go.dedis.ch/polybson/serde"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
	"golang.org/x/xerrors"
)

var fakeErr = xerrors.New("fake error")

// GetError returns the error returned by the fakes.
func GetError() error {
	return fakeErr
}

// Call is a tool to keep track of a function calls.
type Call struct {
	sync.Mutex
	calls [][]interface{}
}

// Get returns the nth call ith parameter.
func (c *Call) Get(n, i int) interface{} {
	c.Lock()
	defer c.Unlock()

	return c.calls[n][i]
}

// Len returns the number of calls.
func (c *Call) Len() int {
	c.Lock()
	defer c.Unlock()

	return len(c.calls)
}

// Add adds a call to the list.
func (c *Call) Add(args ...interface{}) {
	c.Lock()
	c.calls = append(c.calls, args)
	c.Unlock()
}

// Migrator is a fake implementation of migration.Migrator. It replaces the
// discriminators found in the map and keeps the other fields as they are.
//
// - implements migration.Migrator
type Migrator struct {
	Rewrites map[string]string
	Call     *Call
}

// NewMigrator returns a fake migrator that rewrites the discriminators
// according to the list of pairs (old, new).
func NewMigrator(pairs ...string) Migrator {
	m := Migrator{
		Rewrites: make(map[string]string),
		Call:     &Call{},
	}

	for i := 0; i+1 < len(pairs); i += 2 {
		m.Rewrites[pairs[i]] = pairs[i+1]
	}

	return m
}

// Migrate implements migration.Migrator.
func (m Migrator) Migrate(doc bson.Raw) bson.Raw {
	if m.Call != nil {
		m.Call.Add(doc)
	}

	value, err := doc.LookupErr(serde.DiscriminatorField)
	if err != nil {
		return doc
	}

	key, ok := value.StringValueOK()
	if !ok {
		return doc
	}

	to, found := m.Rewrites[key]
	if !found {
		return doc
	}

	elems, err := doc.Elements()
	if err != nil {
		return doc
	}

	idx, out := bsoncore.AppendDocumentStart(nil)
	for _, elem := range elems {
		if elem.Key() == serde.DiscriminatorField {
			out = bsoncore.AppendStringElement(out, serde.DiscriminatorField, to)
			continue
		}

		out = append(out, elem...)
	}

	out, err = bsoncore.AppendDocumentEnd(out, idx)
	if err != nil {
		return doc
	}

	return out
}

// Pair is a generic type used to test the resolution of the generic
// discriminators.
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}

// BadWriter is a fake implementation of io.Writer that always returns an
// error.
type BadWriter struct{}

// Write implements io.Writer.
func (BadWriter) Write([]byte) (int, error) {
	return 0, fakeErr
}
