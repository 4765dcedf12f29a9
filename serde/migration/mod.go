// Package migration defines the resolver that rewrites documents of a type
// that no longer exists, or that has changed shape, into documents of a newer
// type.
//
// A migrator is idempotent in the sense that it returns its input unchanged
// when no rule applies. The caller detects a migration by comparing the bytes.
//
// Documentation Last Review: 18.10.2026
//
package migration

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/polybson"
	"go.mongodb.org/mongo-driver/bson"
)

var promMigrations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "polybson_migrations_total",
	Help: "total number of documents rewritten by a migration rule",
}, []string{"from"})

func init() {
	polybson.PromCollectors = append(polybson.PromCollectors, promMigrations)
}

// Migrator is the interface to implement to migrate documents.
type Migrator interface {
	// Migrate returns the document rewritten to the newer shape, or the same
	// document if no migration applies.
	Migrate(doc bson.Raw) bson.Raw
}

// Identity is a migrator that never migrates.
//
// - implements migration.Migrator
type Identity struct{}

// Migrate implements migration.Migrator. It returns the document.
func (Identity) Migrate(doc bson.Raw) bson.Raw {
	return doc
}

// Chain is a migrator that applies a list of migrators in order.
//
// - implements migration.Migrator
type Chain []Migrator

// Migrate implements migration.Migrator. It gives the output of each migrator
// to the next one.
func (c Chain) Migrate(doc bson.Raw) bson.Raw {
	for _, m := range c {
		doc = m.Migrate(doc)
	}

	return doc
}
