package codec

import (
	"bytes"
	"fmt"
	"strings"

	"go.dedis.ch/polybson"
	"go.dedis.ch/polybson/serde"
	"go.dedis.ch/polybson/serde/registry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
	"golang.org/x/xerrors"
)

// fallback decodes a document whose type cannot be resolved, or whose type
// has changed shape. The document is submitted to the migrator until it
// produces a document of a known type, and the number of chained migrations
// is bounded so that a cycle in the rules terminates. When nothing can be
// decoded, the origin is decoded as a custom object and a warning names its
// discriminator.
func (ctx *Context) fallback(raw bson.Raw, key string, from origin) (interface{}, error) {
	current := raw

	for i := 0; i < maxMigrations && ctx.migrations < maxMigrations; i++ {
		next, err := ctx.migrate(current)
		if err != nil {
			polybson.Logger.Debug().Err(err).Str("key", key).Msg("migration failed")
			break
		}

		if bytes.Equal(next, current) {
			break
		}

		nextKey, found := discriminatorOf(next)
		if !found {
			nextKey = registry.AnyKey
		}

		_, found = ctx.registry.Resolve(nextKey)
		if found {
			polybson.Logger.Trace().
				Str("from", key).
				Str("to", nextKey).
				Msg("document migrated")

			ctx.migrations++
			defer func() { ctx.migrations-- }()

			return ctx.decodeAs(next, nextKey, from)
		}

		current = next
	}

	ctx.sink.Warn(fmt.Sprintf("type '%s' cannot be resolved: decoded as a custom object", from.key))
	promFallbacks.Inc()

	return dynamicCodec{}.Decode(ctx, documentReader(from.raw), registry.AnyType)
}

// migrate submits the document to the migrator. A generic discriminator that
// is still unknown after the migration is qualified with the package path of
// the single definition matching its name.
func (ctx *Context) migrate(raw bson.Raw) (bson.Raw, error) {
	migrated := ctx.migrator.Migrate(raw)
	if migrated == nil {
		return raw, nil
	}

	key, found := discriminatorOf(migrated)
	if !found || !strings.Contains(key, "[") {
		return migrated, nil
	}

	_, found = ctx.registry.Resolve(key)
	if found {
		return migrated, nil
	}

	qualified, found := ctx.registry.Qualify(key)
	if !found {
		return migrated, nil
	}

	return withDiscriminator(migrated, qualified)
}

// withDiscriminator returns a copy of the document where the discriminator is
// replaced.
func withDiscriminator(raw bson.Raw, key string) (bson.Raw, error) {
	elems, err := raw.Elements()
	if err != nil {
		return nil, xerrors.Errorf("malformed document: %v", err)
	}

	idx, out := bsoncore.AppendDocumentStart(nil)
	out = bsoncore.AppendStringElement(out, serde.DiscriminatorField, key)

	for _, elem := range elems {
		if elem.Key() == serde.DiscriminatorField {
			continue
		}

		out = append(out, elem...)
	}

	out, err = bsoncore.AppendDocumentEnd(out, idx)
	if err != nil {
		return nil, xerrors.Errorf("failed to close document: %v", err)
	}

	return out, nil
}
