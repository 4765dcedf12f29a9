// Package serde defines the primitives shared by the serialization packages:
// the reserved field names of the encoded documents and the distinguished
// errors.
//
// An encoded value is self-describing. Every value that is neither a bare
// scalar nor nil carries a discriminator that is enough to reconstruct its
// concrete type without external context:
//
//	{"_t": "example.com/model/geometry.Point", "X": 1.0, "Y": 2.0}
//
// A codec that does not write the discriminator by itself is wrapped:
//
//	{"_t": "int", "_v": 42}
//
// Documentation Last Review: 18.10.2026
//
package serde

import "golang.org/x/xerrors"

const (
	// DiscriminatorField is the name of the field holding the discriminator.
	DiscriminatorField = "_t"

	// ValueField is the name of the field wrapping the value written by a
	// codec that is not discriminator-compatible. It is also the field of the
	// payload of a container.
	ValueField = "_v"

	// VersionField is the name of the field holding the schema version. It is
	// only written by the outermost container.
	VersionField = "_version"

	// KeyField is the name of the key of a map entry.
	KeyField = "k"

	// EntryValueField is the name of the value of a map entry.
	EntryValueField = "v"
)

var (
	// ErrUnsupportedWireType is returned when a document contains a wire type
	// that cannot be decoded. It indicates a corrupted or foreign document.
	ErrUnsupportedWireType = xerrors.New("unsupported wire type")

	// ErrCannotInstantiate is returned when the resolved type of a value is
	// abstract or does not match the codec.
	ErrCannotInstantiate = xerrors.New("cannot instantiate")

	// ErrNoCodec is returned when no codec can encode a value.
	ErrNoCodec = xerrors.New("no codec")
)
