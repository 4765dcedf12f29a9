// Package codec implements the polymorphic BSON serializer.
//
// A value of any type is encoded through a dispatcher that looks up the codec
// of its concrete type and tags the output with a discriminator. Decoding
// reads the discriminator first, resolves the type in the registry and then
// delegates to the codec. A discriminator that cannot be resolved goes through
// the migration resolver and, as a last resort, is decoded as a custom object
// so that a decoding never fails because a type is unknown.
//
//	reg := registry.NewRegistry()
//	reg.Register(Point{})
//
//	s := codec.NewSerializer(reg)
//
//	data, err := s.Marshal([]interface{}{Point{X: 1}, int32(2)})
//	value, err := s.Unmarshal(data)
//
// A serializer can be shared between goroutines, but the readers and the
// writers given to EncodeValue and DecodeValue cannot.
//
// Documentation Last Review: 18.10.2026
//
package codec

import (
	"bytes"
	"image"
	"image/color"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/polybson"
	"go.dedis.ch/polybson/serde"
	"go.dedis.ch/polybson/serde/diag"
	"go.dedis.ch/polybson/serde/migration"
	"go.dedis.ch/polybson/serde/object"
	"go.dedis.ch/polybson/serde/registry"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"golang.org/x/xerrors"
)

// maxMigrations is the maximum number of migrations that are chained while
// decoding a single value.
const maxMigrations = 8

var promFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "polybson_fallbacks_total",
	Help: "total number of documents decoded as a custom object because " +
		"their type could not be resolved",
})

func init() {
	polybson.PromCollectors = append(polybson.PromCollectors, promFallbacks)
}

// Codec is the interface to implement to encode and decode a category of
// values.
type Codec interface {
	// Encode writes the value.
	Encode(ctx *Context, vw bsonrw.ValueWriter, value interface{}) error

	// Decode reads a value of the given type. The type is the one resolved by
	// the dispatcher, or the declared type when the codec is used directly.
	Decode(ctx *Context, vr bsonrw.ValueReader, t reflect.Type) (interface{}, error)

	// DiscriminatorCompatible returns true if the codec writes and reads the
	// discriminator of the value by itself. Otherwise the dispatcher wraps the
	// value in a document with the discriminator.
	DiscriminatorCompatible() bool
}

// ArrayHandler is the function called to decode an array when the type of the
// elements is not known.
type ArrayHandler func(ctx *Context, vr bsonrw.ValueReader) (interface{}, error)

type template struct {
	migrator migration.Migrator
	sink     diag.Sink
	version  string
	dynamic  bool
	arrays   ArrayHandler
	codecs   map[reflect.Type]Codec
}

// Option is the type to set some fields when instantiating a serializer.
type Option func(*template)

// WithMigrator is an option to set the migration resolver used to decode the
// documents of unknown types.
func WithMigrator(m migration.Migrator) Option {
	return func(tmpl *template) {
		tmpl.migrator = m
	}
}

// WithSink is an option to set the sink of the diagnostics.
func WithSink(sink diag.Sink) Option {
	return func(tmpl *template) {
		tmpl.sink = sink
	}
}

// WithVersion is an option to set the schema version stamped on the outermost
// container.
func WithVersion(version string) Option {
	return func(tmpl *template) {
		tmpl.version = version
	}
}

// WithDynamicDocuments is an option to enable or disable the decoding of the
// documents without a discriminator into custom objects. When disabled, such a
// document is skipped and decoded as an empty struct.
func WithDynamicDocuments(enabled bool) Option {
	return func(tmpl *template) {
		tmpl.dynamic = enabled
	}
}

// WithArrayHandler is an option to set the function that decodes the arrays
// found where the type of the elements is unknown.
func WithArrayHandler(h ArrayHandler) Option {
	return func(tmpl *template) {
		tmpl.arrays = h
	}
}

// WithCodec is an option to set the codec of a type. It takes precedence over
// the default codecs.
func WithCodec(t reflect.Type, c Codec) Option {
	return func(tmpl *template) {
		tmpl.codecs[t] = c
	}
}

// Serializer encodes and decodes values of any type. It is immutable once
// created.
type Serializer struct {
	registry *registry.Registry
	migrator migration.Migrator
	sink     diag.Sink
	version  string
	dynamic  bool
	arrays   ArrayHandler
	codecs   map[reflect.Type]Codec
}

// NewSerializer returns a serializer using the registry to resolve the
// discriminators. The types handled by the standard codecs are registered.
func NewSerializer(reg *registry.Registry, opts ...Option) *Serializer {
	tmpl := template{
		migrator: migration.Identity{},
		sink:     diag.NewLogSink(polybson.Logger),
		dynamic:  true,
		arrays:   decodeDynamicArray,
		codecs:   make(map[reflect.Type]Codec),
	}

	for t, c := range standardCodecs() {
		tmpl.codecs[t] = c
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	for t := range tmpl.codecs {
		if t != registry.TypeType {
			reg.RegisterType(t)
		}
	}

	reg.Register(&object.CustomObject{})

	return &Serializer{
		registry: reg,
		migrator: tmpl.migrator,
		sink:     tmpl.sink,
		version:  tmpl.version,
		dynamic:  tmpl.dynamic,
		arrays:   tmpl.arrays,
		codecs:   tmpl.codecs,
	}
}

// Registry returns the registry of the serializer.
func (s *Serializer) Registry() *registry.Registry {
	return s.registry
}

// Marshal encodes the value into a root document holding the value under the
// value field.
func (s *Serializer) Marshal(value interface{}) ([]byte, error) {
	buffer := new(bytes.Buffer)

	vw, err := bsonrw.NewBSONValueWriter(buffer)
	if err != nil {
		return nil, xerrors.Errorf("failed to create writer: %v", err)
	}

	dw, err := vw.WriteDocument()
	if err != nil {
		return nil, xerrors.Errorf("failed to write root: %v", err)
	}

	ew, err := dw.WriteDocumentElement(serde.ValueField)
	if err != nil {
		return nil, xerrors.Errorf("failed to write root: %v", err)
	}

	err = s.EncodeValue(ew, value)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode: %w", err)
	}

	err = dw.WriteDocumentEnd()
	if err != nil {
		return nil, xerrors.Errorf("failed to write root: %v", err)
	}

	return buffer.Bytes(), nil
}

// Unmarshal decodes the value of a root document created by Marshal.
func (s *Serializer) Unmarshal(data []byte) (interface{}, error) {
	dr, err := bsonrw.NewBSONDocumentReader(data).ReadDocument()
	if err != nil {
		return nil, xerrors.Errorf("failed to read root: %v", err)
	}

	var value interface{}
	found := false

	for {
		name, vr, err := dr.ReadElement()
		if err == bsonrw.ErrEOD {
			break
		}

		if err != nil {
			return nil, xerrors.Errorf("failed to read root: %v", err)
		}

		if name != serde.ValueField || found {
			err = vr.Skip()
		} else {
			value, err = s.DecodeValue(vr)
			found = true
		}

		if err != nil {
			return nil, xerrors.Errorf("failed to decode: %w", err)
		}
	}

	if !found {
		return nil, xerrors.Errorf("root document has no '%s' field", serde.ValueField)
	}

	return value, nil
}

// EncodeValue writes the value to the writer.
func (s *Serializer) EncodeValue(vw bsonrw.ValueWriter, value interface{}) error {
	return newContext(s).Encode(vw, value)
}

// DecodeValue reads the next value of the reader.
func (s *Serializer) DecodeValue(vr bsonrw.ValueReader) (interface{}, error) {
	return newContext(s).Decode(vr)
}

// Context is the state of a single encoding or decoding. It must not be
// shared between goroutines.
type Context struct {
	*Serializer

	depth      int
	migrations int
}

func newContext(s *Serializer) *Context {
	return &Context{Serializer: s}
}

// Sink returns the sink of the diagnostics.
func (ctx *Context) Sink() diag.Sink {
	return ctx.sink
}

// Outermost returns true if the value currently processed is not nested in
// another value.
func (ctx *Context) Outermost() bool {
	return ctx.depth <= 1
}

// codecFor returns the codec of the type, or nil if none can handle it.
func (s *Serializer) codecFor(t reflect.Type) Codec {
	c, found := s.codecs[t]
	if found {
		return c
	}

	switch {
	case t == registry.AnyType:
		return nil
	case t.Implements(registry.TypeType):
		return typeCodec{}
	case t.Kind() == reflect.Ptr && t.Implements(imageType):
		return imageCodec{}
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return listCodec{}
	case reflect.Map:
		return mapCodec{}
	case reflect.Struct, reflect.Interface:
		return classCodec{}
	case reflect.Ptr:
		if t.Elem().Kind() == reflect.Struct {
			return classCodec{}
		}
	case reflect.Bool, reflect.String, reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64, reflect.Uintptr:
		return scalarCodec{}
	}

	return nil
}

func standardCodecs() map[reflect.Type]Codec {
	codecs := map[reflect.Type]Codec{
		reflect.TypeOf(color.RGBA{}):            colorCodec{},
		reflect.TypeOf(color.NRGBA{}):           colorCodec{},
		reflect.TypeOf(&image.RGBA{}):           imageCodec{},
		reflect.TypeOf(&image.NRGBA{}):          imageCodec{},
		reflect.TypeOf(&image.Gray{}):           imageCodec{},
		reflect.TypeOf(&image.Paletted{}):       imageCodec{},
		registry.TypeType:                       typeCodec{},
		reflect.TypeOf(&registry.Method{}):      methodCodec{},
		reflect.TypeOf(registry.Delegate{}):     delegateCodec{},
		reflect.TypeOf(&object.CustomObject{}): dynamicCodec{},
	}

	for _, t := range wrappedScalars {
		codecs[t] = scalarCodec{}
	}

	return codecs
}
