package codec

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"golang.org/x/xerrors"
)

// rawReader is a value reader over a buffered value. The documents and the
// arrays are iterated over slices of the buffer, so that a nested document is
// dispatched without being copied again.
//
// - implements bsonrw.ValueReader
type rawReader struct {
	bsonrw.ValueReader

	value bson.RawValue
}

func newRawReader(value bson.RawValue) rawReader {
	return rawReader{
		ValueReader: bsonrw.NewBSONValueReader(value.Type, value.Value),
		value:       value,
	}
}

// documentReader returns a reader positioned on the document.
func documentReader(raw bson.Raw) bsonrw.ValueReader {
	return newRawReader(bson.RawValue{Type: bsontype.EmbeddedDocument, Value: raw})
}

// Type implements bsonrw.ValueReader.
func (r rawReader) Type() bsontype.Type {
	return r.value.Type
}

// Skip implements bsonrw.ValueReader. The value is already delimited so there
// is nothing to advance.
func (r rawReader) Skip() error {
	return nil
}

// ReadDocument implements bsonrw.ValueReader.
func (r rawReader) ReadDocument() (bsonrw.DocumentReader, error) {
	if r.value.Type != bsontype.EmbeddedDocument {
		return r.ValueReader.ReadDocument()
	}

	elems, err := bson.Raw(r.value.Value).Elements()
	if err != nil {
		return nil, xerrors.Errorf("malformed document: %v", err)
	}

	return &rawDocumentReader{elems: elems}, nil
}

// ReadArray implements bsonrw.ValueReader.
func (r rawReader) ReadArray() (bsonrw.ArrayReader, error) {
	if r.value.Type != bsontype.Array {
		return r.ValueReader.ReadArray()
	}

	values, err := bson.Raw(r.value.Value).Values()
	if err != nil {
		return nil, xerrors.Errorf("malformed array: %v", err)
	}

	return &rawArrayReader{values: values}, nil
}

// rawDocument returns the bytes of the document if the reader is a buffered
// one.
func rawDocument(vr bsonrw.ValueReader) (bson.Raw, bool) {
	r, ok := vr.(rawReader)
	if !ok || r.value.Type != bsontype.EmbeddedDocument {
		return nil, false
	}

	return bson.Raw(r.value.Value), true
}

// rawDocumentReader iterates over the elements of a buffered document.
//
// - implements bsonrw.DocumentReader
type rawDocumentReader struct {
	elems []bson.RawElement
	index int
}

// ReadElement implements bsonrw.DocumentReader.
func (dr *rawDocumentReader) ReadElement() (string, bsonrw.ValueReader, error) {
	if dr.index >= len(dr.elems) {
		return "", nil, bsonrw.ErrEOD
	}

	elem := dr.elems[dr.index]
	dr.index++

	return elem.Key(), newRawReader(elem.Value()), nil
}

// rawArrayReader iterates over the values of a buffered array.
//
// - implements bsonrw.ArrayReader
type rawArrayReader struct {
	values []bson.RawValue
	index  int
}

// ReadValue implements bsonrw.ArrayReader.
func (ar *rawArrayReader) ReadValue() (bsonrw.ValueReader, error) {
	if ar.index >= len(ar.values) {
		return nil, bsonrw.ErrEOA
	}

	value := ar.values[ar.index]
	ar.index++

	return newRawReader(value), nil
}
