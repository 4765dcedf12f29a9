package codec

import (
	"fmt"
	"reflect"

	"go.dedis.ch/polybson/serde"
	"go.dedis.ch/polybson/serde/registry"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"golang.org/x/xerrors"
)

const (
	nameField       = "Name"
	argumentsField  = "GenericArguments"
	declaringField  = "DeclaringType"
	parametersField = "Parameters"
	methodField     = "Method"
	targetField     = "Target"
)

var (
	methodKey   = registry.KeyOf(reflect.TypeOf(&registry.Method{}))
	delegateKey = registry.KeyOf(reflect.TypeOf(registry.Delegate{}))
)

// typeCodec is the codec of the type references. A generic type is written as
// the name of its definition and the list of its type arguments. The names of
// the domain types are abbreviated. A nil type is written with an empty name.
//
// - implements codec.Codec
type typeCodec struct{}

// Encode implements codec.Codec.
func (typeCodec) Encode(ctx *Context, vw bsonrw.ValueWriter, value interface{}) error {
	t, _ := value.(reflect.Type)

	return writeTypeName(vw, nameOfType(ctx, t), true)
}

// Decode implements codec.Codec. It returns nil for the empty name and for an
// open type parameter, and also when the type cannot be resolved in which case
// an error is recorded.
func (typeCodec) Decode(ctx *Context, vr bsonrw.ValueReader, t reflect.Type) (interface{}, error) {
	tn, err := readTypeName(vr)
	if err != nil {
		return nil, err
	}

	res := resolveTypeName(ctx, tn)
	if res == nil {
		return nil, nil
	}

	return res, nil
}

// DiscriminatorCompatible implements codec.Codec. The type reference writes
// its own discriminator.
func (typeCodec) DiscriminatorCompatible() bool {
	return true
}

// methodCodec is the codec of the method references. A method is identified
// by its declaring type, its name and the types of its parameters. A generic
// method is written as its open definition.
//
// - implements codec.Codec
type methodCodec struct{}

// Encode implements codec.Codec.
func (methodCodec) Encode(ctx *Context, vw bsonrw.ValueWriter, value interface{}) error {
	m, ok := value.(*registry.Method)
	if !ok {
		return xerrors.Errorf("type %T: %w", value, serde.ErrNoCodec)
	}

	if m == nil {
		return vw.WriteNull()
	}

	def := m.Definition()

	dw, err := vw.WriteDocument()
	if err != nil {
		return xerrors.Errorf("failed to write method: %v", err)
	}

	err = writeDiscriminator(dw, methodKey)
	if err != nil {
		return err
	}

	ew, err := dw.WriteDocumentElement(declaringField)
	if err != nil {
		return xerrors.Errorf("failed to write declaring type: %v", err)
	}

	err = writeTypeName(ew, nameOfType(ctx, def.DeclaringType), false)
	if err != nil {
		return err
	}

	ew, err = dw.WriteDocumentElement(nameField)
	if err != nil {
		return xerrors.Errorf("failed to write name: %v", err)
	}

	err = ew.WriteString(def.Name)
	if err != nil {
		return xerrors.Errorf("failed to write name: %v", err)
	}

	ew, err = dw.WriteDocumentElement(parametersField)
	if err != nil {
		return xerrors.Errorf("failed to write parameters: %v", err)
	}

	aw, err := ew.WriteArray()
	if err != nil {
		return xerrors.Errorf("failed to write parameters: %v", err)
	}

	for _, param := range def.Params {
		pw, err := aw.WriteArrayElement()
		if err != nil {
			return xerrors.Errorf("failed to write parameter: %v", err)
		}

		tn := registry.TypeName{Name: registry.Placeholder}
		if param != nil {
			tn = nameOfType(ctx, param)
		}

		err = writeTypeName(pw, tn, false)
		if err != nil {
			return err
		}
	}

	err = aw.WriteArrayEnd()
	if err != nil {
		return xerrors.Errorf("failed to write parameters: %v", err)
	}

	return dw.WriteDocumentEnd()
}

// Decode implements codec.Codec. It looks for the member with the exact same
// parameters in the registry. When none is found, an error is recorded and nil
// is returned.
func (methodCodec) Decode(ctx *Context, vr bsonrw.ValueReader, t reflect.Type) (interface{}, error) {
	if vr.Type() == bsontype.Null {
		return nil, vr.ReadNull()
	}

	dr, err := vr.ReadDocument()
	if err != nil {
		return nil, xerrors.Errorf("failed to read method: %v", err)
	}

	var declaring registry.TypeName
	var name string
	var params []registry.TypeName

	for {
		field, fr, err := dr.ReadElement()
		if err == bsonrw.ErrEOD {
			break
		}

		if err != nil {
			return nil, xerrors.Errorf("failed to read method: %v", err)
		}

		switch field {
		case declaringField:
			declaring, err = readTypeName(fr)
		case nameField:
			name, err = fr.ReadString()
		case parametersField:
			err = readArray(fr, func(ev bsonrw.ValueReader) error {
				tn, err := readTypeName(ev)
				params = append(params, tn)
				return err
			})
		default:
			err = fr.Skip()
		}

		if err != nil {
			return nil, xerrors.Errorf("failed to read '%s': %v", field, err)
		}
	}

	declaringType := resolveTypeName(ctx, declaring)
	if declaringType == nil {
		ctx.sink.Error(fmt.Sprintf("method '%s' has no declaring type", name))
		return nil, nil
	}

	paramTypes := make([]reflect.Type, len(params))
	for i, param := range params {
		paramTypes[i] = resolveTypeName(ctx, param)
	}

	m, err := ctx.registry.FindMethod(declaringType, name, paramTypes)
	if err != nil {
		ctx.sink.Error(fmt.Sprintf("method cannot be resolved: %v", err))
		return nil, nil
	}

	return m, nil
}

// DiscriminatorCompatible implements codec.Codec. The method writes its own
// discriminator.
func (methodCodec) DiscriminatorCompatible() bool {
	return true
}

// delegateCodec is the codec of the delegates. The method and the target are
// written in one document, the target with its own type.
//
// - implements codec.Codec
type delegateCodec struct{}

// Encode implements codec.Codec.
func (delegateCodec) Encode(ctx *Context, vw bsonrw.ValueWriter, value interface{}) error {
	d, ok := value.(registry.Delegate)
	if !ok {
		return xerrors.Errorf("type %T: %w", value, serde.ErrNoCodec)
	}

	dw, err := vw.WriteDocument()
	if err != nil {
		return xerrors.Errorf("failed to write delegate: %v", err)
	}

	err = writeDiscriminator(dw, delegateKey)
	if err != nil {
		return err
	}

	ew, err := dw.WriteDocumentElement(methodField)
	if err != nil {
		return xerrors.Errorf("failed to write method: %v", err)
	}

	err = methodCodec{}.Encode(ctx, ew, d.Method)
	if err != nil {
		return xerrors.Errorf("failed to encode method: %w", err)
	}

	ew, err = dw.WriteDocumentElement(targetField)
	if err != nil {
		return xerrors.Errorf("failed to write target: %v", err)
	}

	err = ctx.Encode(ew, d.Target)
	if err != nil {
		return xerrors.Errorf("failed to encode target: %w", err)
	}

	return dw.WriteDocumentEnd()
}

// Decode implements codec.Codec. A method that cannot be resolved leaves the
// delegate without method.
func (delegateCodec) Decode(ctx *Context, vr bsonrw.ValueReader, t reflect.Type) (interface{}, error) {
	dr, err := vr.ReadDocument()
	if err != nil {
		return nil, xerrors.Errorf("failed to read delegate: %v", err)
	}

	d := registry.Delegate{}

	for {
		field, fr, err := dr.ReadElement()
		if err == bsonrw.ErrEOD {
			break
		}

		if err != nil {
			return nil, xerrors.Errorf("failed to read delegate: %v", err)
		}

		switch field {
		case methodField:
			var m interface{}
			m, err = methodCodec{}.Decode(ctx, fr, nil)
			d.Method, _ = m.(*registry.Method)
		case targetField:
			d.Target, err = ctx.Decode(fr)
		default:
			err = fr.Skip()
		}

		if err != nil {
			return nil, xerrors.Errorf("failed to decode '%s': %w", field, err)
		}
	}

	return d, nil
}

// DiscriminatorCompatible implements codec.Codec. The delegate writes its own
// discriminator.
func (delegateCodec) DiscriminatorCompatible() bool {
	return true
}

// nameOfType returns the name of the type where the names of the domain types
// are abbreviated.
func nameOfType(ctx *Context, t reflect.Type) registry.TypeName {
	if t == nil {
		return registry.TypeName{}
	}

	return abbreviate(ctx.registry, registry.ParseTypeName(registry.KeyOf(t)))
}

func abbreviate(reg *registry.Registry, tn registry.TypeName) registry.TypeName {
	res := registry.TypeName{Name: reg.Abbreviate(tn.Name)}
	for _, arg := range tn.Args {
		res.Args = append(res.Args, abbreviate(reg, arg))
	}

	return res
}

func expand(reg *registry.Registry, tn registry.TypeName) registry.TypeName {
	res := registry.TypeName{Name: reg.Expand(tn.Name)}
	for _, arg := range tn.Args {
		res.Args = append(res.Args, expand(reg, arg))
	}

	return res
}

// resolveTypeName returns the type of the name, or nil if the name is empty,
// is an open type parameter or cannot be resolved. An error is recorded in the
// last case.
func resolveTypeName(ctx *Context, tn registry.TypeName) reflect.Type {
	if tn.Name == "" || tn.IsPlaceholder() {
		return nil
	}

	var t reflect.Type
	var found bool

	if len(tn.Args) == 0 && ctx.registry.IsDomainName(tn.Name) {
		t, found = ctx.registry.ResolveDomain(tn.Name)
	} else {
		t, found = ctx.registry.Resolve(expand(ctx.registry, tn).String())
	}

	if !found {
		ctx.sink.Error(fmt.Sprintf("type '%s' cannot be resolved", tn))
		return nil
	}

	return t
}

// writeTypeName writes the document of a type name. The discriminator is only
// written when the document is a value of its own.
func writeTypeName(vw bsonrw.ValueWriter, tn registry.TypeName, discriminator bool) error {
	dw, err := vw.WriteDocument()
	if err != nil {
		return xerrors.Errorf("failed to write type: %v", err)
	}

	if discriminator {
		err = writeDiscriminator(dw, registry.KeyOf(registry.TypeType))
		if err != nil {
			return err
		}
	}

	ew, err := dw.WriteDocumentElement(nameField)
	if err != nil {
		return xerrors.Errorf("failed to write name: %v", err)
	}

	err = ew.WriteString(tn.Name)
	if err != nil {
		return xerrors.Errorf("failed to write name: %v", err)
	}

	if len(tn.Args) > 0 {
		ew, err = dw.WriteDocumentElement(argumentsField)
		if err != nil {
			return xerrors.Errorf("failed to write arguments: %v", err)
		}

		aw, err := ew.WriteArray()
		if err != nil {
			return xerrors.Errorf("failed to write arguments: %v", err)
		}

		for _, arg := range tn.Args {
			ew, err := aw.WriteArrayElement()
			if err != nil {
				return xerrors.Errorf("failed to write argument: %v", err)
			}

			err = writeTypeName(ew, arg, false)
			if err != nil {
				return err
			}
		}

		err = aw.WriteArrayEnd()
		if err != nil {
			return xerrors.Errorf("failed to write arguments: %v", err)
		}
	}

	return dw.WriteDocumentEnd()
}

func readTypeName(vr bsonrw.ValueReader) (registry.TypeName, error) {
	tn := registry.TypeName{}

	if vr.Type() == bsontype.Null {
		return tn, vr.ReadNull()
	}

	dr, err := vr.ReadDocument()
	if err != nil {
		return tn, xerrors.Errorf("failed to read type: %v", err)
	}

	for {
		field, fr, err := dr.ReadElement()
		if err == bsonrw.ErrEOD {
			return tn, nil
		}

		if err != nil {
			return tn, xerrors.Errorf("failed to read type: %v", err)
		}

		switch field {
		case nameField:
			tn.Name, err = fr.ReadString()
		case argumentsField:
			err = readArray(fr, func(ev bsonrw.ValueReader) error {
				arg, err := readTypeName(ev)
				tn.Args = append(tn.Args, arg)
				return err
			})
		default:
			err = fr.Skip()
		}

		if err != nil {
			return tn, xerrors.Errorf("failed to read '%s': %v", field, err)
		}
	}
}
