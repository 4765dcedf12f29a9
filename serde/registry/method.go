package registry

import (
	"fmt"
	"reflect"

	"golang.org/x/xerrors"
)

// ConstructorName is the reserved member name of the constructors of a type.
const ConstructorName = ".ctor"

// Instantiator closes a generic method over the type arguments and returns the
// resulting function.
type Instantiator func(args []reflect.Type) (interface{}, error)

// Method is an executable member of a type that can be referenced by a
// delegate. A generic method has a nil entry in its parameters for each open
// type parameter, and is closed when resolved.
type Method struct {
	DeclaringType reflect.Type
	Name          string
	Params        []reflect.Type
	Func          reflect.Value

	constraints []reflect.Type
	instantiate Instantiator
	open        *Method
}

// IsGeneric returns true if the method has open type parameters.
func (m *Method) IsGeneric() bool {
	return m.instantiate != nil
}

// Definition returns the open generic method the method has been closed from,
// or the method itself.
func (m *Method) Definition() *Method {
	if m.open != nil {
		return m.open
	}

	return m
}

// String implements fmt.Stringer.
func (m *Method) String() string {
	return fmt.Sprintf("%s.%s%v", KeyOf(m.DeclaringType), m.Name, m.Params)
}

// Delegate is a reference to a method optionally bound to a receiver. When the
// target is set, it is passed as the first argument of the method.
type Delegate struct {
	Method *Method
	Target interface{}
}

// Invoke calls the method of the delegate with the arguments and returns the
// results.
func (d Delegate) Invoke(args ...interface{}) ([]interface{}, error) {
	if d.Method == nil || !d.Method.Func.IsValid() {
		return nil, xerrors.New("delegate has no method")
	}

	if d.Target != nil {
		args = append([]interface{}{d.Target}, args...)
	}

	fnType := d.Method.Func.Type()
	if len(args) != fnType.NumIn() {
		return nil, xerrors.Errorf("expected %d arguments but got %d",
			fnType.NumIn(), len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		if arg == nil {
			in[i] = reflect.Zero(fnType.In(i))
			continue
		}

		value := reflect.ValueOf(arg)
		if !value.Type().AssignableTo(fnType.In(i)) {
			return nil, xerrors.Errorf("argument %d: %v is not assignable to %v",
				i, value.Type(), fnType.In(i))
		}

		in[i] = value
	}

	out := d.Method.Func.Call(in)

	res := make([]interface{}, len(out))
	for i, value := range out {
		res[i] = value.Interface()
	}

	return res, nil
}

// RegisterMethod registers the function as a member of the declaring type. The
// parameters of the member are the parameters of the function. It panics if
// the value is not a function.
func (r *Registry) RegisterMethod(declaring reflect.Type, name string, fn interface{}) *Method {
	value := reflect.ValueOf(fn)
	if value.Kind() != reflect.Func {
		panic(fmt.Sprintf("member '%s' must be a function but got %T", name, fn))
	}

	params := make([]reflect.Type, value.Type().NumIn())
	for i := range params {
		params[i] = value.Type().In(i)
	}

	m := &Method{
		DeclaringType: declaring,
		Name:          name,
		Params:        params,
		Func:          value,
	}

	r.addMember(m)

	return m
}

// RegisterConstructor registers the function as a constructor of the declaring
// type.
func (r *Registry) RegisterConstructor(declaring reflect.Type, fn interface{}) *Method {
	return r.RegisterMethod(declaring, ConstructorName, fn)
}

// RegisterGenericMethod registers a generic member. The parameters use a nil
// entry for each open type parameter, and the constraints give the type used
// to close each type parameter, or nil when it is unconstrained.
func (r *Registry) RegisterGenericMethod(declaring reflect.Type, name string,
	params, constraints []reflect.Type, fn Instantiator) *Method {

	m := &Method{
		DeclaringType: declaring,
		Name:          name,
		Params:        params,
		constraints:   constraints,
		instantiate:   fn,
	}

	r.addMember(m)

	return m
}

// Members returns the members of the declaring type with the given name.
func (r *Registry) Members(declaring reflect.Type, name string) []*Method {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var res []*Method
	for _, m := range r.members[declaring] {
		if m.Name == name {
			res = append(res, m)
		}
	}

	return res
}

// FindMethod looks for the member of the declaring type that has exactly the
// given parameters. A nil parameter matches an open type parameter. A generic
// member is closed before being returned.
func (r *Registry) FindMethod(declaring reflect.Type, name string,
	params []reflect.Type) (*Method, error) {

	for _, m := range r.Members(declaring, name) {
		if !sameParams(m.Params, params) {
			continue
		}

		if !m.IsGeneric() {
			return m, nil
		}

		closed, err := m.close()
		if err != nil {
			return nil, xerrors.Errorf("failed to close '%s': %v", name, err)
		}

		return closed, nil
	}

	return nil, xerrors.Errorf("member '%s' of '%s' with parameters %v not found",
		name, KeyOf(declaring), params)
}

func (r *Registry) addMember(m *Method) {
	r.lock.Lock()
	r.members[m.DeclaringType] = append(r.members[m.DeclaringType], m)
	r.lock.Unlock()
}

// close instantiates the generic method with the first constraint of each type
// parameter, or the empty interface when the parameter is unconstrained.
func (m *Method) close() (*Method, error) {
	args := make([]reflect.Type, len(m.constraints))
	for i, constraint := range m.constraints {
		args[i] = constraint
		if constraint == nil {
			args[i] = AnyType
		}
	}

	fn, err := m.instantiate(args)
	if err != nil {
		return nil, err
	}

	value := reflect.ValueOf(fn)
	if value.Kind() != reflect.Func {
		return nil, xerrors.Errorf("instantiation returned %T", fn)
	}

	params := make([]reflect.Type, value.Type().NumIn())
	for i := range params {
		params[i] = value.Type().In(i)
	}

	closed := &Method{
		DeclaringType: m.DeclaringType,
		Name:          m.Name,
		Params:        params,
		Func:          value,
		open:          m,
	}

	return closed, nil
}

func sameParams(a, b []reflect.Type) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
