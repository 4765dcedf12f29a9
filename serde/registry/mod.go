// Package registry defines the type registry and the discriminator convention
// used to tag encoded values with their concrete type.
//
// A registry is populated at startup and is read-mostly afterwards. The
// discriminator of a type is total: any Go type has one. The reverse lookup
// reports a missing type with a false return so that the callers can fall back
// to a generic representation.
//
// Documentation Last Review: 18.10.2026
//
package registry

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.dedis.ch/polybson"
)

// AnyKey is the discriminator of the empty interface, which is the generic base
// of every value.
const AnyKey = "any"

var (
	// AnyType is the type of the empty interface.
	AnyType = reflect.TypeOf((*interface{})(nil)).Elem()

	// TypeType is the type of a type reference.
	TypeType = reflect.TypeOf((*reflect.Type)(nil)).Elem()
)

// builtins are the types that can be resolved without being registered.
var builtins = map[string]reflect.Type{
	AnyKey:         AnyType,
	"bool":         reflect.TypeOf(false),
	"int":          reflect.TypeOf(int(0)),
	"int8":         reflect.TypeOf(int8(0)),
	"int16":        reflect.TypeOf(int16(0)),
	"int32":        reflect.TypeOf(int32(0)),
	"int64":        reflect.TypeOf(int64(0)),
	"uint":         reflect.TypeOf(uint(0)),
	"uint8":        reflect.TypeOf(uint8(0)),
	"uint16":       reflect.TypeOf(uint16(0)),
	"uint32":       reflect.TypeOf(uint32(0)),
	"uint64":       reflect.TypeOf(uint64(0)),
	"uintptr":      reflect.TypeOf(uintptr(0)),
	"float32":      reflect.TypeOf(float32(0)),
	"float64":      reflect.TypeOf(float64(0)),
	"string":       reflect.TypeOf(""),
	"time.Time":    reflect.TypeOf(time.Time{}),
	"reflect.Type": TypeType,
}

// Option is the type of the options to configure a registry.
type Option func(*Registry)

// WithDomain is an option to declare the domain model namespace. Types declared
// in a package under the given path have an abbreviated dotted name that starts
// with the alias.
func WithDomain(path, alias string) Option {
	return func(r *Registry) {
		r.domainPath = strings.TrimSuffix(path, "/")
		r.domainAlias = alias
	}
}

// Registry is a registry of runtime types indexed by their discriminator. It
// also holds the executable members that can be referenced by a delegate.
type Registry struct {
	lock sync.RWMutex

	types   map[string]reflect.Type
	members map[reflect.Type][]*Method

	domainPath  string
	domainAlias string
}

// NewRegistry returns a new registry with the members of this package already
// registered.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		types:   make(map[string]reflect.Type),
		members: make(map[reflect.Type][]*Method),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.Register(&Method{})
	r.Register(Delegate{})

	return r
}

// Register registers the type of the value. A pointer to a named type is
// registered under the discriminator of the named type, so that the pointer is
// what is instantiated when the discriminator is resolved.
func (r *Registry) Register(v interface{}) {
	r.RegisterType(reflect.TypeOf(v))
}

// RegisterType registers the type. Registering an interface type is allowed
// and makes the discriminator resolvable, but such a type cannot be
// instantiated.
func (r *Registry) RegisterType(t reflect.Type) {
	if t == nil {
		return
	}

	key := KeyOf(t)

	r.lock.Lock()
	r.types[key] = t
	r.lock.Unlock()

	polybson.Logger.Trace().Str("key", key).Msg("type registered")
}

// KeyOf returns the discriminator of the type.
func (r *Registry) KeyOf(t reflect.Type) string {
	return KeyOf(t)
}

// Resolve returns the type associated with the discriminator. It first looks
// for a registered type, then for a builtin one, and finally it tries to build
// a composite type from its parts. It returns false when the type is unknown.
func (r *Registry) Resolve(key string) (reflect.Type, bool) {
	r.lock.RLock()
	t, found := r.types[key]
	r.lock.RUnlock()

	if found {
		return t, true
	}

	t, found = builtins[key]
	if found {
		return t, true
	}

	return r.compose(key)
}

// ResolveDomain returns the registered type associated with the abbreviated
// name of a domain type.
func (r *Registry) ResolveDomain(name string) (reflect.Type, bool) {
	if !r.IsDomainName(name) {
		return nil, false
	}

	r.lock.RLock()
	defer r.lock.RUnlock()

	t, found := r.types[r.Expand(name)]

	return t, found
}

// Types returns the discriminators of the registered types in order.
func (r *Registry) Types() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	keys := make([]string, 0, len(r.types))
	for key := range r.types {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// Matching returns the registered types whose generic definition name is the
// base. The package path is not part of the comparison.
func (r *Registry) Matching(base string) []reflect.Type {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var res []reflect.Type
	for _, t := range r.types {
		if baseName(t) == base {
			res = append(res, t)
		}
	}

	sort.Slice(res, func(i, j int) bool {
		return KeyOf(res[i]) < KeyOf(res[j])
	})

	return res
}

// Qualify takes a generic discriminator that is missing its package path and
// returns the qualified one when a single generic definition matches the base
// name. It returns false when zero or several definitions match.
func (r *Registry) Qualify(shorthand string) (string, bool) {
	idx := strings.Index(shorthand, "[")
	if idx <= 0 {
		return "", false
	}

	packages := make(map[string]struct{})
	for _, t := range r.Matching(shorthand[:idx]) {
		packages[elem(t).PkgPath()] = struct{}{}
	}

	if len(packages) != 1 {
		return "", false
	}

	for pkg := range packages {
		if pkg == "" {
			return "", false
		}

		return pkg + "." + shorthand, true
	}

	return "", false
}

// IsDomainName returns true if the name is an abbreviated domain name.
func (r *Registry) IsDomainName(name string) bool {
	return r.domainAlias != "" && strings.HasPrefix(name, r.domainAlias+".")
}

// Abbreviate returns the abbreviated dotted form of the definition name if it
// belongs to the domain namespace, otherwise it returns the name unchanged.
//
// For instance, with the domain "example.com/model" aliased "oM", the name
// "example.com/model/geometry.Point" becomes "oM.geometry.Point".
func (r *Registry) Abbreviate(name string) string {
	if r.domainAlias == "" || !strings.HasPrefix(name, r.domainPath) {
		return name
	}

	rest := strings.TrimPrefix(name, r.domainPath)
	if !strings.HasPrefix(rest, "/") && !strings.HasPrefix(rest, ".") {
		// Another package sharing the same prefix.
		return name
	}

	rest = strings.ReplaceAll(rest[1:], "/", ".")

	return r.domainAlias + "." + rest
}

// Expand is the reverse operation of Abbreviate.
func (r *Registry) Expand(name string) string {
	if !r.IsDomainName(name) {
		return name
	}

	rest := strings.TrimPrefix(name, r.domainAlias+".")

	idx := strings.LastIndex(rest, ".")
	if idx < 0 {
		return r.domainPath + "." + rest
	}

	return r.domainPath + "/" + strings.ReplaceAll(rest[:idx], ".", "/") + rest[idx:]
}

// compose builds unnamed composite types out of the resolution of their
// parts.
func (r *Registry) compose(key string) (reflect.Type, bool) {
	switch {
	case strings.HasPrefix(key, "[]"):
		elem, found := r.Resolve(key[2:])
		if !found {
			return nil, false
		}

		return reflect.SliceOf(elem), true
	case strings.HasPrefix(key, "["):
		end := strings.Index(key, "]")
		if end < 0 {
			return nil, false
		}

		length, err := strconv.Atoi(key[1:end])
		if err != nil || length < 0 {
			return nil, false
		}

		elem, found := r.Resolve(key[end+1:])
		if !found {
			return nil, false
		}

		return reflect.ArrayOf(length, elem), true
	case strings.HasPrefix(key, "*"):
		elem, found := r.Resolve(key[1:])
		if !found {
			return nil, false
		}

		return reflect.PtrTo(elem), true
	case strings.HasPrefix(key, "map["):
		end := closingBracket(key, 3)
		if end < 0 {
			return nil, false
		}

		k, found := r.Resolve(key[4:end])
		if !found || !k.Comparable() {
			return nil, false
		}

		v, found := r.Resolve(key[end+1:])
		if !found {
			return nil, false
		}

		return reflect.MapOf(k, v), true
	}

	return nil, false
}

// KeyOf returns the discriminator of a type. Named types are identified by
// their package path and their name, whereas the unnamed composite types are
// described by their parts.
func KeyOf(t reflect.Type) string {
	if t == nil {
		return ""
	}

	if t == AnyType {
		return AnyKey
	}

	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}

		return t.PkgPath() + "." + t.Name()
	}

	switch t.Kind() {
	case reflect.Ptr:
		if t.Elem().Name() != "" && t.Elem().PkgPath() != "" {
			// Pointers to named types share the discriminator of the type.
			return KeyOf(t.Elem())
		}

		return "*" + KeyOf(t.Elem())
	case reflect.Slice:
		return "[]" + KeyOf(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), KeyOf(t.Elem()))
	case reflect.Map:
		return "map[" + KeyOf(t.Key()) + "]" + KeyOf(t.Elem())
	}

	return t.String()
}

func elem(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Ptr && t.Name() == "" {
		return t.Elem()
	}

	return t
}

// baseName returns the name of the type without the type arguments.
func baseName(t reflect.Type) string {
	name := elem(t).Name()

	idx := strings.Index(name, "[")
	if idx >= 0 {
		return name[:idx]
	}

	return name
}

// closingBracket returns the index of the bracket that closes the one at the
// given index, or -1.
func closingBracket(s string, open int) int {
	depth := 0

	for i := open; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}
