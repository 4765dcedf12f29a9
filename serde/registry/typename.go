package registry

import "strings"

// Placeholder is the reserved name of an open type parameter.
const Placeholder = "T"

// TypeName is the name of a type split into the name of its generic definition
// and the ordered list of its type arguments. A non-generic type has no
// arguments.
type TypeName struct {
	Name string
	Args []TypeName
}

// ParseTypeName splits a discriminator into a type name. Only named generic
// types are split: slices, arrays, pointers and maps are kept as a single name
// even if one of their parts is generic.
func ParseTypeName(key string) TypeName {
	if !isGeneric(key) {
		return TypeName{Name: key}
	}

	open := strings.Index(key, "[")

	tn := TypeName{Name: key[:open]}
	for _, arg := range splitArgs(key[open+1 : len(key)-1]) {
		tn.Args = append(tn.Args, ParseTypeName(arg))
	}

	return tn
}

// IsPlaceholder returns true if the name is an open type parameter.
func (tn TypeName) IsPlaceholder() bool {
	return tn.Name == Placeholder && len(tn.Args) == 0
}

// String returns the discriminator of the type name.
func (tn TypeName) String() string {
	if len(tn.Args) == 0 {
		return tn.Name
	}

	args := make([]string, len(tn.Args))
	for i, arg := range tn.Args {
		args[i] = arg.String()
	}

	return tn.Name + "[" + strings.Join(args, ",") + "]"
}

func isGeneric(key string) bool {
	if key == "" || key[0] == '[' || key[0] == '*' || strings.HasPrefix(key, "map[") {
		return false
	}

	open := strings.Index(key, "[")

	return open > 0 && closingBracket(key, open) == len(key)-1
}

// splitArgs splits the type arguments on the commas that are not nested in
// another pair of brackets.
func splitArgs(s string) []string {
	var args []string

	depth := 0
	start := 0

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, s[start:i])
				start = i + 1
			}
		}
	}

	return append(args, s[start:])
}
