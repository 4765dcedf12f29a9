package cli

// ArgsKey is the key of the flag set entry holding the positional arguments.
const ArgsKey = "_args"

// FlagSet is a map-based flag set implementation. It allows one to invoke an
// action without going through a command line parser, and it is what the
// tests provide to the actions.
//
// - implements cli.Flags
type FlagSet map[string]interface{}

// String implements cli.Flags. It returns the string associated with the flag
// name if it is set, otherwise it returns an empty string.
func (fset FlagSet) String(name string) string {
	switch v := fset[name].(type) {
	case string:
		return v
	default:
		return ""
	}
}

// StringSlice implements cli.Flags. It returns the slice of strings associated
// with the flag name if it is set, otherwise it returns nil.
func (fset FlagSet) StringSlice(name string) []string {
	switch v := fset[name].(type) {
	case []string:
		return v
	case []interface{}:
		values := make([]string, 0, len(v))
		for _, elem := range v {
			str, ok := elem.(string)
			if ok {
				values = append(values, str)
			}
		}

		return values
	default:
		return nil
	}
}

// Path implements cli.Flags. It returns the path associated with the flag name
// if it is set, otherwise it returns an empty string.
func (fset FlagSet) Path(name string) string {
	return fset.String(name)
}

// Int implements cli.Flags. It returns the integer associated with the flag if
// it is set, otherwise it returns zero. A float without decimals is accepted.
func (fset FlagSet) Int(name string) int {
	switch v := fset[name].(type) {
	case int:
		return v
	case float64:
		if v != float64(int(v)) {
			return 0
		}

		return int(v)
	default:
		return 0
	}
}

// Bool implements cli.Flags. It returns the boolean associated with the flag
// if it is set, otherwise it returns false.
func (fset FlagSet) Bool(name string) bool {
	v, ok := fset[name].(bool)
	return ok && v
}

// NArg implements cli.Flags. It returns the number of positional arguments.
func (fset FlagSet) NArg() int {
	return len(fset.StringSlice(ArgsKey))
}

// Arg implements cli.Flags. It returns the positional argument at the index if
// it exists, otherwise an empty string.
func (fset FlagSet) Arg(index int) string {
	args := fset.StringSlice(ArgsKey)
	if index < 0 || index >= len(args) {
		return ""
	}

	return args[index]
}
