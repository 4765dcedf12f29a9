package controller

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"go.dedis.ch/polybson/serde/object"
	"go.dedis.ch/polybson/serde/registry"
)

// printValue writes the tree of the value with one node per line. A node is
// prefixed by the discriminator of its type.
func printValue(out io.Writer, value interface{}, depth int) {
	pad := strings.Repeat("  ", depth)

	if value == nil {
		fmt.Fprintf(out, "%snull\n", pad)
		return
	}

	obj, ok := value.(*object.CustomObject)
	if ok {
		fmt.Fprintf(out, "%scustom object %q id=%s tags=%v\n", pad, obj.Name, obj.ID, obj.Tags)

		for _, key := range obj.Keys() {
			fmt.Fprintf(out, "%s  %s:\n", pad, key)
			printValue(out, obj.Properties[key], depth+2)
		}

		return
	}

	rv := reflect.ValueOf(value)
	key := registry.KeyOf(rv.Type())

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			fmt.Fprintf(out, "%s%s: %x\n", pad, key, value)
			return
		}

		fmt.Fprintf(out, "%s%s (%d)\n", pad, key, rv.Len())

		for i := 0; i < rv.Len(); i++ {
			printValue(out, rv.Index(i).Interface(), depth+1)
		}
	case reflect.Map:
		fmt.Fprintf(out, "%s%s (%d)\n", pad, key, rv.Len())

		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
		})

		for _, k := range keys {
			fmt.Fprintf(out, "%s  %v:\n", pad, k)
			printValue(out, rv.MapIndex(k).Interface(), depth+2)
		}
	default:
		fmt.Fprintf(out, "%s%s: %+v\n", pad, key, value)
	}
}
