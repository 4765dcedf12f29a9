// Package object defines the open-schema object used as the universal fallback
// representation of a decoded document.
package object

import (
	"sort"

	"github.com/rs/xid"
)

// Reserved property names that are lifted to the fields of a custom object.
const (
	NameProperty = "Name"
	TagsProperty = "Tags"
	IDProperty   = "_id"
)

// CustomObject is an object without a fixed schema. It has a name, a set of
// tags, a unique identifier and an open map of properties.
type CustomObject struct {
	ID         xid.ID
	Name       string
	Tags       []string
	Properties map[string]interface{}
}

// NewCustomObject returns a new empty object with a fresh identifier.
func NewCustomObject(name string, tags ...string) *CustomObject {
	obj := &CustomObject{
		ID:         xid.New(),
		Name:       name,
		Properties: make(map[string]interface{}),
	}

	for _, tag := range tags {
		obj.AddTag(tag)
	}

	return obj
}

// IsReserved returns true if the property name is lifted to a field.
func IsReserved(name string) bool {
	return name == NameProperty || name == TagsProperty || name == IDProperty
}

// AddTag adds the tag to the set. The tags are kept sorted.
func (o *CustomObject) AddTag(tag string) {
	idx := sort.SearchStrings(o.Tags, tag)
	if idx < len(o.Tags) && o.Tags[idx] == tag {
		return
	}

	o.Tags = append(o.Tags, "")
	copy(o.Tags[idx+1:], o.Tags[idx:])
	o.Tags[idx] = tag
}

// HasTag returns true if the tag is in the set.
func (o *CustomObject) HasTag(tag string) bool {
	idx := sort.SearchStrings(o.Tags, tag)
	return idx < len(o.Tags) && o.Tags[idx] == tag
}

// Get returns the value of the property and true if it exists. Reserved names
// return the corresponding field.
func (o *CustomObject) Get(name string) (interface{}, bool) {
	switch name {
	case NameProperty:
		return o.Name, true
	case TagsProperty:
		return o.Tags, true
	case IDProperty:
		return o.ID, true
	}

	value, found := o.Properties[name]

	return value, found
}

// Set sets the value of the property. Setting a reserved name updates the
// field if the value has the right type, and is ignored otherwise.
func (o *CustomObject) Set(name string, value interface{}) {
	switch name {
	case NameProperty:
		if v, ok := value.(string); ok {
			o.Name = v
		}
	case TagsProperty:
		if v, ok := value.([]string); ok {
			o.Tags = nil
			for _, tag := range v {
				o.AddTag(tag)
			}
		}
	case IDProperty:
		if v, ok := value.(xid.ID); ok {
			o.ID = v
		}
	default:
		if o.Properties == nil {
			o.Properties = make(map[string]interface{})
		}

		o.Properties[name] = value
	}
}

// Keys returns the names of the open properties in order.
func (o *CustomObject) Keys() []string {
	keys := make([]string, 0, len(o.Properties))
	for key := range o.Properties {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
