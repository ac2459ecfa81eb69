package httpproto

import "strings"

// HeaderField is one header line in original-case, in the order it was
// added (or first seen, for a request).
type HeaderField struct {
	Name  string
	Value string
}

// Headers is the ordered multimap of spec.md §3: case-insensitive
// lookup, duplicate values joined by ", " in arrival order.
type Headers struct {
	fields []HeaderField
}

// Add appends value to name, joining with ", " if name was already
// present (case-insensitively).
func (h *Headers) Add(name, value string) {
	key := strings.ToLower(name)
	for i := range h.fields {
		if strings.ToLower(h.fields[i].Name) == key {
			h.fields[i].Value = h.fields[i].Value + ", " + value
			return
		}
	}
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Set replaces all values for name with a single value, preserving its
// original position if present, else appending.
func (h *Headers) Set(name, value string) {
	key := strings.ToLower(name)
	for i := range h.fields {
		if strings.ToLower(h.fields[i].Name) == key {
			h.fields[i].Value = value
			return
		}
	}
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Get returns the (possibly joined) value for name, case-insensitively.
func (h *Headers) Get(name string) (string, bool) {
	key := strings.ToLower(name)
	for i := range h.fields {
		if strings.ToLower(h.fields[i].Name) == key {
			return h.fields[i].Value, true
		}
	}
	return "", false
}

// All returns the fields in insertion order.
func (h *Headers) All() []HeaderField {
	return h.fields
}

// Len reports how many distinct header names are stored.
func (h *Headers) Len() int { return len(h.fields) }
