package item

import "strings"

// ReservedPrefix marks record keys owned by the hosting framework. They are
// stripped before a selection is published.
const ReservedPrefix = "$$"

// BlankDisplayName replaces empty names when rendering.
const BlankDisplayName = "------"

// Accessor extracts display names and values from items.
type Accessor struct {
	NameProperty  string // Record field holding the display name
	ValueProperty string // Record field holding the value; "" means unset
}

// DefaultAccessor matches name/value pair records.
func DefaultAccessor() Accessor {
	return Accessor{NameProperty: "name", ValueProperty: "value"}
}

// Name returns the display name of it. Records without the name field fall
// back to their default string form. Nil items yield "" and must be guarded
// by the caller.
func (a Accessor) Name(it Item) string {
	switch {
	case it.IsNil():
		return ""
	case it.kind != KindRecord:
		return it.String()
	}
	if a.NameProperty != "" {
		if v, ok := it.rec[a.NameProperty]; ok && v != nil {
			return FromAny(v).String()
		}
	}
	return it.String()
}

// DisplayName is Name for rendering: blank names become BlankDisplayName.
func (a Accessor) DisplayName(it Item) string {
	name := a.Name(it)
	if strings.TrimSpace(name) == "" {
		return BlankDisplayName
	}
	return name
}

// Value returns the value of it. Primitives are their own value; records
// read ValueProperty and yield Null when it is unset or absent.
func (a Accessor) Value(it Item) Item {
	switch {
	case it.kind == KindUndefined:
		return it
	case it.kind != KindRecord:
		return it
	case a.ValueProperty == "":
		return Null()
	}
	v, ok := it.rec[a.ValueProperty]
	if !ok {
		return Null()
	}
	return FromAny(v)
}
