package control

import "github.com/runger/singleselect/internal/item"

// Sync projects selected into the value published to the binding.
//
// ok is false while options is empty so that a loading list never clobbers
// the bound value. Framework-reserved keys are stripped; records publish
// their value field when a value property is configured, otherwise the
// whole cleaned record.
func Sync(acc item.Accessor, selected item.Item, options []item.Item) (item.Item, bool) {
	if len(options) == 0 {
		return item.Item{}, false
	}
	if selected.IsNil() {
		return item.Null(), true
	}
	cleaned := item.Clean(selected, item.ReservedPrefix)
	if cleaned.Kind() == item.KindRecord && acc.ValueProperty != "" {
		v, ok := cleaned.Field(acc.ValueProperty)
		if !ok {
			return item.Null(), true
		}
		return v, true
	}
	return cleaned, true
}
