package control

import "github.com/runger/singleselect/internal/item"

// Resolve maps candidate onto the canonical option in options.
//
// ok is false, and the selection must stay as it is, when options is empty
// or candidate is Undefined. A Null candidate, or one with no matching
// option, resolves to Null.
//
// Records match by value when both sides carry one, otherwise by display
// name. Primitives match by value only. The first match in list order wins.
func Resolve(acc item.Accessor, candidate item.Item, options []item.Item) (item.Item, bool) {
	if len(options) == 0 || !candidate.IsDefined() {
		return item.Item{}, false
	}
	if candidate.IsNil() {
		return item.Null(), true
	}

	if candidate.Kind() == item.KindRecord {
		value := acc.Value(candidate)
		name := acc.Name(candidate)
		for _, opt := range options {
			optValue := acc.Value(opt)
			if !value.IsNil() && !optValue.IsNil() {
				if item.Equal(value, optValue) {
					return opt, true
				}
				continue
			}
			if name != "" {
				if optName := acc.Name(opt); optName != "" && optName == name {
					return opt, true
				}
			}
		}
		return item.Null(), true
	}

	for _, opt := range options {
		if item.Equal(acc.Value(opt), candidate) {
			return opt, true
		}
	}
	return item.Null(), true
}
