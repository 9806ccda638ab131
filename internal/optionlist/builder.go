// Package optionlist builds the candidate option list a single-select
// control offers: deduplicated by display name and optionally sorted.
package optionlist

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/runger/singleselect/internal/item"
)

// DefaultPlaceholders are shown in designer mode when no data is available.
var DefaultPlaceholders = [3]string{"Option 1", "Option 2", "Option 3"}

// Builder materializes option lists. A Builder is not safe for concurrent
// use: the collator keeps internal buffers.
type Builder struct {
	acc          item.Accessor
	collator     *collate.Collator
	placeholders [3]string
}

// Option configures a Builder.
type Option func(*Builder)

// WithLocale sets the locale used to compare display names.
func WithLocale(tag language.Tag) Option {
	return func(b *Builder) {
		b.collator = collate.New(tag)
	}
}

// WithPlaceholders overrides the designer-mode placeholder names.
func WithPlaceholders(first, second, third string) Option {
	return func(b *Builder) {
		b.placeholders = [3]string{first, second, third}
	}
}

// NewBuilder creates a Builder reading names through acc.
func NewBuilder(acc item.Accessor, opts ...Option) *Builder {
	b := &Builder{
		acc:          acc,
		placeholders: DefaultPlaceholders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.collator == nil {
		b.collator = collate.New(language.English)
	}
	return b
}

// SetAccessor replaces the accessor used for names.
func (b *Builder) SetAccessor(acc item.Accessor) {
	b.acc = acc
}

// Source describes where the raw items of a rebuild come from.
type Source struct {
	Static    []item.Item // Configured selection list
	UseStatic bool        // Whether a selection list is configured
	Results   []item.Item // Latest remote lookup result
	Designer  bool        // Preview mode without real data
}

// Raw picks the raw items for a rebuild: a non-empty static list wins over
// the lookup results. In designer mode an empty source is replaced by the
// placeholders, in the order option 2, option 1, option 3.
func (b *Builder) Raw(src Source) []item.Item {
	var raw []item.Item
	if src.UseStatic && len(src.Static) > 0 {
		raw = src.Static
	} else {
		raw = src.Results
	}
	if src.Designer && len(raw) == 0 {
		raw = []item.Item{
			item.String(b.placeholders[1]),
			item.String(b.placeholders[0]),
			item.String(b.placeholders[2]),
		}
	}
	return raw
}

// Build deduplicates raw and, unless disableSort is set, sorts the result.
// The returned slice and its records are fresh copies.
func (b *Builder) Build(raw []item.Item, disableSort bool) []item.Item {
	list := b.Dedupe(raw)
	if !disableSort {
		sort.SliceStable(list, func(i, j int) bool {
			return b.Compare(list[i], list[j]) < 0
		})
	}
	return list
}

// Dedupe keeps the first item for every display name, in source order.
func (b *Builder) Dedupe(raw []item.Item) []item.Item {
	out := make([]item.Item, 0, len(raw))
	for _, candidate := range raw {
		name := b.acc.Name(candidate)
		found := false
		for _, kept := range out {
			if b.acc.Name(kept) == name {
				found = true
				break
			}
		}
		if !found {
			out = append(out, candidate.Clone())
		}
	}
	return out
}

// Compare orders two items: numerically when both are numbers,
// chronologically when both are dates, otherwise by locale-aware display
// name. It returns 0 when either name is empty.
func (b *Builder) Compare(x, y item.Item) int {
	if xn, ok := x.Num(); ok {
		if yn, ok := y.Num(); ok {
			return compareOrdered(xn, yn)
		}
	}
	if xt, ok := x.Time(); ok {
		if yt, ok := y.Time(); ok {
			return xt.Compare(yt)
		}
	}
	xName, yName := b.acc.Name(x), b.acc.Name(y)
	if xName == "" || yName == "" {
		return 0
	}
	return b.collator.CompareString(xName, yName)
}

func compareOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case b < a:
		return 1
	}
	return 0
}
