package control

import (
	"reflect"
	"sync"

	"github.com/runger/singleselect/internal/item"
)

// Option names watched by a Control.
const (
	OptSelectionList     = "selectionList"
	OptSelectionService  = "selectionService"
	OptServiceInputText  = "selectionServiceInputText"
	OptDisplayNameProp   = "displayNameProperty"
	OptValueProperty     = "valueProperty"
	OptDisableSort       = "disableSort"
	OptTextSize          = "textSize"
	defaultNameProperty  = "name"
	defaultValueProperty = "value"
)

// Options is the host's configuration accessor.
type Options interface {
	// Get returns the option value, or def when it is not set.
	Get(name string, def any) any

	// Watch registers fn to run whenever the option changes. When fireNow
	// is set fn also runs once immediately.
	Watch(name string, def any, fn func(), fireNow bool)
}

// SelectionList is a statically configured source of items. When set it
// takes priority over the selection service.
type SelectionList struct {
	Items []item.Item

	// SelectedIndex picks the initial selection when no binding exists;
	// -1 means none.
	SelectedIndex int

	// SelectedIndices records the index chosen through Control.Selected.
	SelectedIndices []int
}

// NewSelectionList creates a SelectionList without an initial selection.
func NewSelectionList(items ...item.Item) *SelectionList {
	return &SelectionList{Items: items, SelectedIndex: -1}
}

// OptionSet is an in-memory Options implementation. Set fires the option's
// watchers when the value changes.
type OptionSet struct {
	mu       sync.Mutex
	values   map[string]any
	watchers map[string][]func()
}

// Compile-time check that OptionSet implements Options.
var _ Options = (*OptionSet)(nil)

// NewOptionSet creates an OptionSet seeded with values.
func NewOptionSet(values map[string]any) *OptionSet {
	s := &OptionSet{
		values:   make(map[string]any, len(values)),
		watchers: make(map[string][]func()),
	}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Get implements Options.
func (s *OptionSet) Get(name string, def any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[name]; ok {
		return v
	}
	return def
}

// Watch implements Options.
func (s *OptionSet) Watch(name string, def any, fn func(), fireNow bool) {
	s.mu.Lock()
	if _, ok := s.values[name]; !ok && def != nil {
		s.values[name] = def
	}
	if fn != nil {
		s.watchers[name] = append(s.watchers[name], fn)
	}
	s.mu.Unlock()

	if fireNow && fn != nil {
		fn()
	}
}

// Set stores value and notifies watchers if it differs from the previous
// value.
func (s *OptionSet) Set(name string, value any) {
	s.mu.Lock()
	old, existed := s.values[name]
	s.values[name] = value
	fns := append([]func(){}, s.watchers[name]...)
	s.mu.Unlock()

	if existed && reflect.DeepEqual(old, value) {
		return
	}
	for _, fn := range fns {
		fn()
	}
}

// Touch notifies watchers unconditionally, for values mutated in place.
func (s *OptionSet) Touch(name string) {
	s.mu.Lock()
	fns := append([]func(){}, s.watchers[name]...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
