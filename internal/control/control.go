// Package control keeps a single-select control's option list, selection
// and bound output value consistent while the static list, the selection
// service and the bound value change independently.
package control

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/runger/singleselect/internal/item"
	"github.com/runger/singleselect/internal/lookup"
	"github.com/runger/singleselect/internal/optionlist"
)

// Control is the option-synchronization engine behind one dropdown.
//
// Every operation, watcher callback and lookup completion runs under one
// lock, so an option rebuild and the re-resolution of the selection that
// follows it are observed as a single step.
type Control struct {
	mu      sync.Mutex
	opts    Options
	binding Binding
	logger  *slog.Logger
	notify  func()

	designer bool
	acc      item.Accessor
	builder  *optionlist.Builder
	sched    *lookup.Scheduler

	options     []item.Item // Current option list
	selected    item.Item   // Current selection
	output      item.Item   // Last value published or received through the binding
	results     []item.Item // Latest successful lookup result
	initialized bool
}

// config collects construction options.
type config struct {
	logger       *slog.Logger
	notify       func()
	designer     bool
	locale       language.Tag
	placeholders *[3]string
	schedOpts    []lookup.SchedulerOption
}

// Option configures a Control.
type Option func(*config)

// WithLogger sets the logging sink. Lookup failures are reported here.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithNotify registers fn to run after every state change. fn is called
// without the Control lock held.
func WithNotify(fn func()) Option {
	return func(c *config) { c.notify = fn }
}

// WithDesigner enables preview mode: placeholder options when no data is
// available and no selection service calls.
func WithDesigner(placeholders ...string) Option {
	return func(c *config) {
		c.designer = true
		if len(placeholders) == 3 {
			c.placeholders = &[3]string{placeholders[0], placeholders[1], placeholders[2]}
		}
	}
}

// WithLocale sets the locale used to sort display names.
func WithLocale(tag language.Tag) Option {
	return func(c *config) { c.locale = tag }
}

// WithLookupDelay sets the selection service debounce delay.
func WithLookupDelay(d time.Duration) Option {
	return func(c *config) { c.schedOpts = append(c.schedOpts, lookup.WithDelay(d)) }
}

// WithLookupTimeout bounds each selection service call.
func WithLookupTimeout(d time.Duration) Option {
	return func(c *config) { c.schedOpts = append(c.schedOpts, lookup.WithTimeout(d)) }
}

// WithAfterFunc replaces the debounce timer factory, for tests.
func WithAfterFunc(f lookup.AfterFunc) Option {
	return func(c *config) { c.schedOpts = append(c.schedOpts, lookup.WithAfterFunc(f)) }
}

// New creates a Control reading configuration from opts and writing its
// output to binding. A nil binding means no variable is bound.
//
// New registers its watchers on opts; those marked to fire immediately build
// the initial option list before New returns.
func New(opts Options, binding Binding, options ...Option) *Control {
	cfg := config{
		logger: slog.Default(),
		locale: language.English,
	}
	for _, opt := range options {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	builderOpts := []optionlist.Option{optionlist.WithLocale(cfg.locale)}
	if cfg.placeholders != nil {
		p := cfg.placeholders
		builderOpts = append(builderOpts, optionlist.WithPlaceholders(p[0], p[1], p[2]))
	}

	c := &Control{
		opts:     opts,
		binding:  binding,
		logger:   cfg.logger,
		notify:   cfg.notify,
		designer: cfg.designer,
		selected: item.Null(),
	}
	c.acc = c.accessor()
	c.builder = optionlist.NewBuilder(c.acc, builderOpts...)
	c.sched = lookup.NewScheduler(lookup.Hooks{
		Current:  c.currentService,
		Refresh:  c.UpdateOptions,
		OnResult: c.applyLookupResult,
	}, append([]lookup.SchedulerOption{lookup.WithLogger(cfg.logger)}, cfg.schedOpts...)...)

	if c.UseSelectionList() || c.designer {
		// Nothing to wait for before the control may publish.
		c.initialized = true
	}

	rebuild := func(name string) func() {
		return func() { c.UpdateOptions(name) }
	}
	lookupGuarded := func(name string) func() {
		return func() {
			if !c.UseSelectionList() && !c.designer {
				c.CallSelectionService(name)
			}
		}
	}
	opts.Watch(OptSelectionList, nil, rebuild(OptSelectionList), true)
	opts.Watch(OptSelectionService, nil, lookupGuarded(OptSelectionService), true)
	opts.Watch(OptServiceInputText, nil, lookupGuarded(OptServiceInputText), false)
	opts.Watch(OptDisplayNameProp, defaultNameProperty, rebuild(OptDisplayNameProp), true)
	opts.Watch(OptValueProperty, defaultValueProperty, rebuild(OptValueProperty), true)
	opts.Watch(OptDisableSort, false, rebuild(OptDisableSort), true)
	opts.Watch(OptTextSize, "default", nil, false)

	return c
}

// Close stops pending and in-flight selection service calls.
func (c *Control) Close() {
	c.sched.Stop()
}

// UseSelectionList reports whether a static selection list is configured.
func (c *Control) UseSelectionList() bool {
	return c.selectionList() != nil
}

// UpdateOptions rebuilds the option list from the selection list or the
// latest lookup result, then re-resolves the selection against it. trigger
// is diagnostic only.
func (c *Control) UpdateOptions(trigger string) {
	c.mu.Lock()
	c.updateOptions(trigger)
	c.mu.Unlock()
	c.changed()
}

// CallSelectionService schedules a debounced selection service call. Any
// pending call is cancelled first; nothing is scheduled when no service is
// configured.
func (c *Control) CallSelectionService(trigger string) {
	c.sched.Cancel()
	if c.service() == nil {
		return
	}
	c.sched.Schedule(trigger)
}

// UpdateSelectedValue resolves v against the option list and publishes the
// result. An Undefined v or an empty list leaves the selection untouched.
func (c *Control) UpdateSelectedValue(v item.Item) {
	c.mu.Lock()
	c.updateSelectedValue(v)
	c.mu.Unlock()
	c.changed()
}

// UpdateOutputBinding publishes the current selection.
func (c *Control) UpdateOutputBinding() {
	c.mu.Lock()
	c.updateOutputBinding()
	c.mu.Unlock()
	c.changed()
}

// Selected records an option chosen by the user and publishes it. With a
// selection list and no binding the chosen index is written back to the
// list.
func (c *Control) Selected(v item.Item) {
	c.mu.Lock()
	if sl := c.selectionList(); sl != nil && c.binding == nil {
		for i, candidate := range sl.Items {
			if item.Equal(candidate, v) {
				sl.SelectedIndices = []int{i}
				break
			}
		}
	}
	c.selected = v
	c.updateOutputBinding()
	c.mu.Unlock()
	c.changed()
}

// OnContextChange applies an external change of the bound value.
func (c *Control) OnContextChange(v item.Item) {
	c.mu.Lock()
	if !v.IsNil() || !c.output.IsNil() {
		c.output = v
	}
	c.updateSelectedValue(v)
	c.mu.Unlock()
	c.changed()
}

// ItemName returns the display name of it. With forDisplay set, blank names
// are rendered as a dash placeholder.
func (c *Control) ItemName(it item.Item, forDisplay bool) string {
	c.mu.Lock()
	acc := c.acc
	c.mu.Unlock()
	if forDisplay {
		return acc.DisplayName(it)
	}
	return acc.Name(it)
}

// ItemValue returns the value of it.
func (c *Control) ItemValue(it item.Item) item.Item {
	c.mu.Lock()
	acc := c.acc
	c.mu.Unlock()
	return acc.Value(it)
}

// Options returns a copy of the current option list.
func (c *Control) Options() []item.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return item.CloneAll(c.options)
}

// Selection returns the selected option, Null when nothing is selected.
func (c *Control) Selection() item.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// SelectedIndex returns the position of the selection in Options, or -1.
func (c *Control) SelectedIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected.IsNil() {
		return -1
	}
	for i, opt := range c.options {
		if item.Equal(opt, c.selected) {
			return i
		}
	}
	return -1
}

// Output returns the last value published to (or received from) the
// binding.
func (c *Control) Output() item.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output
}

// Initialized reports whether the control has data to select from: a
// selection list, designer mode, or a completed lookup.
func (c *Control) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *Control) updateOptions(trigger string) {
	c.acc = c.accessor()
	c.builder.SetAccessor(c.acc)

	sl := c.selectionList()
	selectedIndex := -1
	var static []item.Item
	if sl != nil {
		selectedIndex = sl.SelectedIndex
		static = sl.Items
	}

	// The selection must be one of the new items.
	c.selected = item.Null()

	raw := c.builder.Raw(optionlist.Source{
		Static:    static,
		UseStatic: sl != nil,
		Results:   c.results,
		Designer:  c.designer,
	})
	c.options = c.builder.Build(raw, c.disableSort())

	c.logger.Debug("options updated",
		"trigger", trigger,
		"count", len(c.options),
	)

	switch {
	case c.binding != nil:
		if c.initialized && len(c.options) == 0 {
			c.output = item.Null()
			c.binding.Set(c.output)
		}
		c.updateSelectedValue(c.binding.Get())
	case selectedIndex >= 0 && selectedIndex < len(raw):
		c.updateSelectedValue(raw[selectedIndex])
	}
}

func (c *Control) updateSelectedValue(v item.Item) {
	selected, ok := Resolve(c.acc, v, c.options)
	if !ok {
		return
	}
	c.selected = selected
	c.updateOutputBinding()
}

func (c *Control) updateOutputBinding() {
	out, ok := Sync(c.acc, c.selected, c.options)
	if !ok {
		return
	}
	c.output = out
	if c.binding != nil {
		c.binding.Set(out)
	}
}

func (c *Control) currentService() (lookup.Service, string) {
	return c.service(), c.inputText()
}

func (c *Control) applyLookupResult(res lookup.Result) {
	c.mu.Lock()
	if !c.sched.IsCurrent(res.Sequence) {
		c.mu.Unlock()
		return
	}
	c.results = item.CloneAll(res.Items)
	c.initialized = true
	c.updateOptions(res.Trigger)
	c.mu.Unlock()
	c.changed()
}

func (c *Control) changed() {
	if c.notify != nil {
		c.notify()
	}
}

func (c *Control) accessor() item.Accessor {
	acc := item.Accessor{
		NameProperty:  defaultNameProperty,
		ValueProperty: defaultValueProperty,
	}
	if v, ok := c.opts.Get(OptDisplayNameProp, defaultNameProperty).(string); ok {
		acc.NameProperty = v
	}
	switch v := c.opts.Get(OptValueProperty, defaultValueProperty).(type) {
	case string:
		acc.ValueProperty = v
	case nil:
		acc.ValueProperty = ""
	}
	return acc
}

func (c *Control) selectionList() *SelectionList {
	sl, _ := c.opts.Get(OptSelectionList, nil).(*SelectionList)
	return sl
}

func (c *Control) service() lookup.Service {
	svc, _ := c.opts.Get(OptSelectionService, nil).(lookup.Service)
	return svc
}

func (c *Control) inputText() string {
	switch v := c.opts.Get(OptServiceInputText, nil).(type) {
	case string:
		return v
	case item.Item:
		return v.String()
	}
	return ""
}

func (c *Control) disableSort() bool {
	b, _ := c.opts.Get(OptDisableSort, false).(bool)
	return b
}
