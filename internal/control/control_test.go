package control

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/runger/singleselect/internal/item"
	"github.com/runger/singleselect/internal/lookup"
)

// --- Fakes ---

type manualTimer struct {
	mu      sync.Mutex
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(_ time.Duration, f func()) lookup.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{fn: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs all live timers synchronously.
func (c *manualClock) fire() {
	c.mu.Lock()
	timers := append([]*manualTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, t := range timers {
		t.mu.Lock()
		due := !t.stopped && !t.fired
		t.fired = true
		t.mu.Unlock()
		if due {
			t.fn()
		}
	}
}

type mockService struct {
	mock.Mock
}

func (m *mockService) Lookup(ctx context.Context, req lookup.Request) (lookup.Envelope, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(lookup.Envelope), args.Error(1)
}

func withText(text string) any {
	return mock.MatchedBy(func(req lookup.Request) bool { return req.InputText == text })
}

func strs(values ...string) []item.Item {
	out := make([]item.Item, len(values))
	for i, v := range values {
		out[i] = item.String(v)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// --- Static selection list ---

func TestStaticList_ResolvesBoundValue(t *testing.T) {
	t.Parallel()

	opts := NewOptionSet(map[string]any{
		OptSelectionList: NewSelectionList(strs("banana", "apple", "apple")...),
	})
	binding := NewValueBinding(item.String("apple"))

	c := New(opts, binding, WithLogger(quietLogger()))
	defer c.Close()

	assert.Equal(t, strs("apple", "banana"), c.Options())
	assert.Equal(t, item.String("apple"), c.Selection())
	assert.Equal(t, item.String("apple"), c.Output())
	assert.Equal(t, item.String("apple"), binding.Get())
	assert.Equal(t, 0, c.SelectedIndex())
	assert.True(t, c.Initialized())
	assert.True(t, c.UseSelectionList())
}

func TestStaticList_RecordValueScenario(t *testing.T) {
	t.Parallel()

	a := item.Record(map[string]any{"name": "A", "value": 1})
	b := item.Record(map[string]any{"name": "B", "value": 2})
	opts := NewOptionSet(map[string]any{
		OptSelectionList: NewSelectionList(a, b),
		OptValueProperty: "value",
	})
	binding := NewValueBinding(item.Item{})

	c := New(opts, binding, WithLogger(quietLogger()))
	defer c.Close()

	assert.Equal(t, item.Null(), c.Selection(), "undefined bound value selects nothing")
	assert.Equal(t, 0, binding.Writes())

	c.OnContextChange(item.Record(map[string]any{"value": 2}))

	assert.True(t, item.Equal(b, c.Selection()))
	assert.Equal(t, item.Number(2), c.Output())
	assert.Equal(t, item.Number(2), binding.Get())
}

func TestOnContextChange_NullAndUndefined(t *testing.T) {
	t.Parallel()

	opts := NewOptionSet(map[string]any{
		OptSelectionList: NewSelectionList(strs("apple", "banana")...),
	})
	binding := NewValueBinding(item.String("banana"))
	c := New(opts, binding, WithLogger(quietLogger()))
	defer c.Close()
	require.Equal(t, item.String("banana"), c.Selection())

	c.OnContextChange(item.Item{})
	assert.Equal(t, item.String("banana"), c.Selection(), "undefined leaves the selection untouched")

	c.OnContextChange(item.Null())
	assert.Equal(t, item.Null(), c.Selection())
	assert.Equal(t, item.Null(), c.Output())
	assert.Equal(t, item.Null(), binding.Get())
}

func TestOnContextChange_UnknownValueClearsSelection(t *testing.T) {
	t.Parallel()

	opts := NewOptionSet(map[string]any{
		OptSelectionList: NewSelectionList(strs("apple")...),
	})
	binding := NewValueBinding(item.String("apple"))
	c := New(opts, binding, WithLogger(quietLogger()))
	defer c.Close()

	c.OnContextChange(item.String("durian"))

	assert.Equal(t, item.Null(), c.Selection())
	assert.Equal(t, item.Null(), binding.Get())
}

func TestSelectedIndex_WithoutBinding(t *testing.T) {
	t.Parallel()

	sl := NewSelectionList(strs("banana", "apple")...)
	sl.SelectedIndex = 0
	opts := NewOptionSet(map[string]any{OptSelectionList: sl})

	c := New(opts, nil, WithLogger(quietLogger()))
	defer c.Close()

	assert.Equal(t, item.String("banana"), c.Selection())
	assert.Equal(t, item.String("banana"), c.Output())
	assert.Equal(t, 1, c.SelectedIndex(), "banana sorts after apple")
}

func TestSelected_RecordsIndexOnSelectionList(t *testing.T) {
	t.Parallel()

	sl := NewSelectionList(strs("banana", "apple")...)
	opts := NewOptionSet(map[string]any{OptSelectionList: sl})
	c := New(opts, nil, WithLogger(quietLogger()))
	defer c.Close()

	c.Selected(item.String("apple"))

	assert.Equal(t, []int{1}, sl.SelectedIndices)
	assert.Equal(t, item.String("apple"), c.Selection())
	assert.Equal(t, item.String("apple"), c.Output())
}

func TestSelected_PublishesValueToBinding(t *testing.T) {
	t.Parallel()

	a := item.Record(map[string]any{"name": "A", "value": "a-1", "$$hashKey": "object:1"})
	opts := NewOptionSet(map[string]any{OptSelectionList: NewSelectionList(a)})
	binding := NewValueBinding(item.Item{})
	c := New(opts, binding, WithLogger(quietLogger()))
	defer c.Close()

	c.Selected(a)
	assert.Equal(t, item.String("a-1"), binding.Get())

	opts.Set(OptValueProperty, "")
	c.Selected(a)
	assert.True(t, item.Equal(item.Record(map[string]any{"name": "A", "value": "a-1"}), binding.Get()),
		"reserved keys are stripped from a whole-record output")
}

func TestEmptyRebuild_ClearsBindingOnceInitialized(t *testing.T) {
	t.Parallel()

	sl := NewSelectionList(strs("apple")...)
	opts := NewOptionSet(map[string]any{OptSelectionList: sl})
	binding := NewValueBinding(item.String("apple"))
	c := New(opts, binding, WithLogger(quietLogger()))
	defer c.Close()
	require.Equal(t, item.String("apple"), binding.Get())

	sl.Items = nil
	opts.Touch(OptSelectionList)

	assert.Empty(t, c.Options())
	assert.Equal(t, item.Null(), binding.Get())
}

func TestOutputSuppressedWhileLoading(t *testing.T) {
	t.Parallel()

	clock := &manualClock{}
	svc := &mockService{}
	opts := NewOptionSet(map[string]any{OptSelectionService: lookup.Service(svc)})
	binding := NewValueBinding(item.String("kept"))

	c := New(opts, binding, WithLogger(quietLogger()), WithAfterFunc(clock.AfterFunc))
	defer c.Close()

	c.UpdateSelectedValue(item.String("kept"))
	c.UpdateOutputBinding()

	assert.Empty(t, c.Options())
	assert.False(t, c.Initialized())
	assert.Equal(t, 0, binding.Writes(), "nothing is written before the list loads")
	assert.Equal(t, item.String("kept"), binding.Get())
	svc.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
}

// --- Selection service ---

func TestSelectionService_LoadsAndResolves(t *testing.T) {
	t.Parallel()

	clock := &manualClock{}
	svc := &mockService{}
	svc.On("Lookup", mock.Anything, withText("ap")).
		Return(lookup.NewEnvelope(strs("apricot", "apple", "apple")), nil).Once()

	opts := NewOptionSet(map[string]any{
		OptSelectionService: lookup.Service(svc),
		OptServiceInputText: "ap",
	})
	binding := NewValueBinding(item.String("apple"))
	c := New(opts, binding, WithLogger(quietLogger()), WithAfterFunc(clock.AfterFunc))
	defer c.Close()

	assert.Empty(t, c.Options())
	clock.fire()

	assert.True(t, c.Initialized())
	assert.Equal(t, strs("apple", "apricot"), c.Options())
	assert.Equal(t, item.String("apple"), c.Selection())
	assert.Equal(t, item.String("apple"), binding.Get())
	svc.AssertExpectations(t)
}

func TestSelectionService_InputTextChangeSchedulesLookup(t *testing.T) {
	t.Parallel()

	clock := &manualClock{}
	svc := &mockService{}
	svc.On("Lookup", mock.Anything, withText("")).Return(lookup.NewEnvelope(strs("a")), nil).Once()
	svc.On("Lookup", mock.Anything, withText("ban")).Return(lookup.NewEnvelope(strs("banana")), nil).Once()

	opts := NewOptionSet(map[string]any{OptSelectionService: lookup.Service(svc)})
	c := New(opts, nil, WithLogger(quietLogger()), WithAfterFunc(clock.AfterFunc))
	defer c.Close()
	clock.fire()
	require.Equal(t, strs("a"), c.Options())

	opts.Set(OptServiceInputText, "b")
	opts.Set(OptServiceInputText, "ba")
	opts.Set(OptServiceInputText, "ban")
	clock.fire()

	assert.Equal(t, strs("banana"), c.Options())
	svc.AssertExpectations(t)
	svc.AssertNumberOfCalls(t, "Lookup", 2)
}

func TestSelectionService_FailureKeepsPreviousList(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	clock := &manualClock{}
	svc := &mockService{}
	svc.On("Lookup", mock.Anything, withText("")).Return(lookup.NewEnvelope(strs("a", "b")), nil).Once()
	svc.On("Lookup", mock.Anything, withText("x")).Return(lookup.Envelope{}, errors.New("503")).Once()

	opts := NewOptionSet(map[string]any{OptSelectionService: lookup.Service(svc)})
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	c := New(opts, nil, WithLogger(logger), WithAfterFunc(clock.AfterFunc))
	defer c.Close()
	clock.fire()

	opts.Set(OptServiceInputText, "x")
	clock.fire()

	assert.Equal(t, strs("a", "b"), c.Options())
	assert.Contains(t, logs.String(), "selection service failed")
}

func TestNotify_CalledAfterStateChanges(t *testing.T) {
	t.Parallel()

	opts := NewOptionSet(map[string]any{
		OptSelectionList: NewSelectionList(strs("a", "b")...),
	})
	var mu sync.Mutex
	var notified int
	c := New(opts, nil, WithLogger(quietLogger()), WithNotify(func() {
		mu.Lock()
		notified++
		mu.Unlock()
	}))
	defer c.Close()

	mu.Lock()
	before := notified
	mu.Unlock()
	require.Positive(t, before, "initial build notifies")

	c.Selected(item.String("b"))
	opts.Set(OptDisableSort, true)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, before+2, notified)
}

func TestSelectionService_IgnoredWithSelectionList(t *testing.T) {
	t.Parallel()

	clock := &manualClock{}
	svc := &mockService{}
	opts := NewOptionSet(map[string]any{
		OptSelectionList:    NewSelectionList(strs("x")...),
		OptSelectionService: lookup.Service(svc),
	})
	c := New(opts, nil, WithLogger(quietLogger()), WithAfterFunc(clock.AfterFunc))
	defer c.Close()

	opts.Set(OptServiceInputText, "y")
	clock.fire()

	assert.Equal(t, strs("x"), c.Options())
	svc.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
}

func TestDesignerMode(t *testing.T) {
	t.Parallel()

	clock := &manualClock{}
	svc := &mockService{}
	opts := NewOptionSet(map[string]any{OptSelectionService: lookup.Service(svc)})
	c := New(opts, nil, WithLogger(quietLogger()), WithAfterFunc(clock.AfterFunc),
		WithDesigner("One", "Two", "Three"))
	defer c.Close()
	clock.fire()

	assert.True(t, c.Initialized())
	assert.Equal(t, strs("One", "Three", "Two"), c.Options())
	svc.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
}

// --- Configuration changes ---

func TestConfigChangesRebuild(t *testing.T) {
	t.Parallel()

	items := []item.Item{
		item.Record(map[string]any{"label": "Zed", "name": "a", "id": 1}),
		item.Record(map[string]any{"label": "Amy", "name": "b", "id": 2}),
	}
	opts := NewOptionSet(map[string]any{OptSelectionList: NewSelectionList(items...)})
	c := New(opts, nil, WithLogger(quietLogger()))
	defer c.Close()
	assert.Equal(t, "a", c.ItemName(c.Options()[0], false))

	opts.Set(OptDisplayNameProp, "label")
	assert.Equal(t, "Amy", c.ItemName(c.Options()[0], false))

	opts.Set(OptDisableSort, true)
	assert.Equal(t, "Zed", c.ItemName(c.Options()[0], false))

	opts.Set(OptValueProperty, "id")
	assert.Equal(t, item.Number(1), c.ItemValue(c.Options()[0]))
}

func TestItemName_ForDisplay(t *testing.T) {
	t.Parallel()

	c := New(NewOptionSet(nil), nil, WithLogger(quietLogger()))
	defer c.Close()

	assert.Equal(t, "------", c.ItemName(item.String(""), true))
	assert.Equal(t, "", c.ItemName(item.String(""), false))
}

func TestOptionSet(t *testing.T) {
	t.Parallel()

	s := NewOptionSet(nil)
	var calls int
	s.Watch("x", 1, func() { calls++ }, true)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, s.Get("x", 0))

	s.Set("x", 1)
	assert.Equal(t, 1, calls, "unchanged value does not fire")

	s.Set("x", 2)
	assert.Equal(t, 2, calls)

	s.Touch("x")
	assert.Equal(t, 3, calls)
	assert.Equal(t, "d", s.Get("missing", "d"))
}
