// Package lookup schedules and runs remote lookups ("selection service"
// calls) that feed a single-select control with options.
package lookup

import (
	"context"
	"errors"
	"fmt"

	"github.com/runger/singleselect/internal/item"
)

// ErrNoService is returned when a lookup has nothing to query: no service
// or searcher is configured.
var ErrNoService = errors.New("lookup: no selection service configured")

// Service is a remote data source returning items for an input text.
// Implementations might call an HTTP endpoint, a gRPC server or a local
// catalog.
type Service interface {
	Lookup(ctx context.Context, req Request) (Envelope, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, req Request) (Envelope, error)

// Lookup implements Service.
func (f ServiceFunc) Lookup(ctx context.Context, req Request) (Envelope, error) {
	return f(ctx, req)
}

// Request describes a single lookup invocation.
type Request struct {
	InputText     string // Text typed into the control at fire time
	Sequence      uint64 // Monotonically increasing, for stale response detection
	CorrelationID string // Ties client and server logs together
	Trigger       string // Diagnostic only
}

// Envelope is the response shape of a selection service: the items live
// under results.items.
type Envelope struct {
	Results *Results `json:"results,omitempty"`
}

// Results is the inner envelope object.
type Results struct {
	Items []item.Item `json:"items"`
}

// NewEnvelope wraps items in an Envelope.
func NewEnvelope(items []item.Item) Envelope {
	if items == nil {
		items = []item.Item{}
	}
	return Envelope{Results: &Results{Items: items}}
}

// Items returns the carried items; a missing path yields an empty list.
func (e Envelope) Items() []item.Item {
	if e.Results == nil || e.Results.Items == nil {
		return []item.Item{}
	}
	return e.Results.Items
}

// Map returns the JSON-compatible form of the envelope.
func (e Envelope) Map() map[string]any {
	items := e.Items()
	values := make([]any, len(items))
	for i, it := range items {
		values[i] = it.Any()
	}
	return map[string]any{"results": map[string]any{"items": values}}
}

// EnvelopeFromMap reads an envelope out of a decoded JSON object. Missing or
// malformed paths yield an empty item list.
func EnvelopeFromMap(m map[string]any) Envelope {
	results, ok := m["results"].(map[string]any)
	if !ok {
		return NewEnvelope(nil)
	}
	values, ok := results["items"].([]any)
	if !ok {
		return NewEnvelope(nil)
	}
	return NewEnvelope(item.Slice(values))
}

// Searcher finds items matching a text. The catalog store implements it.
type Searcher interface {
	Search(ctx context.Context, text string) ([]item.Item, error)
}

// SearcherService exposes a Searcher as a Service.
func SearcherService(s Searcher) Service {
	return ServiceFunc(func(ctx context.Context, req Request) (Envelope, error) {
		if s == nil {
			return Envelope{}, ErrNoService
		}
		items, err := s.Search(ctx, req.InputText)
		if err != nil {
			return Envelope{}, fmt.Errorf("lookup: search: %w", err)
		}
		return NewEnvelope(items), nil
	})
}
