package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/runger/singleselect/internal/catalog"
	"github.com/runger/singleselect/internal/config"
	"github.com/runger/singleselect/internal/control"
	"github.com/runger/singleselect/internal/item"
	"github.com/runger/singleselect/internal/lookup"
	"github.com/runger/singleselect/internal/lookup/grpcapi"
	"github.com/runger/singleselect/internal/lookup/httpapi"
)

// controlFlags are shared by resolve and pick. Only flags the user set
// override the config file.
type controlFlags struct {
	items         string
	value         string
	nameProperty  string
	valueProperty string
	query         string
	selectedIndex int
	disableSort   bool
	unbound       bool
	designer      bool
	transport     string
	endpoint      string
}

func (f *controlFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.items, "items", "", "static selection list: a JSON array or shell-quoted words")
	fs.StringVar(&f.value, "value", "", "initial bound value (JSON or plain string)")
	fs.StringVar(&f.nameProperty, "name-property", "", "record field used as display name")
	fs.StringVar(&f.valueProperty, "value-property", "", "record field used as value (empty publishes whole records)")
	fs.StringVar(&f.query, "query", "", "lookup input text")
	fs.IntVar(&f.selectedIndex, "selected-index", -1, "preselected index into --items when no value is bound")
	fs.BoolVar(&f.disableSort, "no-sort", false, "keep source order")
	fs.BoolVar(&f.unbound, "unbound", false, "do not bind an output value")
	fs.BoolVar(&f.designer, "designer", false, "preview mode with placeholder options")
	fs.StringVar(&f.transport, "transport", "", "lookup transport: http, grpc or catalog")
	fs.StringVar(&f.endpoint, "endpoint", "", "lookup endpoint")
}

// apply copies explicitly set flags onto cfg.
func (f *controlFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	if fs.Changed("items") {
		values, err := parseItems(f.items)
		if err != nil {
			return err
		}
		cfg.Control.SelectionList = &config.ListConfig{Items: values, SelectedIndex: -1}
	}
	if fs.Changed("selected-index") {
		if cfg.Control.SelectionList == nil {
			return fmt.Errorf("--selected-index requires a selection list")
		}
		cfg.Control.SelectionList.SelectedIndex = f.selectedIndex
	}
	if fs.Changed("value") {
		cfg.Control.Value = parseValue(f.value)
	}
	if fs.Changed("name-property") {
		cfg.Control.DisplayNameProperty = f.nameProperty
	}
	if fs.Changed("value-property") {
		cfg.Control.ValueProperty = f.valueProperty
	}
	if fs.Changed("query") {
		cfg.Control.InputText = f.query
	}
	if fs.Changed("no-sort") {
		cfg.Control.DisableSort = f.disableSort
	}
	if fs.Changed("unbound") {
		cfg.Control.Bound = !f.unbound
	}
	if fs.Changed("designer") {
		cfg.Control.Designer = f.designer
	}
	if fs.Changed("transport") {
		cfg.Lookup.Transport = f.transport
	}
	if fs.Changed("endpoint") {
		cfg.Lookup.Endpoint = f.endpoint
	}
	return cfg.Validate()
}

// parseItems reads --items: a JSON array, or shell-quoted words where each
// word that parses as a JSON scalar keeps its type.
func parseItems(s string) ([]any, error) {
	if trimmed := strings.TrimSpace(s); strings.HasPrefix(trimmed, "[") {
		var values []any
		if err := json.Unmarshal([]byte(trimmed), &values); err != nil {
			return nil, fmt.Errorf("invalid --items: %w", err)
		}
		return values, nil
	}
	tokens, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --items: %w", err)
	}
	values := make([]any, len(tokens))
	for i, tok := range tokens {
		values[i] = parseValue(tok)
	}
	return values, nil
}

func parseValue(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	switch trimmed[0] {
	case '{', '[', '"':
	default:
		if trimmed != "null" && trimmed != "true" && trimmed != "false" && !startsNumeric(trimmed) {
			return s
		}
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return s
	}
	return v
}

func startsNumeric(s string) bool {
	c := s[0]
	return c == '-' || (c >= '0' && c <= '9')
}

// session is a Control wired to its option set, binding and service.
type session struct {
	opts    *control.OptionSet
	binding *control.ValueBinding // nil when unbound
	ctrl    *control.Control
	close   func() error
}

func (s *session) Close() error {
	s.ctrl.Close()
	return s.close()
}

func newSession(cfg *config.Config, log *slog.Logger, notify func()) (*session, error) {
	values := map[string]any{
		control.OptDisplayNameProp:  cfg.Control.DisplayNameProperty,
		control.OptValueProperty:    cfg.Control.ValueProperty,
		control.OptDisableSort:      cfg.Control.DisableSort,
		control.OptServiceInputText: cfg.Control.InputText,
	}

	closeFn := func() error { return nil }
	if sl := cfg.Control.SelectionList; sl != nil {
		list := control.NewSelectionList(item.Slice(sl.Items)...)
		list.SelectedIndex = sl.SelectedIndex
		values[control.OptSelectionList] = list
	} else {
		svc, closeSvc, err := newService(cfg)
		if err != nil {
			return nil, err
		}
		if svc == nil && !cfg.Control.Designer {
			return nil, fmt.Errorf("%w: set --items or a lookup transport", lookup.ErrNoService)
		}
		if svc != nil {
			values[control.OptSelectionService] = svc
			closeFn = closeSvc
		}
	}
	opts := control.NewOptionSet(values)

	var binding *control.ValueBinding
	var b control.Binding
	if cfg.Control.Bound {
		initial := item.Item{}
		if cfg.Control.Value != nil {
			initial = item.FromAny(cfg.Control.Value)
		}
		binding = control.NewValueBinding(initial)
		b = binding
	}

	ctrlOpts := []control.Option{
		control.WithLogger(log),
		control.WithNotify(notify),
		control.WithLookupDelay(cfg.LookupDelay()),
		control.WithLookupTimeout(cfg.LookupTimeout()),
	}
	if tag, err := language.Parse(cfg.Control.Locale); err == nil {
		ctrlOpts = append(ctrlOpts, control.WithLocale(tag))
	} else if cfg.Control.Locale != "" {
		log.Warn("ignoring invalid locale", "locale", cfg.Control.Locale, "error", err)
	}
	if cfg.Control.Designer {
		ctrlOpts = append(ctrlOpts, control.WithDesigner(cfg.Messages.Placeholders...))
	}

	return &session{
		opts:    opts,
		binding: binding,
		ctrl:    control.New(opts, b, ctrlOpts...),
		close:   closeFn,
	}, nil
}

// newService builds the configured selection service. A nil service means
// none is configured; newSession rejects that outside designer mode.
func newService(cfg *config.Config) (lookup.Service, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Lookup.Transport {
	case "":
		return nil, noop, nil
	case "http":
		return httpapi.NewClient(cfg.Lookup.Endpoint), noop, nil
	case "grpc":
		client, closeConn, err := grpcapi.Dial(cfg.Lookup.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		return client, closeConn, nil
	case "catalog":
		cat, err := openCatalog(cfg)
		if err != nil {
			return nil, nil, err
		}
		return lookup.SearcherService(cat), cat.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown lookup transport %q", cfg.Lookup.Transport)
	}
}

func openCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	path := cfg.Server.CatalogPath
	if path == "" {
		paths := config.DefaultPaths()
		if err := paths.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("failed to create directories: %w", err)
		}
		path = paths.CatalogFile()
	}
	opts := []catalog.Option{
		catalog.WithLimit(cfg.Server.Limit),
		catalog.WithAccessor(item.Accessor{
			NameProperty:  cfg.Control.DisplayNameProperty,
			ValueProperty: cfg.Control.ValueProperty,
		}),
	}
	if cfg.Server.Filter != "" {
		f, err := catalog.CompileFilter(cfg.Server.Filter)
		if err != nil {
			return nil, err
		}
		opts = append(opts, catalog.WithFilter(f))
	}
	return catalog.Open(path, opts...)
}
