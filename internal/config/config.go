package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config represents the singleselect configuration.
type Config struct {
	Control  ControlConfig  `yaml:"control"`
	Lookup   LookupConfig   `yaml:"lookup"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Messages MessagesConfig `yaml:"messages"`
}

// ControlConfig describes the control being hosted.
type ControlConfig struct {
	DisplayNameProperty string      `yaml:"display_name_property"` // Field read for display names
	ValueProperty       string      `yaml:"value_property"`        // Field read for values (empty = whole record)
	DisableSort         bool        `yaml:"disable_sort"`          // Keep source order
	Designer            bool        `yaml:"designer"`              // Preview mode with placeholder options
	Locale              string      `yaml:"locale"`                // BCP 47 tag used for name collation
	InputText           string      `yaml:"input_text"`            // Initial lookup input text
	Bound               bool        `yaml:"bound"`                 // Whether an output variable is bound
	Value               any         `yaml:"value,omitempty"`       // Initial bound value
	SelectionList       *ListConfig `yaml:"selection_list,omitempty"`
}

// ListConfig is a static selection list.
type ListConfig struct {
	Items         []any `yaml:"items"`
	SelectedIndex int   `yaml:"selected_index"` // -1 = none
}

// LookupConfig configures the selection service used by clients.
type LookupConfig struct {
	Transport string `yaml:"transport"`  // http, grpc, catalog or empty for none
	Endpoint  string `yaml:"endpoint"`   // URL for http, host:port for grpc
	TimeoutMs int    `yaml:"timeout_ms"` // Per-request timeout (0 = none)
	DelayMs   int    `yaml:"delay_ms"`   // Debounce delay
}

// ServerConfig configures `singleselect serve`.
type ServerConfig struct {
	HTTPAddr    string `yaml:"http_addr"`    // Empty disables the HTTP server
	GRPCAddr    string `yaml:"grpc_addr"`    // Empty disables the gRPC server
	CatalogPath string `yaml:"catalog_path"` // SQLite catalog (overrides default)
	Limit       int    `yaml:"limit"`        // Max items per lookup
	Filter      string `yaml:"filter"`       // Optional expression applied to every result
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// MessagesConfig holds user-visible strings.
type MessagesConfig struct {
	Placeholders []string `yaml:"placeholders"` // Designer-mode options, exactly three
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Control: ControlConfig{
			DisplayNameProperty: "name",
			ValueProperty:       "value",
			Locale:              "en",
			Bound:               true,
		},
		Lookup: LookupConfig{
			DelayMs: 50,
		},
		Server: ServerConfig{
			HTTPAddr: "127.0.0.1:8686",
			GRPCAddr: "127.0.0.1:8687",
			Limit:    100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Messages: MessagesConfig{
			Placeholders: []string{"Option 1", "Option 2", "Option 3"},
		},
	}
}

// LoadFromFile loads configuration from path and applies environment
// overrides. A missing file yields the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ReadFile parses path over the defaults without environment overrides or
// validation. Used when the result is written back to disk.
func ReadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration to path, creating its directory.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LookupTimeout returns the per-request lookup timeout.
func (c *Config) LookupTimeout() time.Duration {
	return time.Duration(c.Lookup.TimeoutMs) * time.Millisecond
}

// LookupDelay returns the debounce delay.
func (c *Config) LookupDelay() time.Duration {
	return time.Duration(c.Lookup.DelayMs) * time.Millisecond
}

// Get returns the value of a scalar key in "section.key" form.
func (c *Config) Get(key string) (string, error) {
	section, field, err := splitKey(key)
	if err != nil {
		return "", err
	}

	switch section {
	case "control":
		return c.getControlField(field)
	case "lookup":
		return c.getLookupField(field)
	case "server":
		return c.getServerField(field)
	case "log":
		return c.getLogField(field)
	default:
		return "", fmt.Errorf("unknown section: %s", section)
	}
}

// Set assigns a scalar key in "section.key" form.
func (c *Config) Set(key, value string) error {
	section, field, err := splitKey(key)
	if err != nil {
		return err
	}

	switch section {
	case "control":
		return c.setControlField(field, value)
	case "lookup":
		return c.setLookupField(field, value)
	case "server":
		return c.setServerField(field, value)
	case "log":
		return c.setLogField(field, value)
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
}

func splitKey(key string) (string, string, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return "", "", errors.New("key must be in format 'section.key'")
	}
	return parts[0], parts[1], nil
}

func (c *Config) getControlField(field string) (string, error) {
	switch field {
	case "display_name_property":
		return c.Control.DisplayNameProperty, nil
	case "value_property":
		return c.Control.ValueProperty, nil
	case "disable_sort":
		return strconv.FormatBool(c.Control.DisableSort), nil
	case "designer":
		return strconv.FormatBool(c.Control.Designer), nil
	case "locale":
		return c.Control.Locale, nil
	case "input_text":
		return c.Control.InputText, nil
	case "bound":
		return strconv.FormatBool(c.Control.Bound), nil
	default:
		return "", fmt.Errorf("unknown field: control.%s", field)
	}
}

func (c *Config) setControlField(field, value string) error {
	switch field {
	case "display_name_property":
		c.Control.DisplayNameProperty = value
	case "value_property":
		c.Control.ValueProperty = value
	case "disable_sort", "designer", "bound":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for control.%s: %w", field, err)
		}
		switch field {
		case "disable_sort":
			c.Control.DisableSort = b
		case "designer":
			c.Control.Designer = b
		default:
			c.Control.Bound = b
		}
	case "locale":
		c.Control.Locale = value
	case "input_text":
		c.Control.InputText = value
	default:
		return fmt.Errorf("unknown field: control.%s", field)
	}
	return nil
}

func (c *Config) getLookupField(field string) (string, error) {
	switch field {
	case "transport":
		return c.Lookup.Transport, nil
	case "endpoint":
		return c.Lookup.Endpoint, nil
	case "timeout_ms":
		return strconv.Itoa(c.Lookup.TimeoutMs), nil
	case "delay_ms":
		return strconv.Itoa(c.Lookup.DelayMs), nil
	default:
		return "", fmt.Errorf("unknown field: lookup.%s", field)
	}
}

func (c *Config) setLookupField(field, value string) error {
	switch field {
	case "transport":
		if !isValidTransport(value) {
			return fmt.Errorf("invalid transport: %s (must be http, grpc, catalog or empty)", value)
		}
		c.Lookup.Transport = value
	case "endpoint":
		c.Lookup.Endpoint = value
	case "timeout_ms", "delay_ms":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for lookup.%s: %w", field, err)
		}
		if v < 0 {
			return fmt.Errorf("lookup.%s must be >= 0", field)
		}
		if field == "timeout_ms" {
			c.Lookup.TimeoutMs = v
		} else {
			c.Lookup.DelayMs = v
		}
	default:
		return fmt.Errorf("unknown field: lookup.%s", field)
	}
	return nil
}

func (c *Config) getServerField(field string) (string, error) {
	switch field {
	case "http_addr":
		return c.Server.HTTPAddr, nil
	case "grpc_addr":
		return c.Server.GRPCAddr, nil
	case "catalog_path":
		return c.Server.CatalogPath, nil
	case "limit":
		return strconv.Itoa(c.Server.Limit), nil
	case "filter":
		return c.Server.Filter, nil
	default:
		return "", fmt.Errorf("unknown field: server.%s", field)
	}
}

func (c *Config) setServerField(field, value string) error {
	switch field {
	case "http_addr":
		c.Server.HTTPAddr = value
	case "grpc_addr":
		c.Server.GRPCAddr = value
	case "catalog_path":
		c.Server.CatalogPath = value
	case "limit":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for server.limit: %w", err)
		}
		if v <= 0 {
			return errors.New("server.limit must be > 0")
		}
		c.Server.Limit = v
	case "filter":
		c.Server.Filter = value
	default:
		return fmt.Errorf("unknown field: server.%s", field)
	}
	return nil
}

func (c *Config) getLogField(field string) (string, error) {
	switch field {
	case "level":
		return c.Log.Level, nil
	case "format":
		return c.Log.Format, nil
	default:
		return "", fmt.Errorf("unknown field: log.%s", field)
	}
}

func (c *Config) setLogField(field, value string) error {
	switch field {
	case "level":
		if !isValidLogLevel(value) {
			return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", value)
		}
		c.Log.Level = value
	case "format":
		if value != "json" && value != "text" {
			return fmt.Errorf("invalid log format: %s (must be json or text)", value)
		}
		c.Log.Format = value
	default:
		return fmt.Errorf("unknown field: log.%s", field)
	}
	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if !isValidLogLevel(c.Log.Level) {
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	if !isValidTransport(c.Lookup.Transport) {
		return fmt.Errorf("%w: lookup.transport %q", ErrInvalid, c.Lookup.Transport)
	}
	if (c.Lookup.Transport == "http" || c.Lookup.Transport == "grpc") && c.Lookup.Endpoint == "" {
		return fmt.Errorf("%w: lookup.endpoint is required for %s", ErrInvalid, c.Lookup.Transport)
	}
	if c.Lookup.TimeoutMs < 0 || c.Lookup.DelayMs < 0 {
		return fmt.Errorf("%w: lookup timings must be >= 0", ErrInvalid)
	}
	if c.Server.Limit <= 0 {
		return fmt.Errorf("%w: server.limit must be > 0", ErrInvalid)
	}
	if n := len(c.Messages.Placeholders); n != 0 && n != 3 {
		return fmt.Errorf("%w: messages.placeholders needs exactly 3 entries, got %d", ErrInvalid, n)
	}
	if sl := c.Control.SelectionList; sl != nil && sl.SelectedIndex >= len(sl.Items) {
		return fmt.Errorf("%w: control.selection_list.selected_index %d out of range", ErrInvalid, sl.SelectedIndex)
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func isValidTransport(t string) bool {
	switch t {
	case "", "http", "grpc", "catalog":
		return true
	}
	return false
}

// ApplyEnvOverrides applies SINGLESELECT_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SINGLESELECT_LOG_LEVEL"); v != "" {
		if isValidLogLevel(v) {
			c.Log.Level = v
		}
	}
	if v := os.Getenv("SINGLESELECT_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.Log.Level = "debug"
		}
	}
	if v := os.Getenv("SINGLESELECT_LOOKUP_ENDPOINT"); v != "" {
		c.Lookup.Endpoint = v
		if c.Lookup.Transport == "" {
			c.Lookup.Transport = "http"
		}
	}
}

// ListKeys returns every key accepted by Get and Set.
func ListKeys() []string {
	return []string{
		"control.display_name_property",
		"control.value_property",
		"control.disable_sort",
		"control.designer",
		"control.locale",
		"control.input_text",
		"control.bound",
		"lookup.transport",
		"lookup.endpoint",
		"lookup.timeout_ms",
		"lookup.delay_ms",
		"server.http_addr",
		"server.grpc_addr",
		"server.catalog_path",
		"server.limit",
		"server.filter",
		"log.level",
		"log.format",
	}
}
