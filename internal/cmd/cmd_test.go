package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/singleselect/internal/item"
	"github.com/runger/singleselect/internal/logging"
	"github.com/runger/singleselect/internal/lookup"
)

func TestMain(m *testing.M) {
	for _, key := range []string{"SINGLESELECT_LOG_LEVEL", "SINGLESELECT_DEBUG", "SINGLESELECT_LOOKUP_ENDPOINT"} {
		os.Unsetenv(key)
	}
	os.Exit(m.Run())
}

// resetFlags restores every flag in the command tree to its default so
// commands can run more than once per process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return stdout.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body = strings.ReplaceAll(body, "$DIR", dir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func decodeResolve(t *testing.T, out string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc), out)
	return doc
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"apple", "apple"},
		{"42", float64(42)},
		{"-1.5", -1.5},
		{"null", nil},
		{"true", true},
		{`"quoted"`, "quoted"},
		{`{"name":"A"}`, map[string]any{"name": "A"}},
		{"12abc", "12abc"},
		{"-x", "-x"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseValue(tt.in))
		})
	}
}

func TestParseItems(t *testing.T) {
	values, err := parseItems(`banana "green apple" 3`)
	require.NoError(t, err)
	assert.Equal(t, []any{"banana", "green apple", float64(3)}, values)

	values, err = parseItems(`[{"name":"A","value":1}, "b"]`)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"name": "A", "value": float64(1)}, "b"}, values)

	_, err = parseItems(`[{"name":`)
	assert.Error(t, err)

	_, err = parseItems(`"unterminated`)
	assert.Error(t, err)
}

func TestResolve_StaticList(t *testing.T) {
	cfgPath := writeConfig(t, "")

	out, err := execute(t, "resolve", "--config", cfgPath,
		"--items", "banana apple apple", "--value", "apple")
	require.NoError(t, err)

	doc := decodeResolve(t, out)
	assert.Equal(t, []any{"apple", "banana"}, doc["options"])
	assert.Equal(t, "apple", doc["selection"])
	assert.Equal(t, "apple", doc["output"])
	assert.Equal(t, float64(0), doc["selected_index"])
	assert.Equal(t, true, doc["initialized"])
}

func TestResolve_RecordValue(t *testing.T) {
	cfgPath := writeConfig(t, "")

	out, err := execute(t, "resolve", "--config", cfgPath,
		"--items", `[{"name":"B","value":2},{"name":"A","value":1}]`, "--value", "2")
	require.NoError(t, err)

	doc := decodeResolve(t, out)
	assert.Equal(t, []any{"A", "B"}, doc["names"])
	assert.Equal(t, map[string]any{"name": "B", "value": float64(2)}, doc["selection"])
	assert.Equal(t, float64(2), doc["output"])
	assert.Equal(t, float64(1), doc["selected_index"])
}

func TestResolve_UnboundSelectedIndex(t *testing.T) {
	cfgPath := writeConfig(t, "")

	out, err := execute(t, "resolve", "--config", cfgPath,
		"--items", "banana apple", "--selected-index", "0", "--unbound")
	require.NoError(t, err)

	doc := decodeResolve(t, out)
	assert.Equal(t, "banana", doc["selection"])
	assert.Equal(t, float64(1), doc["selected_index"])
}

func TestResolve_FromConfigFile(t *testing.T) {
	cfgPath := writeConfig(t, `
control:
  display_name_property: label
  value_property: id
  value: 7
  selection_list:
    selected_index: -1
    items:
      - {label: Seven, id: 7}
      - {label: Eight, id: 8}
`)

	out, err := execute(t, "resolve", "--config", cfgPath)
	require.NoError(t, err)

	doc := decodeResolve(t, out)
	assert.Equal(t, []any{"Eight", "Seven"}, doc["names"])
	assert.Equal(t, float64(7), doc["output"])
}

func TestResolve_SelectedIndexRequiresList(t *testing.T) {
	cfgPath := writeConfig(t, "")

	_, err := execute(t, "resolve", "--config", cfgPath, "--selected-index", "1")
	assert.ErrorContains(t, err, "requires a selection list")
}

func TestResolve_NoSource(t *testing.T) {
	cfgPath := writeConfig(t, "")

	_, err := execute(t, "resolve", "--config", cfgPath)
	assert.ErrorIs(t, err, lookup.ErrNoService)
}

func TestResolve_TimesOutWaitingForService(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	cfgPath := writeConfig(t, "")

	_, err := execute(t, "resolve", "--config", cfgPath,
		"--transport", "http", "--endpoint", srv.URL, "--wait", "20ms")
	assert.ErrorContains(t, err, "no lookup result")
}

func TestDesignerMode(t *testing.T) {
	cfgPath := writeConfig(t, "")

	out, err := execute(t, "resolve", "--config", cfgPath, "--designer", "--unbound")
	require.NoError(t, err)

	doc := decodeResolve(t, out)
	assert.Equal(t, []any{"Option 1", "Option 2", "Option 3"}, doc["options"])
	assert.Equal(t, true, doc["initialized"])
}

func TestCatalogCommands_AndCatalogTransport(t *testing.T) {
	cfgPath := writeConfig(t, "server:\n  catalog_path: $DIR/catalog.db\n")
	itemsPath := filepath.Join(t.TempDir(), "items.yaml")
	require.NoError(t, os.WriteFile(itemsPath, []byte(`
items:
  - {name: Apple, value: 1}
  - {name: Apricot, value: 2}
  - {name: Banana, value: 3}
`), 0644))

	out, err := execute(t, "catalog", "import", "--config", cfgPath, itemsPath)
	require.NoError(t, err)
	assert.Equal(t, "Imported 3 items\n", out)

	out, err = execute(t, "catalog", "count", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	out, err = execute(t, "catalog", "search", "--config", cfgPath, "ap")
	require.NoError(t, err)
	var found []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	require.Len(t, found, 2)
	assert.Equal(t, "Apple", found[0]["name"])

	out, err = execute(t, "resolve", "--config", cfgPath,
		"--transport", "catalog", "--query", "ap", "--value", "2")
	require.NoError(t, err)
	doc := decodeResolve(t, out)
	assert.Equal(t, []any{"Apple", "Apricot"}, doc["names"])
	assert.Equal(t, float64(2), doc["output"])

	out, err = execute(t, "catalog", "import", "--config", cfgPath, "--replace", itemsPath)
	require.NoError(t, err)
	assert.Equal(t, "Imported 3 items\n", out)
}

func TestCatalogCount_DefaultPathCreatesDataDir(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfgPath := writeConfig(t, "")

	out, err := execute(t, "catalog", "count", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)
	assert.FileExists(t, filepath.Join(dataHome, "singleselect", "catalog.db"))
}

func TestCatalogImport_MissingFile(t *testing.T) {
	cfgPath := writeConfig(t, "server:\n  catalog_path: $DIR/catalog.db\n")

	_, err := execute(t, "catalog", "import", "--config", cfgPath, filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to open")
}

func TestConfigCommand_SetAndGet(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "config", "--config", cfgPath, "lookup.delay_ms", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "lookup.delay_ms")
	assert.Contains(t, out, "Saved to: "+cfgPath)

	out, err = execute(t, "config", "--config", cfgPath, "lookup.delay_ms")
	require.NoError(t, err)
	assert.Equal(t, "10\n", out)

	out, err = execute(t, "config", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "server.limit")
	assert.Contains(t, out, "Config file: "+cfgPath)

	_, err = execute(t, "config", "--config", cfgPath, "log.level", "loud")
	assert.Error(t, err)

	_, err = execute(t, "config", "--config", cfgPath, "nope.key")
	assert.Error(t, err)
}

func TestConfigCommand_DoesNotPersistEnvOverrides(t *testing.T) {
	t.Setenv("SINGLESELECT_LOOKUP_ENDPOINT", "http://env.example:1")
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	_, err := execute(t, "config", "--config", cfgPath, "server.limit", "5")
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "limit: 5")
	assert.NotContains(t, string(data), "env.example")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version", "--config", filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "singleselect "+Version)
	assert.Contains(t, out, "commit:")
}

func TestServe_RequiresAnAddress(t *testing.T) {
	cfgPath := writeConfig(t, "server:\n  catalog_path: $DIR/catalog.db\n")

	_, err := execute(t, "serve", "--config", cfgPath, "--http", "", "--grpc", "")
	assert.ErrorContains(t, err, "nothing to serve")
}

func TestServeLookup_StopsOnCancel(t *testing.T) {
	logger = logging.Discard()
	svc := lookup.ServiceFunc(func(context.Context, lookup.Request) (lookup.Envelope, error) {
		return lookup.NewEnvelope([]item.Item{item.String("a")}), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveLookup(ctx, svc, "127.0.0.1:0", "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("servers did not stop")
	}
}

func TestServeLookup_BusyGRPCAddressReleasesHTTP(t *testing.T) {
	logger = logging.Discard()
	svc := lookup.ServiceFunc(func(context.Context, lookup.Request) (lookup.Envelope, error) {
		return lookup.NewEnvelope(nil), nil
	})

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	free, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpAddr := free.Addr().String()
	require.NoError(t, free.Close())

	err = serveLookup(context.Background(), svc, httpAddr, busy.Addr().String())
	require.ErrorContains(t, err, "grpc listen")

	// The HTTP address is bindable again once serveLookup returns.
	lis, err := net.Listen("tcp", httpAddr)
	require.NoError(t, err, "http listener leaked")
	require.NoError(t, lis.Close())
}
