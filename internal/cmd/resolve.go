package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/runger/singleselect/internal/item"
)

var (
	resolveFlags controlFlags
	resolveWait  time.Duration
)

var resolveCmd = &cobra.Command{
	Use:     "resolve",
	Short:   "Build the option list and resolve the bound value",
	GroupID: groupCore,
	Long: `Build the option list from a static list or the configured lookup
service, resolve the bound value against it and print the result as JSON.

Examples:
  singleselect resolve --items "banana apple apple" --value apple
  singleselect resolve --items '[{"name":"A","value":1},{"name":"B","value":2}]' --value 2
  singleselect resolve --transport http --endpoint http://127.0.0.1:8686 --query ap`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

func init() {
	resolveFlags.register(resolveCmd)
	resolveCmd.Flags().DurationVar(&resolveWait, "wait", 5*time.Second, "how long to wait for the lookup service")
}

// resolveOutput is the JSON document printed by resolve.
type resolveOutput struct {
	Options       []item.Item `json:"options"`
	Names         []string    `json:"names"`
	Selection     item.Item   `json:"selection"`
	SelectedIndex int         `json:"selected_index"`
	Output        item.Item   `json:"output"`
	Initialized   bool        `json:"initialized"`
}

func runResolve(cmd *cobra.Command, _ []string) error {
	cfg := *appConfig
	if err := resolveFlags.apply(cmd, &cfg); err != nil {
		return err
	}

	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	s, err := newSession(&cfg, logger, notify)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := waitInitialized(cmd.Context(), s, changed, resolveWait); err != nil {
		return err
	}
	return writeResolveOutput(cmd.OutOrStdout(), s)
}

// waitInitialized blocks until the control has data to select from.
func waitInitialized(ctx context.Context, s *session, changed <-chan struct{}, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for !s.ctrl.Initialized() {
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("no lookup result within %s", wait)
		}
	}
	return nil
}

func writeResolveOutput(w io.Writer, s *session) error {
	options := s.ctrl.Options()
	names := make([]string, len(options))
	for i, it := range options {
		names[i] = s.ctrl.ItemName(it, true)
	}
	out := resolveOutput{
		Options:       options,
		Names:         names,
		Selection:     s.ctrl.Selection(),
		SelectedIndex: s.ctrl.SelectedIndex(),
		Output:        s.ctrl.Output(),
		Initialized:   s.ctrl.Initialized(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
