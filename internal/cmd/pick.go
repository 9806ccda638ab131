package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/runger/singleselect/internal/picker"
)

// minPickerWidth is the narrowest terminal the picker renders in.
const minPickerWidth = 20

// errCancelled is returned when the user leaves the picker without
// choosing.
var errCancelled = errors.New("cancelled")

var (
	pickFlags controlFlags
	pickTitle string
)

var pickCmd = &cobra.Command{
	Use:     "pick",
	Short:   "Choose an option interactively",
	GroupID: groupCore,
	Long: `Open a terminal picker over the option list. Typing filters a static
list locally or queries the lookup service. Enter prints the published value
as JSON on stdout; Esc exits with an error.

The picker draws on /dev/tty so stdout can be captured:
  choice=$(singleselect pick --items "red green blue")`,
	Args: cobra.NoArgs,
	RunE: runPick,
}

func init() {
	pickFlags.register(pickCmd)
	pickCmd.Flags().StringVar(&pickTitle, "title", "", "title shown above the options")
}

func runPick(cmd *cobra.Command, _ []string) error {
	cfg := *appConfig
	if err := pickFlags.apply(cmd, &cfg); err != nil {
		return err
	}

	tty, err := openTTY()
	if err != nil {
		return err
	}
	defer tty.Close()

	changes := picker.NewChanges()
	s, err := newSession(&cfg, logger, changes.Notify)
	if err != nil {
		return err
	}
	defer s.Close()

	// stdout is usually a pipe here, so detect colors from the tty.
	lipgloss.SetColorProfile(termenv.NewOutput(tty).ColorProfile())

	model := picker.NewModel(s.ctrl, s.opts, changes, pickTitle)
	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithInput(tty),
		tea.WithOutput(tty),
	)
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("picker: %w", err)
	}

	m, ok := final.(picker.Model)
	if !ok {
		return errors.New("picker: unexpected model type")
	}
	result, chosen := m.Result()
	if !chosen {
		return errCancelled
	}
	return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
}
