package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var catalogReplace bool

var catalogCmd = &cobra.Command{
	Use:     "catalog",
	Short:   "Manage the lookup catalog",
	GroupID: groupSetup,
	Long: `Manage the SQLite catalog answered by "singleselect serve" and by the
"catalog" lookup transport. The catalog lives at server.catalog_path, or
~/.local/share/singleselect/catalog.db by default.`,
}

var catalogImportCmd = &cobra.Command{
	Use:   "import FILE|-",
	Short: "Import items from a YAML or JSON file",
	Long: `Import items from FILE, or stdin when FILE is "-". The file holds a list of
items or a mapping with an "items" list:

  items:
    - {name: Apple, value: 1}
    - {name: Banana, value: 2}`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalogImport,
}

var catalogSearchCmd = &cobra.Command{
	Use:   "search [TEXT]",
	Short: "Search the catalog as the lookup server would",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalogSearch,
}

var catalogCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of items in the catalog",
	Args:  cobra.NoArgs,
	RunE:  runCatalogCount,
}

func init() {
	catalogImportCmd.Flags().BoolVar(&catalogReplace, "replace", false, "clear the catalog before importing")
	catalogCmd.AddCommand(catalogImportCmd, catalogSearchCmd, catalogCountCmd)
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		r = f
	}

	cat, err := openCatalog(appConfig)
	if err != nil {
		return err
	}
	defer cat.Close()

	n, err := cat.Import(cmd.Context(), r, catalogReplace)
	if err != nil {
		return err
	}
	logger.Debug("catalog import", "items", n, "replace", catalogReplace)
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d items\n", n)
	return nil
}

func runCatalogSearch(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog(appConfig)
	if err != nil {
		return err
	}
	defer cat.Close()

	items, err := cat.Search(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func runCatalogCount(cmd *cobra.Command, _ []string) error {
	cat, err := openCatalog(appConfig)
	if err != nil {
		return err
	}
	defer cat.Close()

	n, err := cat.Count(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}
