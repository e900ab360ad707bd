package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bher20/ebillmanager/internal/tariffs"
)

var tariffsCmd = &cobra.Command{
	Use:   "tariffs",
	Short: "Inspect and import tariff presets",
}

var tariffsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tariff presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tMODE\tNAME")
		for _, p := range tariffs.Presets() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Key, p.Tariff.Mode, p.Name)
		}
		return tw.Flush()
	},
}

var tariffsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print a tariff preset as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, ok := tariffs.Get(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", tariffs.ErrUnknownTariff, args[0])
		}
		return printJSON(cmd, p)
	},
}

var importOpts struct {
	key  string
	name string
}

var tariffsImportCmd = &cobra.Command{
	Use:   "import <tariff-sheet.pdf>",
	Short: "Read slab rates from a tariff sheet PDF",
	Long: `Extract the slab table and fixed charge from a tariff sheet PDF and print
the resulting preset as JSON. Collect presets into a JSON array and set
EBILL_TARIFFS_JSON to that array to serve them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := tariffs.ImportPDF(args[0])
		if err != nil {
			return err
		}
		key := importOpts.key
		if key == "" {
			key = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}
		name := importOpts.name
		if name == "" {
			name = key
		}
		return printJSON(cmd, tariffs.Preset{
			Key:         key,
			Name:        name,
			Description: "Imported from " + filepath.Base(args[0]),
			Tariff:      cfg,
		})
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(tariffsCmd)
	tariffsCmd.AddCommand(tariffsListCmd, tariffsShowCmd, tariffsImportCmd)
	tariffsImportCmd.Flags().StringVar(&importOpts.key, "key", "", "preset key (default: file name)")
	tariffsImportCmd.Flags().StringVar(&importOpts.name, "name", "", "preset display name")
}
