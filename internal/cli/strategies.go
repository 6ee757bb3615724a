package cli

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/rescue/internal/recovery"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the built-in recovery strategies in the order they are tried",
	Run: func(cmd *cobra.Command, args []string) {
		engine := recovery.NewEngine(recovery.DefaultConfig())
		defer engine.Close()
		_ = engine.RegisterBuiltins(recovery.BuiltinDeps{})

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(w, "PRIORITY\tNAME\tCATEGORIES\tTIMEOUT\tDESCRIPTION")
		descs := engine.Strategies()
		slices.SortStableFunc(descs, func(a, b recovery.Descriptor) int { return b.Priority - a.Priority })
		for _, d := range descs {
			cats := make([]string, len(d.Categories))
			for i, c := range d.Categories {
				cats[i] = string(c)
			}
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				d.Priority, d.Name, strings.Join(cats, ","), d.Timeout, d.Description)
		}
		_ = w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}
