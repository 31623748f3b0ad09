package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/phone-enrich/internal/model"
)

var probeCmd = &cobra.Command{
	Use:   "probe <url>...",
	Short: "Check whether websites are reachable",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		noCache, _ := cmd.Flags().GetBool("no-cache")
		sc := cfg.Store
		if noCache {
			sc.Driver = "none"
		}
		st, err := initStore(ctx, sc)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		results := initProber(cfg.Probe, st).CheckAll(ctx, args)
		formatProbes(os.Stdout, results)
		return nil
	},
}

func formatProbes(out io.Writer, results []model.ProbeResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "URL\tREACHABLE\tFINAL_URL\tREASON")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", r.URL, r.Reachable, r.FinalURL, r.Reason)
	}
	_ = w.Flush()
}

func init() {
	probeCmd.Flags().Bool("no-cache", false, "skip the probe cache")
	rootCmd.AddCommand(probeCmd)
}
