package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loykin/cgirun/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded scenario runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		doc, dir, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		opts := doc.Store.StoreOptions(dir)
		if opts == nil {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Store is disabled - no history available")
			return nil
		}
		st, err := store.Open(ctx, *opts)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		runs, err := st.ListRuns(historyLimit)
		if err != nil {
			return err
		}
		return writeHistory(cmd.OutOrStdout(), runs)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "show the N most recent runs (0 = all)")
}

func writeHistory(out io.Writer, runs []store.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "no runs recorded")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tRAN AT\tVERSION\tSCENARIO\tSTEP\tREQUEST\tSTATUS\tRESULT")
	for _, r := range runs {
		result := "ok"
		if r.Failed {
			result = "failed"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s %s\t%d\t%s\n",
			r.ID, r.RanAt, r.Version, r.Scenario, r.Step, r.Method, r.Script, r.StatusCode, result)
	}
	return tw.Flush()
}
