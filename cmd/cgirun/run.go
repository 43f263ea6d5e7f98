package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loykin/cgirun/internal/common"
	"github.com/loykin/cgirun/internal/scenario"
	"github.com/loykin/cgirun/internal/store"
)

var (
	runFrom    int
	runTo      int
	runNoStore bool
)

var runCmd = &cobra.Command{
	Use:   "run [dir]",
	Short: "Run versioned scenario files (NNN_name.yaml) in order",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		doc, dir, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
			dir = args[0]
		}
		if runNoStore {
			doc.Store.Disabled = true
		}
		return runScenarios(ctx, cmd.OutOrStdout(), doc, dir, runFrom, runTo)
	},
}

func init() {
	runCmd.Flags().IntVar(&runFrom, "from", 0, "first scenario version to run")
	runCmd.Flags().IntVar(&runTo, "to", 0, "last scenario version to run (0 = all)")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "do not record history or reuse stored env")
}

func runScenarios(ctx context.Context, out io.Writer, doc *ConfigDoc, dir string, from, to int) error {
	delay, err := doc.DelayDuration()
	if err != nil {
		return err
	}
	e, err := doc.GetEnv()
	if err != nil {
		return err
	}
	if err := doc.DecodeAuth(ctx, e); err != nil {
		return err
	}
	t, err := doc.NewTester()
	if err != nil {
		return err
	}
	defer func() { _ = t.Close() }()

	r := &scenario.Runner{
		Dir:              dir,
		Doer:             t,
		Env:              e,
		SaveResponseBody: doc.Store.SaveResponseBody,
		Delay:            delay,
	}
	if opts := doc.Store.StoreOptions(dir); opts != nil {
		st, err := store.Open(ctx, *opts)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		r.Store = st
	}

	results, runErr := r.Run(ctx, from, to)
	printResults(out, results)
	if runErr != nil {
		return runErr
	}
	common.LogInfo("scenarios completed", "dir", dir, "count", len(results))
	return nil
}

func printResults(out io.Writer, results []*scenario.Result) {
	for _, res := range results {
		state := "ok"
		if res.Failed() {
			state = "FAILED"
		}
		_, _ = fmt.Fprintf(out, "%03d %s: %s\n", res.Version, res.Name, state)
		for _, s := range res.Steps {
			line := fmt.Sprintf("  %s %s %s -> %d", s.Name, s.Method, s.Script, s.StatusCode)
			if s.Err != nil {
				line += " error: " + s.Err.Error()
			}
			_, _ = fmt.Fprintln(out, line)
		}
	}
}
