package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfishy/nexus-cli/internal/report"
	"github.com/wolfishy/nexus-cli/internal/storage"
)

func newReportsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect journaled verification failures",
	}

	var (
		limit   int
		jsonOut bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List failure reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if !cfg.Reports.JournalEnabled() {
				return fmt.Errorf("failure journal is disabled (reports.journal: false)")
			}

			db, err := storage.OpenSQLite(cmd.Context(), cfg.State.Path)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer db.Close()

			entries, err := report.NewJournal(db).List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if entries == nil {
					entries = []report.Entry{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No failure reports.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tTASK\tINPUT\tKIND\tENV\tMESSAGE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
					e.CreatedAt.Format(time.RFC3339), e.TaskID, e.InputIndex, e.Kind, e.Environment, e.Message)
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum reports to show (0 for all)")
	list.Flags().BoolVar(&jsonOut, "json", false, "Output reports as JSON")

	cmd.AddCommand(list)
	return cmd
}
