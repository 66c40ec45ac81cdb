package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func NewReportsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect audits and reports in the local store",
	}

	cmd.AddCommand(newReportsListCommand())
	cmd.AddCommand(newReportsShowCommand())
	return cmd
}

func newReportsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored audits, newest first",
		RunE:  runReportsList,
	}
}

func newReportsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <audit-id>",
		Short: "Print the full JSON report for an audit",
		Args:  cobra.ExactArgs(1),
		RunE:  runReportsShow,
	}
}

func runReportsList(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(false)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer eng.Close()

	audits := eng.store.ListAudits(context.Background())
	if len(audits) == 0 {
		fmt.Println("No audits stored yet. Run `lumen audit <url>` first.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AUDIT ID\tSITE\tSTATUS\tCREATED\tDURATION")
	for _, a := range audits {
		duration := "-"
		if a.CompletedAt != nil {
			duration = a.CompletedAt.Sub(a.CreatedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.SiteURL, a.Status, a.CreatedAt.Format(time.RFC3339), duration)
	}
	return w.Flush()
}

func runReportsShow(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(false)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer eng.Close()

	report, err := eng.store.GetReport(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load report: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
