package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bulkio/internal/history"
)

type historyFlags struct {
	entity   string
	kind     string
	status   string
	page     int
	pageSize int
}

func newHistoryCmd(a *app) *cobra.Command {
	var f historyFlags

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished jobs from the history ledger",
		Long: `List finished import and export jobs, newest first.

Examples:
  jobctl history
  jobctl history --entity currencies --type import
  jobctl history --status failed --page 2 --page-size 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, a, f)
		},
	}
	cmd.Flags().StringVar(&f.entity, "entity", "", "only jobs for this entity type")
	cmd.Flags().StringVar(&f.kind, "type", "", "only import or export jobs")
	cmd.Flags().StringVar(&f.status, "status", "", "only jobs with this status (completed, failed)")
	cmd.Flags().IntVar(&f.page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.pageSize, "page-size", history.DefaultPageSize, "records per page")

	cmd.AddCommand(newHistoryAttachCmd(a))
	return cmd
}

func runHistory(cmd *cobra.Command, a *app, f historyFlags) error {
	filter := history.Filter{
		EntityType: f.entity,
		Status:     strings.ToLower(f.status),
	}
	switch kind := history.Kind(strings.ToLower(f.kind)); kind {
	case "":
	case history.KindImport, history.KindExport:
		filter.Kind = kind
	default:
		return fmt.Errorf("invalid --type %q: use import or export", f.kind)
	}

	ledger, err := a.openLedger(cmd.Context())
	if err != nil {
		return err
	}

	page, pageSize := history.NormalizePage(f.page, f.pageSize)
	result, err := ledger.Query(cmd.Context(), filter, page, pageSize)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}

	printHistory(cmd.OutOrStdout(), result)
	return nil
}

func printHistory(w io.Writer, p *history.Page) {
	if len(p.Items) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return
	}

	fmt.Fprintf(w, "%-36s  %-14s  %-6s  %-9s  %8s  %8s  %s\n", "JOB ID", "ENTITY", "TYPE", "STATUS", "ROWS", "ERRORS", "COMPLETED")
	fmt.Fprintln(w, strings.Repeat("-", 112))
	for _, rec := range p.Items {
		fmt.Fprintf(w, "%-36s  %-14s  %-6s  %-9s  %8d  %8d  %s\n",
			rec.JobID,
			rec.EntityType,
			rec.Kind,
			rec.Status,
			rec.ProcessedRows,
			rec.ErrorCount,
			rec.CompletedAt.Format("2006-01-02 15:04:05"),
		)
	}

	pages := (p.TotalCount + int64(p.PageSize) - 1) / int64(p.PageSize)
	fmt.Fprintf(w, "\nPage %d of %d (%d jobs)\n", p.Page, pages, p.TotalCount)
}

func newHistoryAttachCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <job-id> <error-report|download> <ref>",
		Short: "Attach a late artifact reference to a history record",
		Long: `Attach an error report or download reference that was produced after the
job's history record was written. A slot that is already filled is left alone.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := history.ParseArtifactKind(args[1])
			if err != nil {
				return fmt.Errorf("%w: %q (use error-report or download)", err, args[1])
			}

			ledger, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			if err := ledger.AttachArtifact(cmd.Context(), args[0], kind, args[2]); err != nil {
				return fmt.Errorf("attach %s to %s: %w", kind, args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Attached %s %s to job %s\n", kind, args[2], args[0])
			return nil
		},
	}
}
