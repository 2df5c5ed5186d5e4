package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bulkio/internal/core"
)

func newStatusCmd(a *app) *cobra.Command {
	var (
		server string
		apiKey string
	)

	cmd := &cobra.Command{
		Use:   "status <entity> <import|export> <job-id>",
		Short: "Show a job's status from a running server",
		Long: `Fetch a job document from a running server.

Examples:
  jobctl status currencies import 3f0c...
  jobctl status tax_rates export 9a41... --server http://jobs.internal:8080`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, kind, jobID := args[0], strings.ToLower(args[1]), args[2]
			if kind != "import" && kind != "export" {
				return fmt.Errorf("invalid operation %q: use import or export", args[1])
			}
			if apiKey == "" {
				apiKey = os.Getenv("JOBCTL_API_KEY")
			}

			job, err := fetchJob(cmd, a.client, server, apiKey, entity, kind, jobID)
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), job)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "base URL of the server")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (default $JOBCTL_API_KEY)")
	return cmd
}

// apiError is the error body the server returns.
type apiError struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

func fetchJob(cmd *cobra.Command, client *http.Client, server, apiKey, entity, kind, jobID string) (core.Job, error) {
	endpoint, err := url.JoinPath(server, "api", entity, kind, "jobs", jobID)
	if err != nil {
		return core.Job{}, fmt.Errorf("invalid --server: %w", err)
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
	if err != nil {
		return core.Job{}, err
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return core.Job{}, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return core.Job{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return core.Job{}, fmt.Errorf("server returned %d: %s (Code: %s)", resp.StatusCode, apiErr.Message, apiErr.Code)
		}
		return core.Job{}, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var job core.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return core.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}

func printJob(w io.Writer, job core.Job) {
	fmt.Fprintf(w, "Job: %s\n", job.ID)
	fmt.Fprintf(w, "  Entity: %s\n", job.EntityType)
	fmt.Fprintf(w, "  Type: %s\n", job.Kind)
	fmt.Fprintf(w, "  Status: %s\n", job.Status)
	fmt.Fprintf(w, "  Progress: %d%% (%d/%d rows)\n", job.ProgressPercent, job.ProcessedRows, job.TotalRows)
	if job.Kind == core.KindImport {
		fmt.Fprintf(w, "  Created: %d  Updated: %d  Skipped: %d  Errors: %d\n",
			job.SuccessCount, job.UpdatedCount, job.SkippedCount, job.ErrorCount)
	}
	fmt.Fprintf(w, "  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(w, "  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "  Duration: %s\n", job.CompletedAt.Sub(job.StartedAt).Round(time.Millisecond))
	}
	if job.ErrorReportID != "" {
		fmt.Fprintf(w, "  Error report: %s\n", job.ErrorReportID)
	}
	if job.DownloadRef != "" {
		fmt.Fprintf(w, "  Download: /api/%s/export/jobs/%s/download\n", job.EntityType, job.ID)
	}
	if job.ExpiresAt != nil {
		fmt.Fprintf(w, "  Expires: %s\n", job.ExpiresAt.Format(time.RFC3339))
	}
	if job.Message != "" {
		fmt.Fprintf(w, "  Message: %s\n", job.Message)
	}
}
