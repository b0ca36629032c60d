package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"sportsync/internal/models"

	"github.com/spf13/cobra"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage sync jobs",
	}
	cmd.AddCommand(
		newJobsListCmd(),
		newJobsGetCmd(),
		newJobsCreateCmd(),
		newJobsActionCmd("cancel", "Cancel a pending job", "cancel"),
		newJobsActionCmd("retry", "Retry a failed or cancelled job", "retry"),
		newJobsReleaseCmd(),
		newJobsCleanupCmd(),
		newJobsStatsCmd(),
		newJobsExportCmd(),
	)
	return cmd
}

func newJobsListCmd() *cobra.Command {
	var (
		jobType string
		status  string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if jobType != "" {
				q.Set("type", jobType)
			}
			if status != "" {
				q.Set("status", status)
			}
			q.Set("limit", strconv.Itoa(limit))

			data, err := newAPIClient().do(http.MethodGet, "/api/v1/jobs?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			var page struct {
				Jobs  []models.SyncJob `json:"jobs"`
				Total int              `json:"total"`
			}
			if err := json.Unmarshal(data, &page); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPROGRESS\tTRIGGERED BY\tCREATED")
			for _, j := range page.Jobs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
					j.ID, j.Type, j.Status, j.Progress, j.TriggeredBy, j.CreatedAt.Local().Format(time.DateTime))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d jobs\n", len(page.Jobs), page.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobType, "type", "", "filter by job type")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of jobs to show")
	return cmd
}

func newJobsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newAPIClient().do(http.MethodGet, "/api/v1/jobs/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func newJobsCreateCmd() *cobra.Command {
	var (
		params   string
		priority string
		delay    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create <type>",
		Short: "Create a job (league, team, fixture, odds_upcoming, odds_live, full_sync)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !models.JobType(args[0]).Valid() {
				return fmt.Errorf("unknown job type %q", args[0])
			}
			body := map[string]any{"type": args[0], "priority": priority}
			if params != "" {
				if !json.Valid([]byte(params)) {
					return errors.New("--params must be a JSON object")
				}
				body["params"] = json.RawMessage(params)
			}
			if delay > 0 {
				body["delay"] = delay.String()
			}
			data, err := newAPIClient().do(http.MethodPost, "/api/v1/jobs", body)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVar(&params, "params", "", `job params as JSON, e.g. '{"from":"2024-03-01"}'`)
	cmd.Flags().StringVar(&priority, "priority", string(models.PriorityNormal), "low, normal or high")
	cmd.Flags().DurationVar(&delay, "delay", 0, "delay before the job becomes runnable")
	return cmd
}

func newJobsActionCmd(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newAPIClient().do(http.MethodPost, "/api/v1/jobs/"+url.PathEscape(args[0])+"/"+action, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func newJobsReleaseCmd() *cobra.Command {
	var jobType string
	cmd := &cobra.Command{
		Use:   "release [id]",
		Short: "Force release a stuck job, or every active job of --type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			switch {
			case len(args) == 1 && jobType == "":
				path = "/api/v1/jobs/" + url.PathEscape(args[0]) + "/force-release"
			case len(args) == 0 && jobType != "":
				path = "/api/v1/jobs/force-release?type=" + url.QueryEscape(jobType)
			default:
				return errors.New("pass either a job id or --type")
			}
			data, err := newAPIClient().do(http.MethodPost, path, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVar(&jobType, "type", "", "release every active job of this type")
	return cmd
}

func newJobsCleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished jobs older than the retention",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/api/v1/jobs/cleanup"
			if days > 0 {
				path += "?days=" + strconv.Itoa(days)
			}
			data, err := newAPIClient().do(http.MethodPost, path, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "age in days (0 uses the server retention)")
	return cmd
}

func newJobsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status and type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := newAPIClient().do(http.MethodGet, "/api/v1/jobs/stats", nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func newJobsExportCmd() *cobra.Command {
	var (
		from   string
		to     string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download jobs as an Excel workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if from != "" {
				q.Set("from", from)
			}
			if to != "" {
				q.Set("to", to)
			}
			data, err := newAPIClient().do(http.MethodGet, "/api/v1/jobs/export.xlsx?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			if output == "" {
				output = "jobs.xlsx"
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	return cmd
}
