package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/devaudit/internal/analysis"
	httpapi "github.com/fyrsmithlabs/devaudit/internal/http"
	"github.com/fyrsmithlabs/devaudit/internal/report"
	"github.com/fyrsmithlabs/devaudit/internal/retrieval"
)

var (
	// create command flags
	input        report.UserInput
	problemFile  string
	listLimit    int
	buildWait    bool
	pollInterval time.Duration
	exportOut    string
)

func init() {
	rootCmd.AddCommand(createCmd, listCmd, showCmd, buildCmd, jobCmd, candidatesCmd, classificationCmd, exportCmd)

	createCmd.Flags().StringVar(&input.ProblemText, "problem", "", "Problem description (required unless --problem-file)")
	createCmd.Flags().StringVar(&problemFile, "problem-file", "", "Read the problem description from a file, - for stdin")
	createCmd.Flags().StringVar(&input.ProcessObject, "process", "", "Process or object concerned")
	createCmd.Flags().StringVar(&input.Period, "period", "", "Period of the deviation")
	createCmd.Flags().StringVar(&input.ParticipantsRoles, "participants", "", "Participants and roles")
	createCmd.Flags().StringVar(&input.WhatViolated, "violated", "", "What was violated")
	createCmd.Flags().StringVar(&input.AmountsTerms, "amounts", "", "Amounts and terms")
	createCmd.Flags().StringVar(&input.Documents, "documents", "", "Documents and evidence")

	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of deviations to return")

	buildCmd.Flags().BoolVar(&buildWait, "wait", true, "Poll the build job until it finishes")
	buildCmd.Flags().DurationVar(&pollInterval, "poll", 2*time.Second, "Polling interval")

	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Write the report to a file instead of stdout")
}

func recordPath(arg string, suffix string) (string, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return "", fmt.Errorf("invalid deviation id %q", arg)
	}
	return fmt.Sprintf("/api/v1/deviations/%d%s", id, suffix), nil
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a deviation record",
	Long: `Create a draft deviation record from the auditor's description.

Examples:
  devaudit create --problem "Счёт поставщика оплачен дважды" --period "2024 Q1"
  devaudit create --problem-file note.txt --amounts "1.2 млн руб."`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := input
		if problemFile != "" {
			var data []byte
			var err error
			if problemFile == "-" {
				data, err = readAll(cmd)
			} else {
				data, err = os.ReadFile(problemFile)
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", problemFile, err)
			}
			in.ProblemText = string(data)
		}
		if err := in.Validate(); err != nil {
			return err
		}

		var rec report.Record
		if err := newClient().do(cmd.Context(), http.MethodPost, "/api/v1/deviations", httpapi.CreateRequest(in), &rec); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created deviation %d\n", rec.ID)
		return nil
	},
}

func readAll(cmd *cobra.Command) ([]byte, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(cmd.InOrStdin())
	return buf.Bytes(), err
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your deviations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp httpapi.ListResponse
		path := fmt.Sprintf("/api/v1/deviations?limit=%d", listLimit)
		if err := newClient().do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		if len(resp.Deviations) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No deviations found")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tPROBLEM")
		for _, d := range resp.Deviations {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.ID, d.Status, d.CreatedAt, oneLine(d.ProblemText, 60))
		}
		return w.Flush()
	},
}

// oneLine flattens s and cuts it to n runes.
func oneLine(s string, n int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\r' || c == '\t' {
			r[i] = ' '
		}
	}
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return string(r)
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a deviation record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := recordPath(args[0], "")
		if err != nil {
			return err
		}
		var rec report.Record
		if err := newClient().do(cmd.Context(), http.MethodGet, path, nil, &rec); err != nil {
			return err
		}
		return printJSON(cmd, rec)
	},
}

var buildCmd = &cobra.Command{
	Use:   "build <id>",
	Short: "Generate the report of a deviation",
	Long: `Start the report build of a deviation. By default the command waits
for the build to finish, printing progress while the generator works.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := recordPath(args[0], "/build")
		if err != nil {
			return err
		}
		c := newClient()
		var job analysis.Job
		if err := c.do(cmd.Context(), http.MethodPost, path, nil, &job); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Build job %s started\n", job.ID)
		if !buildWait {
			return nil
		}
		done, err := waitJob(cmd.Context(), c, job.ID, pollInterval, func(j analysis.Job) {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s, attempt %d, %s elapsed\n", j.State, j.Attempt, j.Elapsed.Round(time.Second))
		})
		if err != nil {
			return err
		}
		return reportJob(cmd, done)
	},
}

func reportJob(cmd *cobra.Command, job analysis.Job) error {
	if job.State == analysis.JobSucceeded {
		fmt.Fprintf(cmd.OutOrStdout(), "Report of deviation %d is ready\n", job.RecordID)
		return nil
	}
	if job.Preview != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Generator answer preview:\n%s\n", job.Preview)
	}
	return fmt.Errorf("build failed: %s", job.Error)
}

// waitJob polls the job until it reaches a final state.
func waitJob(ctx context.Context, c *client, id string, every time.Duration, progress func(analysis.Job)) (analysis.Job, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		var job analysis.Job
		if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+id, nil, &job); err != nil {
			return analysis.Job{}, err
		}
		if job.Done() {
			return job, nil
		}
		if progress != nil {
			progress(job)
		}
		select {
		case <-ctx.Done():
			return analysis.Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

var jobCmd = &cobra.Command{
	Use:   "job <job-id>",
	Short: "Show the state of a build job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var job analysis.Job
		if err := newClient().do(cmd.Context(), http.MethodGet, "/api/v1/jobs/"+args[0], nil, &job); err != nil {
			return err
		}
		return printJSON(cmd, job)
	},
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates <id>",
	Short: "Show the taxonomy candidates retrieved for a deviation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := recordPath(args[0], "/candidates")
		if err != nil {
			return err
		}
		var set retrieval.CandidateSet
		if err := newClient().do(cmd.Context(), http.MethodGet, path, nil, &set); err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, group := range []struct {
			title string
			list  []retrieval.Candidate
		}{{"CATEGORIES", set.Categories}, {"RISKS", set.Risks}} {
			fmt.Fprintf(w, "%s\t\t\n", group.title)
			for _, c := range group.list {
				fmt.Fprintf(w, "%s\t%.0f\t%s\n", c.ID, c.Confidence, c.Name)
			}
		}
		return w.Flush()
	},
}

var classificationCmd = &cobra.Command{
	Use:   "classification <id>",
	Short: "Show the chosen category and risk of a built report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := recordPath(args[0], "/classification")
		if err != nil {
			return err
		}
		var resp httpapi.ClassificationResponse
		if err := newClient().do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		for _, c := range resp.Classifications {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s (confidence %.0f)\n", c.Slot, c.Primary.ID, c.Primary.Name, c.Confidence)
			for _, alt := range c.Alternatives {
				fmt.Fprintf(cmd.OutOrStdout(), "  alternative: %s %s\n", alt.ID, alt.Name)
			}
			if c.Rationale != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", c.Rationale)
			}
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export the report as Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := recordPath(args[0], "/export")
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := newClient().do(cmd.Context(), http.MethodGet, path, nil, &buf); err != nil {
			return err
		}
		if exportOut == "" {
			_, err := buf.WriteTo(cmd.OutOrStdout())
			return err
		}
		if err := os.WriteFile(exportOut, buf.Bytes(), 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", exportOut, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", exportOut)
		return nil
	},
}
