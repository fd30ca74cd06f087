package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fileforge/fileforge/internal/service"
)

// mergeOperator is the part of the merge service the operator commands use.
type mergeOperator interface {
	GetMergeJob(ctx context.Context, accountID, jobID string) (*service.MergeJobDetail, error)
	ResumeMergeJob(ctx context.Context, accountID, jobID string) (*service.MergeResult, error)
}

func newMergeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Inspect and resume account merge jobs",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Output as JSON")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <job-id>",
			Short: "Print a merge job and its ledger",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMergeOperator(cmd, func(ctx context.Context, ops mergeOperator) error {
					return showMergeJob(ctx, cmd.OutOrStdout(), ops, args[0], asJSON)
				})
			},
		},
		&cobra.Command{
			Use:   "resume <job-id>",
			Short: "Re-run an unfinished merge job",
			Long: `Re-runs the items of a running or partial merge job that have not been
migrated yet. Finished jobs are reported unchanged.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMergeOperator(cmd, func(ctx context.Context, ops mergeOperator) error {
					return resumeMergeJob(ctx, cmd.OutOrStdout(), ops, args[0], asJSON)
				})
			},
		},
	)

	return cmd
}

// withMergeOperator connects the stores for the duration of fn.
func withMergeOperator(cmd *cobra.Command, fn func(ctx context.Context, ops mergeOperator) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a.merges)
}

func showMergeJob(ctx context.Context, w io.Writer, ops mergeOperator, jobID string, asJSON bool) error {
	// Empty account id: operators may see any job.
	detail, err := ops.GetMergeJob(ctx, "", jobID)
	if err != nil {
		return fmt.Errorf("load merge job %s: %w", jobID, err)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	}
	return printMergeJob(w, detail)
}

func resumeMergeJob(ctx context.Context, w io.Writer, ops mergeOperator, jobID string, asJSON bool) error {
	result, err := ops.ResumeMergeJob(ctx, "", jobID)
	if err != nil {
		return fmt.Errorf("resume merge job %s: %w", jobID, err)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(w, "job %s: %s\n", result.Job.ID, result.Job.Status)
	fmt.Fprintf(w, "uploads moved: %d, conversions moved: %d\n", result.MergedUploads, result.MergedConversions)
	if result.RetryableItems > 0 || result.PermanentItems > 0 {
		fmt.Fprintf(w, "failed items: %d retryable, %d permanent\n", result.RetryableItems, result.PermanentItems)
	}
	return nil
}

func printMergeJob(w io.Writer, detail *service.MergeJobDetail) error {
	job := detail.Job

	fmt.Fprintf(w, "job:        %s\n", job.ID)
	fmt.Fprintf(w, "status:     %s\n", job.Status)
	fmt.Fprintf(w, "source:     %s\n", job.SourceAccountID)
	fmt.Fprintf(w, "target:     %s\n", job.TargetAccountID)
	fmt.Fprintf(w, "migrated:   %d uploads, %d conversions\n", job.MigratedUploads, job.MigratedConversions)
	fmt.Fprintf(w, "created:    %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(w, "completed:  %s\n", job.CompletedAt.Format(time.RFC3339))
	}
	if job.Error != "" {
		fmt.Fprintf(w, "error:      %s\n", job.Error)
	}

	if len(detail.Items) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tRESOURCE\tSTATUS\tATTEMPTS\tLAST ERROR")
	for _, item := range detail.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", item.Kind, item.ResourceID, item.Status, item.Attempts, item.LastError)
	}
	return tw.Flush()
}
