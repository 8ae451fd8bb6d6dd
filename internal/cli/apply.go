package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/spf13/cobra"

	"github.com/isometry/replicad/internal/config"
	ldapclient "github.com/isometry/replicad/internal/ldap"
	"github.com/isometry/replicad/internal/replication"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	RecordsPath string
	Replicas    []string
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a batch of change records to replicas",
		Long: `Apply every record in the records file to each selected replica in order.

One line is printed per record. A replica stops at the first retryable
outcome so that later changes are not applied out of order; the remaining
records are reported as pending.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApply(cmd.Context(), rootOpts, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.RecordsPath, "records", "r", "", "change records file (YAML)")
	cmd.Flags().StringSliceVar(&opts.Replicas, "replica", nil, "replica name to apply to (repeatable; default all)")
	_ = cmd.MarkFlagRequired("records")

	return cmd
}

// applySummary counts outcomes across all replicas.
type applySummary struct {
	applied   int
	retryable int
	fatal     int
	pending   int
}

func (s applySummary) failed() int {
	return s.retryable + s.fatal + s.pending
}

func runApply(ctx context.Context, rootOpts *RootOptions, opts *ApplyOptions, w io.Writer) error {
	cfg, err := config.Load(rootOpts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load configuration", err)
	}
	records, err := config.LoadRecords(opts.RecordsPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load records", err)
	}
	targets, err := cfg.Targets(opts.Replicas...)
	if err != nil {
		return WrapExitError(ExitCommandError, "select replicas", err)
	}

	sessions := ldapclient.NewSessionManager(append(cfg.SessionOptions(), rootOpts.sessionOptions...)...)
	engine := replication.NewEngine(sessions, replication.WithRetryAttempts(cfg.Retry.Attempts))

	var summary applySummary
	for _, target := range targets {
		applyToReplica(ctx, engine, target, records, w, &summary)
		_ = sessions.Teardown(ctx, target)
	}

	tflog.Info(ctx, "Apply finished", map[string]any{
		"replicas":  len(targets),
		"records":   len(records),
		"applied":   summary.applied,
		"retryable": summary.retryable,
		"fatal":     summary.fatal,
		"pending":   summary.pending,
	})

	if n := summary.failed(); n > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d changes not applied",
			n, len(records)*len(targets)))
	}
	return nil
}

func applyToReplica(ctx context.Context, engine *replication.Engine, target *ldapclient.ReplicaTarget,
	records []replication.ChangeRecord, w io.Writer, summary *applySummary,
) {
	for i := range records {
		rec := &records[i]
		out := engine.Apply(ctx, target, rec)
		writeOutcome(w, target, rec, out)

		switch out.Status {
		case replication.StatusOK:
			summary.applied++
		case replication.StatusFatal:
			summary.fatal++
		case replication.StatusRetryable:
			summary.retryable++
			if pending := len(records) - i - 1; pending > 0 {
				summary.pending += pending
				fmt.Fprintf(w, "%s\tstopped\t%d record(s) pending\n", target.Name, pending)
			}
			return
		}
	}
}
