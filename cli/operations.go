package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"safemigrator/job"
	"safemigrator/models"
	"safemigrator/settings"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one migration batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := overridesFromFlags(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				report, err := a.engine.Run(ctx, o)
				if err != nil {
					_ = printJSON(cmd.OutOrStdout(), job.ErrorResult(err))
					return err
				}
				return printResult(cmd, job.BatchResult(report))
			})
		},
	}
	f := cmd.Flags()
	f.String("format", "", "Target format for this run (webp|avif|jxl)")
	f.Int("quality", 0, "Encoder quality for this run")
	f.Int("batch-size", 0, "Maximum number of assets to process")
	f.Bool("no-validation", false, "Commit immediately instead of keeping backups")
	f.String("time-budget", "", "Stop starting new assets after this long (e.g. 30s)")
	f.Int("max-retries", 0, "Retry cap for failed assets")
	return cmd
}

// overridesFromFlags turns the flags the user set into run overrides.
func overridesFromFlags(cmd *cobra.Command) (*settings.Overrides, error) {
	f := cmd.Flags()
	o := &settings.Overrides{}
	set := false
	if f.Changed("format") {
		v, _ := f.GetString("format")
		o.TargetFormat, set = &v, true
	}
	if f.Changed("quality") {
		v, _ := f.GetInt("quality")
		o.Quality, set = &v, true
	}
	if f.Changed("batch-size") {
		v, _ := f.GetInt("batch-size")
		o.BatchSize, set = &v, true
	}
	if f.Changed("no-validation") {
		v, _ := f.GetBool("no-validation")
		v = !v
		o.Validation, set = &v, true
	}
	if f.Changed("time-budget") {
		v, _ := f.GetString("time-budget")
		o.TimeBudget, set = &v, true
	}
	if f.Changed("max-retries") {
		v, _ := f.GetInt("max-retries")
		o.MaxRetries, set = &v, true
	}
	if !set {
		return nil, nil
	}
	if _, err := settings.Default().Apply(o); err != nil {
		return nil, err
	}
	return o, nil
}

func parseIDs(args []string) ([]models.AssetID, error) {
	ids := make([]models.AssetID, 0, len(args))
	for _, s := range args {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid asset id %q", s)
		}
		ids = append(ids, models.AssetID(n))
	}
	return ids, nil
}

// singleCommand builds commit and rollback, which share their shape.
func singleCommand(use, short, verb string, op func(*job.Engine) func(context.Context, models.AssetID) (models.Outcome, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <asset-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				o, err := op(a.engine)(ctx, ids[0])
				if err != nil && o.Kind == "" {
					return err
				}
				return printResult(cmd, job.ItemsResult(verb, []models.Outcome{o}))
			})
		},
	}
}

func newCommitCommand() *cobra.Command {
	return singleCommand("commit", "Delete the backup of a relinked asset", "commit",
		func(e *job.Engine) func(context.Context, models.AssetID) (models.Outcome, error) { return e.Commit })
}

func newRollbackCommand() *cobra.Command {
	return singleCommand("rollback", "Restore the originals of a relinked asset", "rollback",
		func(e *job.Engine) func(context.Context, models.AssetID) (models.Outcome, error) { return e.Rollback })
}

func newCommitAllCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "commit-all",
		Short: "Commit every asset that still has a backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				items, err := a.engine.CommitAll(ctx)
				if err != nil {
					return err
				}
				return printResult(cmd, job.ItemsResult("commit", items))
			})
		},
	}
}

func newReprocessCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <asset-id>...",
		Short: "Retry assets in a failure state",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				items, err := a.engine.Reprocess(ctx, ids)
				if err != nil {
					return err
				}
				return printResult(cmd, job.ItemsResult("reprocess", items))
			})
		},
	}
}
