package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"safemigrator/failures"
	"safemigrator/models"
)

type assetStatus struct {
	AssetID models.AssetID   `json:"asset_id"`
	State   string           `json:"state"`
	Error   *failures.Record `json:"error,omitempty"`
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <asset-id>",
		Short: "Show the lifecycle state and last error of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				state, err := a.engine.Lifecycle(ctx, ids[0])
				if err != nil {
					return err
				}
				rec, err := a.engine.Error(ctx, ids[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), assetStatus{AssetID: ids[0], State: state.String(), Error: rec})
			})
		},
	}
}

func newReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report <asset-id>",
		Short: "Show the conversion report of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				rep, err := a.engine.Report(ctx, ids[0])
				if err != nil {
					return err
				}
				if rep == nil {
					return fmt.Errorf("no report for asset %d", ids[0])
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the aggregate migration counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				stats, err := a.engine.Statistics(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func newDimensionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dimensions",
		Short: "List files whose name disagrees with their pixel size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				issues, err := a.engine.DimensionIssues(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), issues)
			})
		},
	}
}

func newSettingsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Print the saved migration settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				s, err := a.engine.Settings(ctx)
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(s)
			})
		},
	}
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Register the images under the uploads root as assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.host.ImportTree(ctx, a.cfg.BackupSubdir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d assets\n", n)
				return nil
			})
		},
	}
}
