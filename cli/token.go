package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"safemigrator/config"
	"safemigrator/utils"
)

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint an admin API token signed with MIGRATOR_AUTH_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSecret == "" {
				return errors.New("MIGRATOR_AUTH_SECRET is not set")
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			readOnly, _ := cmd.Flags().GetBool("read-only")
			scope := utils.ScopeWrite
			if readOnly {
				scope = utils.ScopeRead
			}
			tok, err := utils.SignAdminToken([]byte(cfg.AuthSecret), args[0], ttl, scope)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 0, "Token lifetime; 0 never expires")
	cmd.Flags().Bool("read-only", false, "Only allow read endpoints")
	return cmd
}
