package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/onnwee/stream-notifier/crypto"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Inspect and seal stored webhook URLs and OAuth tokens",
}

var secretsResealCmd = &cobra.Command{
	Use:   "reseal",
	Short: "Encrypt secrets that were stored before ENCRYPTION_KEY was set",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.EncryptionKey == "" {
			return fmt.Errorf("ENCRYPTION_KEY environment variable is required for reseal")
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return withStore(cmd, func(ctx context.Context, s adminStore) error {
			rep, err := s.ResealSecrets(ctx, dryRun)
			verb := "sealed"
			if dryRun {
				verb = "would seal"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d webhook(s) and %d token(s), %d error(s)\n", verb, rep.Webhooks, rep.Tokens, rep.Errors)
			return err
		})
	},
}

var secretsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Count stored secrets per encryption version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, s adminStore) error {
			status, err := s.EncryptionStatus(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, table := range []string{"tenants", "oauth_tokens"} {
				versions := make([]int, 0, len(status[table]))
				for v := range status[table] {
					versions = append(versions, v)
				}
				sort.Ints(versions)
				for _, v := range versions {
					fmt.Fprintf(w, "%-13s %-24s %d\n", table, versionName(v), status[table][v])
				}
			}
			return nil
		})
	},
}

func versionName(v int) string {
	switch v {
	case crypto.VersionPlaintext:
		return "plaintext"
	case crypto.VersionAESGCM:
		return "encrypted (AES-256-GCM)"
	default:
		return fmt.Sprintf("unknown version %d", v)
	}
}

func init() {
	rootCmd.AddCommand(secretsCmd)
	secretsCmd.AddCommand(secretsResealCmd, secretsStatusCmd)
	secretsResealCmd.Flags().Bool("dry-run", false, "show what would be sealed without making changes")
}
