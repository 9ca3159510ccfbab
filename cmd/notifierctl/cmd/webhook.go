package cmd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage the tenant notification webhook",
}

var webhookSetCmd = &cobra.Command{
	Use:   "set <url>",
	Short: "Set the webhook notifications are posted to",
	Long: `Store the tenant webhook. The URL is sealed at rest when
ENCRYPTION_KEY is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := url.Parse(args[0])
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return fmt.Errorf("invalid webhook url %q", args[0])
		}
		return withStore(cmd, func(ctx context.Context, s adminStore) error {
			if err := s.SetDestination(ctx, tenant, args[0]); err != nil {
				return fmt.Errorf("set webhook: %w", err)
			}
			sealed := cfg.EncryptionKey != ""
			fmt.Fprintf(cmd.OutOrStdout(), "webhook set for tenant %s (encrypted: %t)\n", tenant, sealed)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(webhookCmd)
	webhookCmd.AddCommand(webhookSetCmd)
}
