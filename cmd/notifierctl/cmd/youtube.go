package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/onnwee/stream-notifier/youtubeapi"
)

var youtubeCmd = &cobra.Command{
	Use:   "youtube",
	Short: "Manage YouTube Data API OAuth credentials",
	Long: `Use these commands when YOUTUBE_API_KEY is not set and the notifier
reads video metadata with an OAuth token (YT_CLIENT_ID, YT_CLIENT_SECRET,
YT_REDIRECT_URI).`,
}

var youtubeAuthURLCmd = &cobra.Command{
	Use:   "auth-url",
	Short: "Print the consent URL and its state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateOAuthReady(); err != nil {
			return err
		}
		b := make([]byte, 16)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("state gen: %w", err)
		}
		state := hex.EncodeToString(b)
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, youtubeapi.NewAuth(cfg, nil).AuthCodeURL(state))
		fmt.Fprintf(w, "state: %s\n", state)
		return nil
	},
}

var youtubeExchangeCmd = &cobra.Command{
	Use:   "exchange <code>",
	Short: "Exchange an authorization code and store the token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateOAuthReady(); err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, s adminStore) error {
			tok, err := youtubeapi.NewAuth(cfg, s).Exchange(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token stored (expires %s, refresh token: %t)\n",
				tok.Expiry.Format(time.RFC3339), tok.RefreshToken != "")
			return nil
		})
	},
}

var youtubeTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show whether a token is stored and when it expires",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, s adminStore) error {
			tok, err := s.LoadToken(ctx, youtubeapi.Provider)
			if err != nil {
				return fmt.Errorf("load token: %w", err)
			}
			w := cmd.OutOrStdout()
			if tok == nil {
				fmt.Fprintln(w, "no youtube token stored")
				return nil
			}
			fmt.Fprintf(w, "expiry:        %s\n", tok.Expiry.Format(time.RFC3339))
			fmt.Fprintf(w, "expired:       %t\n", !tok.Expiry.IsZero() && time.Now().After(tok.Expiry))
			fmt.Fprintf(w, "refresh token: %t\n", tok.RefreshToken != "")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(youtubeCmd)
	youtubeCmd.AddCommand(youtubeAuthURLCmd, youtubeExchangeCmd, youtubeTokenCmd)
}
