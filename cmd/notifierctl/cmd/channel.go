package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/onnwee/stream-notifier/feed"
	"github.com/onnwee/stream-notifier/monitor"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Manage monitored channels",
}

var channelAddCmd = &cobra.Command{
	Use:   "add <channel-id> [feed-url]",
	Short: "Monitor a channel",
	Long: `Add a channel to the tenant. Without feed-url the channel's public
YouTube Atom feed is used.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch := monitor.Channel{ID: args[0], FeedURL: feed.ChannelURL(args[0])}
		if len(args) == 2 {
			ch.FeedURL = args[1]
		}
		return withStore(cmd, func(ctx context.Context, s adminStore) error {
			if err := s.AddChannel(ctx, tenant, ch); err != nil {
				return fmt.Errorf("add channel: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", ch.ID, ch.FeedURL)
			return nil
		})
	},
}

var channelRmCmd = &cobra.Command{
	Use:     "rm <channel-id>",
	Aliases: []string{"remove"},
	Short:   "Stop monitoring a channel",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, s adminStore) error {
			removed, err := s.RemoveChannel(ctx, tenant, args[0])
			if err != nil {
				return fmt.Errorf("remove channel: %w", err)
			}
			if !removed {
				return fmt.Errorf("channel %s is not monitored by tenant %s", args[0], tenant)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		})
	},
}

var channelLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List monitored channels in evaluation order",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, s adminStore) error {
			channels, err := s.Channels(ctx, tenant)
			if err != nil {
				return fmt.Errorf("list channels: %w", err)
			}
			if len(channels) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no channels for tenant %s\n", tenant)
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHANNEL\tFEED")
			for _, ch := range channels {
				fmt.Fprintf(w, "%s\t%s\n", ch.ID, ch.FeedURL)
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(channelCmd)
	channelCmd.AddCommand(channelAddCmd, channelRmCmd, channelLsCmd)
}
