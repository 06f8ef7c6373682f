package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"go.aimuz.me/comictl/internal/app"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number of cached results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := handleLocal(cmd, app.Message{Action: app.ActionCacheStats})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "cached results: %d\n", *reply.CacheSize)
		return err
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := handleLocal(cmd, app.Message{Action: app.ActionClearCache}); err != nil {
			return err
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
		return err
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// handleLocal routes one message through an in-process service.
func handleLocal(cmd *cobra.Command, msg app.Message) (app.Reply, error) {
	ctx := commandContext(cmd)
	svc, err := newService(ctx, newConsoleSender(io.Discard))
	if err != nil {
		return app.Reply{}, err
	}
	defer svc.Shutdown()
	return svc.Router().Handle(ctx, msg)
}
