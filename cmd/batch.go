package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go.aimuz.me/comictl/internal/types"
)

var batchCmd = &cobra.Command{
	Use:   "batch URL...",
	Short: "Translate page images in chunks of four",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		out := cmd.OutOrStdout()

		svc, err := newService(ctx, newConsoleSender(out))
		if err != nil {
			return err
		}
		defer svc.Shutdown()

		rep, err := svc.Retry().TranslateBatch(ctx, args)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "IMAGE\tRESULT\tNOTE")
		for _, it := range rep.Items {
			note := ""
			switch {
			case it.Skipped:
				note = "already in progress"
			case it.CacheHit:
				note = "cached"
			case it.Result.Mode == types.ModeError:
				note = it.Result.Error
			}
			mode := string(it.Result.Mode)
			if it.Skipped {
				mode = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", it.Locator, mode, note)
		}
		if ferr := tw.Flush(); ferr != nil {
			return ferr
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
}
