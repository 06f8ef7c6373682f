package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.aimuz.me/comictl/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the message endpoint for the browser side",
	Long: `Serve exposes the translation core over HTTP:

  POST /messages        inbound message, answered with a reply
  GET  /events          drain queued outbound messages (?wait=5s long-polls)
  GET  /images/:handle  rendered images referenced by outbound messages`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		queue := server.NewQueue(viper.GetInt("queue_size"))
		svc, err := newService(ctx, queue)
		if err != nil {
			return err
		}
		defer svc.Shutdown()

		srv := server.New(svc.Router(), queue, svc.Media())
		return srv.Run(ctx, viper.GetString("addr"))
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:7420", "listen address")
	serveCmd.Flags().Int("queue-size", server.DefaultQueueSize, "undelivered event limit")
	_ = viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("queue_size", serveCmd.Flags().Lookup("queue-size"))

	rootCmd.AddCommand(serveCmd)
}
