package main

import (
	"github.com/aretw0/triage/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the queue consumer and the HTTP API",
	Long: `Starts the queue consumer and the HTTP server in one process. The consumer reads the
configured queue, retries failed messages, dead-letters the rest, and publishes replies.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		noConsumer, _ := cmd.Flags().GetBool("no-consumer")
		noHTTP, _ := cmd.Flags().GetBool("no-http")
		if cmd.Flags().Changed("queue") {
			cfg.Broker.Queue, _ = cmd.Flags().GetString("queue")
		}

		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		err = cli.Serve(ctx, app, cli.ServeOptions{Addr: addr, NoConsumer: noConsumer, NoHTTP: noHTTP})
		if sig := ctx.Signal(); sig != nil {
			logger.Info("shutdown complete", "signal", sig.String())
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (default from config, :8080)")
	serveCmd.Flags().String("queue", "", "Queue to consume (default from config, message_queue)")
	serveCmd.Flags().Bool("no-consumer", false, "Serve HTTP only")
	serveCmd.Flags().Bool("no-http", false, "Consume the queue only")
}
