package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/triage/internal/config"
	"github.com/aretw0/triage/pkg/consumer"
	"github.com/aretw0/triage/pkg/domain"
	"github.com/aretw0/triage/pkg/ports"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish <message>...",
	Short: "Publish a message to the triage queue",
	Long: `Publishes one chat message to the configured queue, the way a backend producer would.
The in-memory broker only lives inside 'triage serve', so use redis or amqp here.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		userID, _ := cmd.Flags().GetString("user")
		if cmd.Flags().Changed("queue") {
			cfg.Broker.Queue, _ = cmd.Flags().GetString("queue")
		}

		if cfg.Broker.Kind == config.BrokerMemory {
			return errors.New("publish needs a shared broker: set broker.kind to redis or amqp")
		}

		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		broker, err := app.Broker()
		if err != nil {
			return err
		}
		in := domain.Inbound{SessionID: sessionID, UserID: userID, Message: strings.Join(args, " ")}
		body, err := consumer.Encode(in)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := broker.DeclareQueue(ctx, cfg.Broker.Queue); err != nil {
			return err
		}
		if err := broker.Publish(ctx, cfg.Broker.Queue, ports.Envelope{Body: body}); err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Published to %s\n", cfg.Broker.Queue)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringP("session", "s", "", "Session id")
	publishCmd.Flags().StringP("user", "u", "", "User id (used as session when no session is given)")
	publishCmd.Flags().String("queue", "", "Target queue (default from config)")
}
