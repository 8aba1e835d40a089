package main

import (
	"os"

	"github.com/aretw0/triage/internal/cli"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the triage team in the terminal",
	Long:  `Starts an interactive session. Each line you type runs through the workflow graph.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		plain, _ := cmd.Flags().GetBool("plain")

		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		tty := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
		return cli.RunChat(ctx, app.Engine, cli.ChatOptions{
			SessionID: sessionID,
			In:        os.Stdin,
			Out:       os.Stdout,
			Pretty:    tty && !plain,
			Quiet:     !tty,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("session", "s", "", "Session id to resume (default: new session)")
	chatCmd.Flags().Bool("plain", false, "Disable colors and markdown rendering")
}
