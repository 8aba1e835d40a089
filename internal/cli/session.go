package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/triage"
	"github.com/aretw0/triage/internal/presentation/tui"
	"github.com/aretw0/triage/pkg/domain"
	"github.com/google/uuid"
)

// ChatOptions configures an interactive chat session.
type ChatOptions struct {
	SessionID string
	In        io.Reader
	Out       io.Writer
	// Pretty enables the banner, colors and markdown rendering.
	Pretty bool
	Quiet  bool
}

// RunChat reads one message per line from opts.In and prints each reply until EOF,
// "exit"/"quit", or ctx is cancelled. "/reset" forgets the conversation.
func RunChat(ctx context.Context, eng *triage.Engine, opts ChatOptions) error {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	render := func(s string) string { return s }
	speaker := func(s string) string { return "[" + s + "]" }
	warn := func(s string) string { return s }
	if opts.Pretty {
		tui.PrintBanner(opts.Out)
		md := tui.NewRenderer()
		render = func(s string) string {
			out, err := md(s)
			if err != nil {
				return s
			}
			return strings.TrimRight(out, "\n")
		}
		speaker = tui.Speaker
		warn = tui.Warning
	}
	if !opts.Quiet {
		printSystemMessage(opts.Out, "Session '%s' active. Type 'exit' to leave, '/reset' to start over.", opts.SessionID)
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(opts.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		readErr <- err
	}()

	for {
		if !opts.Quiet {
			fmt.Fprint(opts.Out, "> ")
		}

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(opts.Out)
			return handleExecutionError(ctx.Err())
		case err := <-readErr:
			return handleExecutionError(err)
		case line = <-lines:
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			if !opts.Quiet {
				printSystemMessage(opts.Out, "Bye!")
			}
			return nil
		case "/reset":
			if err := eng.DeleteSession(ctx, opts.SessionID); err != nil {
				fmt.Fprintln(opts.Out, warn("Error: "+err.Error()))
				continue
			}
			printSystemMessage(opts.Out, "Session '%s' cleared.", opts.SessionID)
			continue
		}

		out, err := eng.Handle(ctx, domain.Inbound{SessionID: opts.SessionID, Message: line})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintln(opts.Out, warn("Error: "+err.Error()))
			continue
		}

		fmt.Fprintf(opts.Out, "%s %s\n", speaker(out.Sender), render(out.Reply))
		if out.Notice != "" {
			fmt.Fprintln(opts.Out, warn(out.Notice))
		}
	}
}
