package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/stockchat/pkg/chat"
	"github.com/go-go-golems/stockchat/pkg/threads"
)

func NewChatCommand(app *App) (*cobra.Command, error) {
	var raw bool

	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Stream a chat turn, or start a line-based chat session",
		Long: `With a message, streams one turn and exits. Without one, reads messages
from stdin, one per line, keeping the same thread for the whole session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.settings()
			if err != nil {
				return err
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			store, err := app.ThreadStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			var ms mirrors
			opts := []chat.Option{}
			if raw {
				rp, err := startRawPrinter(ctx, out)
				if err != nil {
					return err
				}
				defer func() { _ = rp.Stop() }()
				ms = append(ms, rp)
			} else {
				opts = append(opts, chat.WithOnUpdate(newTranscriptPrinter(out).OnUpdate))
			}
			bus, err := app.Mirror()
			if err != nil {
				return err
			}
			if bus != nil {
				defer func() { _ = bus.Close() }()
				ms = append(ms, bus)
			}
			if len(ms) > 0 {
				opts = append(opts, chat.WithMirror(ms))
			}

			session := threads.NewSession(store, s.ThreadID, s.Ticker)
			controller := chat.NewController(client, session, opts...)

			if len(args) > 0 {
				err = controller.SendMessage(ctx, strings.Join(args, " "))
			} else {
				err = chatLoop(ctx, controller, cmd.InOrStdin(), out, stdinIsTerminal())
			}
			if id := session.Current(); id != "" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "thread: %s\n", id)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print events as JSON lines instead of the transcript")
	return cmd, nil
}

// chatLoop sends each non-empty input line as a turn. Failed turns are
// already in the transcript, so they do not end the session.
func chatLoop(ctx context.Context, c *chat.Controller, in io.Reader, out io.Writer, interactive bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			_, _ = fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return errors.Wrap(scanner.Err(), "read input")
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := c.SendMessage(ctx, text); err != nil {
			log.Debug().Err(err).Msg("turn failed")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
