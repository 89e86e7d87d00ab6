package cmds

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/stockchat/pkg/eventbus"
	"github.com/go-go-golems/stockchat/pkg/events"
	"github.com/go-go-golems/stockchat/pkg/mockserver"
)

func NewTailCommand(app *App) (*cobra.Command, error) {
	var threadID string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow chat events mirrored to the Redis stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.settings()
			if err != nil {
				return err
			}
			rs := s.Redis
			rs.Enabled = true
			bus, err := eventbus.New(rs)
			if err != nil {
				return err
			}
			defer func() { _ = bus.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			return bus.Tail(ctx, func(env events.Envelope) error {
				if threadID != "" && env.ThreadID != threadID {
					return nil
				}
				b, err := events.MarshalEnvelope(env)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(b))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "only show events of this thread")
	return cmd, nil
}

func NewMockServerCommand(app *App) (*cobra.Command, error) {
	var (
		addr       string
		delay      time.Duration
		chunkWords int
	)

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Serve a scripted stand-in for the analysis backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			srv := mockserver.New(
				mockserver.WithDelay(delay),
				mockserver.WithScript(mockserver.DefaultScript(chunkWords)),
			)
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "mock backend listening on %s\n", addr)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	cmd.Flags().DurationVar(&delay, "delay", 50*time.Millisecond, "pause between streamed frames")
	cmd.Flags().IntVar(&chunkWords, "chunk-words", 4, "words per streamed output chunk")
	return cmd, nil
}
