package cmds

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/stockchat/pkg/chat"
	"github.com/go-go-golems/stockchat/pkg/dashboard"
	"github.com/go-go-golems/stockchat/pkg/logging"
	"github.com/go-go-golems/stockchat/pkg/threads"
	"github.com/go-go-golems/stockchat/pkg/ui"
)

func NewDashboardCommand(app *App) (*cobra.Command, error) {
	var noMarkdown bool

	cmd := &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"ui"},
		Short:   "Open the interactive dashboard with the agentic chat panel",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.settings()
			if err != nil {
				return err
			}
			// logs must not draw over the alt screen
			ls := s.Logging
			ls.Quiet = true
			if err := logging.Init(ls); err != nil {
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

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			eventsCh := make(chan tea.Msg, 64)
			send := func(msg tea.Msg) {
				select {
				case eventsCh <- msg:
				case <-ctx.Done():
				}
			}

			opts := []chat.Option{
				chat.WithOnUpdate(func(u chat.Update) { send(ui.ChatUpdateMsg(u)) }),
			}
			bus, err := app.Mirror()
			if err != nil {
				return err
			}
			if bus != nil {
				defer func() { _ = bus.Close() }()
				opts = append(opts, chat.WithMirror(bus))
			}

			session := threads.NewSession(store, s.ThreadID, s.Ticker)
			controller := chat.NewController(client, session, opts...)
			poller := dashboard.NewPoller(client, s.Period, s.RefreshInterval)

			model := ui.NewAppModel(ctx, controller, poller, eventsCh, s.Ticker, ui.WithMarkdown(!noMarkdown))
			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return poller.Run(egCtx, s.Ticker,
					func(t string) { send(ui.FetchBeginMsg{Ticker: t}) },
					func(r dashboard.Result) { send(ui.FetchResultMsg(r)) },
				)
			})
			eg.Go(func() error {
				defer cancel()
				_, err := p.Run()
				controller.Cancel()
				if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
					return errors.Wrap(err, "run dashboard")
				}
				return nil
			})

			err = eg.Wait()
			if id := session.Current(); id != "" {
				log.Info().Str("thread_id", id).Msg("dashboard closed")
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&noMarkdown, "no-markdown", false, "show agent replies as plain text")
	return cmd, nil
}
