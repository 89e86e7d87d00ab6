package cmds

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/stockchat/pkg/threads"
)

func NewThreadsCommand(app *App) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Manage the local registry of conversation threads",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List threads by most recent use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(app, func(s threads.Store, output string) error {
				ts, err := s.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return writeThreads(cmd, output, ts)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of threads, 0 for all")

	create := &cobra.Command{
		Use:   "new [ticker]",
		Short: "Register a new thread and print its id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(app, func(s threads.Store, output string) error {
				ticker := app.Settings.Ticker
				if len(args) == 1 {
					ticker = args[0]
				}
				t, err := s.Create(cmd.Context(), ticker)
				if err != nil {
					return err
				}
				if output == "table" {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), t.ID)
					return err
				}
				return writeThreads(cmd, output, t)
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(app, func(s threads.Store, output string) error {
				t, ok, err := s.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return errors.Wrap(threads.ErrNotFound, args[0])
				}
				return writeThreads(cmd, output, t)
			})
		},
	}

	cmd.AddCommand(list, create, show)
	return cmd, nil
}

func withStore(app *App, fn func(threads.Store, string) error) error {
	s, err := app.settings()
	if err != nil {
		return err
	}
	store, err := app.ThreadStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store, s.Output)
}

// writeThreads accepts a single thread or a slice.
func writeThreads(cmd *cobra.Command, output string, v interface{}) error {
	var ts []threads.Thread
	switch t := v.(type) {
	case threads.Thread:
		ts = []threads.Thread{t}
	case []threads.Thread:
		ts = t
	}
	rows := make([][]string, 0, len(ts))
	for _, t := range ts {
		rows = append(rows, []string{
			t.ID,
			t.Ticker,
			fmt.Sprintf("%d", t.Turns),
			humanize.Time(t.LastUsedAt),
			t.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	return writeStructured(cmd.OutOrStdout(), output, v,
		[]string{"ID", "Ticker", "Turns", "Last used", "Created"}, rows)
}
