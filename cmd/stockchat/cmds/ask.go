package cmds

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/stockchat/pkg/api"
)

func NewAskCommand(app *App) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "ask <message...>",
		Short: "Ask the backend without streaming and print the final reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.settings()
			if err != nil {
				return err
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			resp, err := client.Chat(cmd.Context(), api.ChatRequest{
				Message:  strings.Join(args, " "),
				ThreadID: s.ThreadID,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(renderMarkdown(resp.Reply), "\n"))
			return err
		},
	}
	return cmd, nil
}

func NewHealthCommand(app *App) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is up and its agent graph is ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.settings()
			if err != nil {
				return err
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			h, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			graphErr := ""
			if h.GraphError != nil {
				graphErr = *h.GraphError
			}
			return writeStructured(cmd.OutOrStdout(), s.Output, h,
				[]string{"Server", "Status", "Graph ready", "Graph error"},
				[][]string{{client.BaseURL(), h.Status, fmt.Sprintf("%t", h.GraphReady), graphErr}},
			)
		},
	}
	return cmd, nil
}
