package cmds

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/stockchat/pkg/api"
	"github.com/go-go-golems/stockchat/pkg/dashboard"
)

func NewQuoteCommand(app *App) (*cobra.Command, error) {
	var withHistory bool

	cmd := &cobra.Command{
		Use:   "quote [ticker]",
		Short: "Print the stock snapshot the dashboard shows",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.settings()
			if err != nil {
				return err
			}
			ticker := s.Ticker
			if len(args) == 1 {
				ticker = args[0]
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			snap, err := client.Stock(cmd.Context(), ticker, s.Period)
			if err != nil {
				return err
			}
			if !withHistory && s.Output != "table" {
				snap.History = nil
			}
			headers, rows := quoteTable(snap, withHistory)
			return writeStructured(cmd.OutOrStdout(), s.Output, snap, headers, rows)
		},
	}
	cmd.Flags().BoolVar(&withHistory, "history", false, "include the price history")
	return cmd, nil
}

func quoteTable(snap *api.Snapshot, withHistory bool) ([]string, [][]string) {
	if withHistory {
		rows := make([][]string, 0, len(snap.History))
		for _, p := range snap.History {
			rows = append(rows, []string{
				p.Time,
				price(p.Open),
				price(p.High),
				price(p.Low),
				price(p.Close),
				dashboard.FormatVolume(p.Volume),
			})
		}
		return []string{"Date", "Open", "High", "Low", "Close", "Volume"}, rows
	}

	rows := [][]string{
		{"Ticker", snap.Ticker},
		{"Name", snap.Name},
		{"Price", price(snap.Price)},
		{"Change", dashboard.FormatChange(snap.Change, snap.ChangePct)},
		{"Volume", dashboard.FormatVolume(snap.Volume)},
	}
	for _, c := range dashboard.Stats(snap) {
		rows = append(rows, []string{c.Label, c.Value})
	}
	if snap.Sector != "" {
		rows = append(rows, []string{"Sector", snap.Sector})
	}
	if snap.Industry != "" {
		rows = append(rows, []string{"Industry", snap.Industry})
	}
	if closes := snap.Closes(); len(closes) > 1 {
		rows = append(rows, []string{"Trend", dashboard.Sparkline(closes, 40)})
	}
	return []string{"Field", "Value"}, rows
}

func price(v float64) string { return fmt.Sprintf("$%.2f", v) }
