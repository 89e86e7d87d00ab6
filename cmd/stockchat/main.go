package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/stockchat/cmd/stockchat/cmds"
	"github.com/go-go-golems/stockchat/pkg/config"
	"github.com/go-go-golems/stockchat/pkg/logging"
)

var app = cmds.NewApp()

var rootCmd = &cobra.Command{
	Use:   "stockchat",
	Short: "stockchat is a terminal client for the multi-agent stock analysis backend",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		if err := config.InitViper(app.Viper, configFile); err != nil {
			return err
		}
		s, err := config.Load(app.Viper)
		if err != nil {
			return err
		}
		app.Settings = s
		// reinitialize the logger now that --log-level and co are parsed
		return logging.Init(s.Logging)
	},
	SilenceUsage: true,
}

func main() {
	defer func() { _ = logging.Close() }()

	err := initRootCmd()
	cobra.CheckErr(err)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initRootCmd() error {
	if err := config.AddFlags(rootCmd, app.Viper); err != nil {
		return err
	}

	builders := []func(*cmds.App) (*cobra.Command, error){
		cmds.NewDashboardCommand,
		cmds.NewChatCommand,
		cmds.NewAskCommand,
		cmds.NewQuoteCommand,
		cmds.NewHealthCommand,
		cmds.NewThreadsCommand,
		cmds.NewTailCommand,
		cmds.NewMockServerCommand,
	}
	for _, build := range builders {
		c, err := build(app)
		if err != nil {
			return err
		}
		rootCmd.AddCommand(c)
	}
	return nil
}
