package commands

import (
	"github.com/spf13/cobra"

	"github.com/C0nstantin/mailrelay/app"
	"github.com/C0nstantin/mailrelay/config"
	"github.com/C0nstantin/mailrelay/log"
)

var configPath string

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mailrelay",
		Short:        "Relay Telegram messages to email on behalf of a directory user",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "yaml config file (default $CONFIG or ./config/config.yaml)")

	root.AddCommand(runCmd(), checkConfigCmd(), envCmd())
	return root
}

// loadConfig reads and validates the configuration, logging warnings.
func loadConfig(cmd *cobra.Command) (app.Config, error) {
	var cfg app.Config
	if configPath != "" {
		if err := setConfigEnv(configPath); err != nil {
			return cfg, err
		}
	}
	if err := config.LoadConfig(&cfg); err != nil {
		return cfg, err
	}
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warnf("%s", w)
	}
	return cfg, err
}
