package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/C0nstantin/mailrelay/app"
	"github.com/C0nstantin/mailrelay/config"
	"github.com/C0nstantin/mailrelay/errors"
)

func checkConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			var cfgErr *app.ConfigurationError
			if errors.As(err, &cfgErr) {
				for _, p := range cfgErr.Problems {
					fmt.Fprintln(cmd.OutOrStdout(), "error:", p)
				}
				return err
			}
			if err != nil {
				return err
			}
			mode := "direct, sender " + cfg.SMTP.Username
			if cfg.LDAP.Enabled() {
				mode = "directory " + cfg.LDAP.URL()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: %s -> %s (%s)\n", cfg.SMTP.Addr(), cfg.Recipient, mode)
			return nil
		},
	}
}

func envCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables the bot reads",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := config.Usage(&app.Config{})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func setConfigEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Er(err, "config file")
	}
	return errors.E(os.Setenv("CONFIG", path))
}
