package commands

import (
	"context"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/C0nstantin/mailrelay/app"
	"github.com/C0nstantin/mailrelay/closer"
	"github.com/C0nstantin/mailrelay/log"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				log.Errorf("%s", err)
				return err
			}

			a, err := app.New(cfg)
			if err != nil {
				log.Errorf("start: %s", err)
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			c := closer.New(os.Interrupt, syscall.SIGTERM)
			c.Add(func() error {
				cancel()
				return nil
			})

			err = a.Run(ctx)
			c.CloseAll()
			if cerr := a.Close(); cerr != nil {
				log.Errorf("close: %s", cerr)
			}
			log.Infof("stopped")
			return err
		},
	}
}
