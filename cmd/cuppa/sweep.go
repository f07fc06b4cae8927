package main

import (
	"fmt"

	"github.com/cuppalabs/cuppa/internal/maintenance"
	"github.com/cuppalabs/cuppa/pkg/app"
	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evict expired cache and session rows once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)

			stores, err := app.OpenStores(cfg, logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			job := &maintenance.CacheSweepJob{Stores: stores.Sweepable, Logger: logger}
			n, err := job.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Swept %d expired rows\n", n)
			return nil
		},
	}
	addCommonFlags(cmd)
	return cmd
}
