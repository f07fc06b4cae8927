package main

import (
	"fmt"

	"github.com/cuppalabs/cuppa/internal/seed"
	"github.com/cuppalabs/cuppa/pkg/app"
	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load products, exemplars, and store locations from a YAML fixture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, _ := cmd.Flags().GetString("file")
			skipEmbed, _ := cmd.Flags().GetBool("skip-embed")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fixture, err := seed.Load(file)
			if err != nil {
				return err
			}

			logger := newLogger(cmd, cfg)
			pipe, err := app.NewPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer pipe.Close()

			res, err := seed.Apply(cmd.Context(), fixture, seed.Deps{
				Catalog:   pipe.Stores.Catalog,
				Exemplars: pipe.Stores.Exemplars,
				Vectors:   pipe.Vectors,
				Logger:    logger,
			}, seed.Options{SkipEmbed: skipEmbed})
			if err != nil {
				return err
			}

			fmt.Printf("Seeded %d products, %d exemplars, %d locations\n",
				res.Products, res.Exemplars, res.Locations)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "seed.yaml", "Path to the seed fixture")
	cmd.Flags().Bool("skip-embed", false, "Skip embedding; exemplar vectors are backfilled lazily")
	addCommonFlags(cmd)
	return cmd
}
