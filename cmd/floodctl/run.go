package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"floodfactor/internal/app"
	"floodfactor/internal/db"
	"floodfactor/internal/types"
)

func newRunCmd(c *cli) *cobra.Command {
	var (
		req     types.FloodRequest
		bbox    []float64
		persist bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full flood pipeline for one location",
		Long: `Run geocodes the address (or takes the bounding box as given), fetches
terrain, delineates the watershed, estimates runoff and simulates flood
depths. The finished run is printed as JSON. Runs are kept in memory unless
--persist is set, in which case they are recorded in DATABASE_URL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch len(bbox) {
			case 0:
			case 4:
				req.BBox = &types.BoundingBox{West: bbox[0], South: bbox[1], East: bbox[2], North: bbox[3]}
			default:
				return fmt.Errorf("--bbox takes west,south,east,north")
			}
			if req.Address == "" && req.BBox == nil {
				return fmt.Errorf("one of --address or --bbox is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := app.Options{DisableQueue: true}
			if !persist {
				opts.Repo = db.NewMemoryRunRepository()
			}
			a, err := app.Build(ctx, cfg, c.logger, opts)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			run, runErr := a.Service.Submit(ctx, req)
			if run != nil {
				if err := printJSON(cmd.OutOrStdout(), run); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&req.Address, "address", "", "place name to geocode")
	cmd.Flags().Float64SliceVar(&bbox, "bbox", nil, "study area as west,south,east,north in degrees")
	cmd.Flags().Float64Var(&req.RainfallIntensity, "rainfall", 0, "rainfall intensity in inches/hour (default 2)")
	cmd.Flags().Float64Var(&req.DurationHours, "duration", 0, "storm duration in hours (default 150)")
	cmd.Flags().BoolVar(&persist, "persist", false, "record the run in DATABASE_URL")
	return cmd
}

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the flood run schema in DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if !cfg.Database.URL.IsSet() {
				return fmt.Errorf("DATABASE_URL is not set")
			}

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return err
			}
			c.logger.InfoContext(ctx, "schema applied")
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
