package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/ohowland/sestream/internal/pkg/metrics"
	"github.com/ohowland/sestream/internal/pkg/webservice"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Run the estimation loop and publish every estimate",
	RunE: func(cmd *cobra.Command, args []string) error {
		logs.Infof("[Main] starting sestream %s publisher on %s transport", Version, cfg.Transport)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		m := metrics.New()
		driver, err := buildDriver(cfg, client, m)
		if err != nil {
			return err
		}

		if cfg.HTTP != "" {
			app := webservice.New(nil, m.Handler())
			go func() {
				if err := app.ListenAndServe(ctx, cfg.HTTP); err != nil {
					logs.Errorf(err, "[Main] metrics endpoint")
				}
			}()
		}
		return driver.Run(ctx)
	},
}

func init() {
	publishCmd.Flags().String("grid", "", "Topology file of the modeled grid")
	publishCmd.Flags().Duration("cadence", 10*time.Second, "Interval between successful cycles")
	publishCmd.Flags().Int64("seed", 0, "Measurement noise seed, 0 seeds from the clock")
	rootCmd.AddCommand(publishCmd)
}
