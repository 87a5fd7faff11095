package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	logs "github.com/danmuck/smplog"
	"github.com/ohowland/sestream/internal/pkg/clock"
	"github.com/ohowland/sestream/internal/pkg/database/mongodb"
	"github.com/ohowland/sestream/internal/pkg/datastreams"
	"github.com/ohowland/sestream/internal/pkg/metrics"
	"github.com/ohowland/sestream/internal/pkg/subscriber"
	"github.com/ohowland/sestream/internal/pkg/webservice"
	"github.com/spf13/cobra"
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Consume published estimates, store them and serve the latest",
	RunE: func(cmd *cobra.Command, args []string) error {
		logs.Infof("[Main] starting sestream %s subscriber on %s transport", Version, cfg.Transport)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m := metrics.New()
		var store subscriber.Store
		if noStore, _ := cmd.Flags().GetBool("no-store"); !noStore {
			db := mongodb.New(cfg.Mongo)
			if err := db.Connect(ctx); err != nil {
				return err
			}
			defer db.Close(context.Background())
			store = db
		}

		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		if err := datastreams.ConnectRetry(ctx, client, cfg.Backoff, clock.Real{}, nil); err != nil {
			return nil
		}
		defer client.Disconnect()

		sub := subscriber.New(client, cfg.Topic, store).WithMetrics(m)
		if err := sub.Open(); err != nil {
			return err
		}

		if cfg.HTTP != "" {
			app := webservice.New(sub, m.Handler())
			go func() {
				if err := app.ListenAndServe(ctx, cfg.HTTP); err != nil {
					logs.Errorf(err, "[Main] webservice")
				}
			}()
		}
		return sub.Serve(ctx, cfg.Backoff, clock.Real{})
	},
}

func init() {
	subscribeCmd.Flags().Bool("no-store", false, "Keep estimates in memory only")
	rootCmd.AddCommand(subscribeCmd)
}
