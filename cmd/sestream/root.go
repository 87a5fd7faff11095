package main

import (
	"fmt"
	"os"

	logs "github.com/danmuck/smplog"
	"github.com/ohowland/sestream/internal/pkg/config"
	"github.com/ohowland/sestream/internal/pkg/logcfg"
	"github.com/spf13/cobra"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "sestream",
	Short: "sestream publishes streaming state estimates of a power grid",
	Long: `sestream solves a power flow over a modeled grid every cycle, synthesizes
noisy measurements from it, runs a state estimator and publishes the estimate
on a message bus. The subscribe command persists published estimates.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logcfg.Setup()

		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := applyFlags(cmd, &loaded); err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logs.Errorf(err, "[Main] exiting")
		os.Exit(1)
	}
}

func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("transport") {
		c.Transport, _ = flags.GetString("transport")
	}
	if flags.Changed("topic") {
		c.Topic, _ = flags.GetString("topic")
	}
	if flags.Changed("http") {
		c.HTTP, _ = flags.GetString("http")
	}
	if flags.Changed("grid") {
		c.Grid, _ = flags.GetString("grid")
	}
	if flags.Changed("cadence") {
		d, err := flags.GetDuration("cadence")
		if err != nil {
			return err
		}
		c.Loop.Cadence = d
	}
	if flags.Changed("seed") {
		c.Seed, _ = flags.GetInt64("seed")
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Path to the TOML configuration file")
	rootCmd.PersistentFlags().String("transport", config.TransportMQTT, "Message bus transport: mqtt, nats, redis or mock")
	rootCmd.PersistentFlags().String("topic", "", "Topic estimates are published on")
	rootCmd.PersistentFlags().String("http", "", "Listen address of the HTTP endpoint")
}
