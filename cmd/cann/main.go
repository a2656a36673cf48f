// Package main provides the cann CLI, sample programs exercising the device
// runtime.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/swdee/go-cann"
)

// globalFlags are shared by all sub commands
type globalFlags struct {
	configFile string
	device     int
	devices    int
	logLevel   string
}

func main() {

	var gf globalFlags

	rootCmd := &cobra.Command{
		Use:   "cann",
		Short: "Sample programs for the go-cann device runtime",
		Long: `cann runs sample image processing and arithmetic pipelines on the
go-cann device runtime.

Configuration is read from the file given by --config, then overridden by
the CANN_* environment variables and finally by command line flags.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&gf.configFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().IntVar(&gf.device, "device", 0, "Device id to run on")
	rootCmd.PersistentFlags().IntVar(&gf.devices, "devices", 0, "Number of devices to enumerate (0 uses config)")
	rootCmd.PersistentFlags().StringVar(&gf.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(newInfoCmd(&gf))
	rootCmd.AddCommand(newProcessCmd(&gf))
	rootCmd.AddCommand(newBenchCmd(&gf))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openContext builds the runtime context from the config file, environment
// and flags, initializes it and selects the device
func openContext(gf *globalFlags) (*cann.Context, error) {

	cfg := cann.DefaultConfig()

	if gf.configFile != "" {
		var err error
		cfg, err = cann.LoadConfig(gf.configFile)

		if err != nil {
			return nil, err
		}
	} else if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if gf.devices > 0 {
		cfg.DeviceCount = gf.devices
	}

	if gf.logLevel != "" {
		cfg.LogLevel = gf.logLevel
	}

	ctx, err := cann.NewContext(cfg)

	if err != nil {
		return nil, err
	}

	err = ctx.Init()

	if err != nil {
		return nil, fmt.Errorf("error initializing runtime: %w", err)
	}

	err = ctx.SetDevice(gf.device)

	if err != nil {
		ctx.Finalize()
		return nil, err
	}

	return ctx, nil
}

// closeContext finalizes the runtime, reporting teardown failures
func closeContext(ctx *cann.Context) {
	if err := ctx.Finalize(); err != nil {
		ctx.Logger().Error("error finalizing runtime", "error", err)
	}
}
