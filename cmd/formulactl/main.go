// formulactl is an interactive console for trying formulas.
//
// It builds the same symbol table a device uses and evaluates formulas
// against it. With -config it loads the device section of a processor
// config file, so the configured attributes and inputs can be read and
// cycled exactly as the running processor would, without touching the
// bus, the database or InfluxDB.
//
// Usage:
//
//	formulactl [-config configs/config.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/attribute-processor/internal/device"
	"github.com/nerrad567/attribute-processor/internal/infrastructure/config"
	"github.com/nerrad567/attribute-processor/internal/infrastructure/logging"
	"github.com/nerrad567/attribute-processor/internal/symbols"
)

// consoleDevice names the device when no config file is given.
const consoleDevice = "console"

func main() {
	configPath := flag.String("config", "", "processor config file to load the device from")
	verbose := flag.Bool("v", false, "log engine diagnostics to stderr")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, verbose bool) error {
	dev, err := newDevice(ctx, configPath, verbose)
	if err != nil {
		return err
	}

	console, err := NewConsole(dev)
	if err != nil {
		return err
	}
	console.Run(ctx)
	return nil
}

// newDevice builds an unconnected device from the config file, or an empty
// one when configPath is empty, and loads its formulas.
func newDevice(ctx context.Context, configPath string, verbose bool) (*device.Device, error) {
	devCfg := config.DeviceConfig{Name: consoleDevice}
	var procCfg config.ProcessorConfig
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		devCfg = cfg.Device
		procCfg = cfg.Processor
	}
	// The console drives cycles itself.
	procCfg.Schedule = ""

	level := "error"
	if verbose {
		level = "debug"
	}
	log := logging.New(config.LoggingConfig{Level: level, Format: "text", Output: "stderr"}, devCfg.Name, "formulactl")

	builder := symbols.NewBuilder(nil)
	builder.SetLogger(log.Component("symbols"))

	dev, err := device.New(device.Deps{
		Config:    devCfg,
		Processor: procCfg,
		Builder:   builder,
		Logger:    log.Component("device"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating device: %w", err)
	}

	rec, err := dev.Reload(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading formulas: %w", err)
	}
	for _, skipped := range rec.Skipped {
		fmt.Fprintf(os.Stderr, "skipped: %s\n", skipped)
	}
	return dev, nil
}
