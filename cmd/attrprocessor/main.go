// Attribute Processor - expression-driven dynamic attributes for one device.
//
// This is the main entry point of the attribute processor. It hosts one
// device whose attributes and state are computed from formulas:
//   - formulas come from the YAML config or the SQLite property store
//   - readings are published over MQTT, REST and WebSocket
//   - history goes to InfluxDB, which also feeds the archiving module
//
// Configuration is read from ATTRPROC_CONFIG (default configs/config.yaml).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/attribute-processor/internal/api"
	"github.com/nerrad567/attribute-processor/internal/device"
	"github.com/nerrad567/attribute-processor/internal/infrastructure/config"
	"github.com/nerrad567/attribute-processor/internal/infrastructure/database"
	"github.com/nerrad567/attribute-processor/internal/infrastructure/influxdb"
	"github.com/nerrad567/attribute-processor/internal/infrastructure/logging"
	"github.com/nerrad567/attribute-processor/internal/infrastructure/mqtt"
	"github.com/nerrad567/attribute-processor/internal/infrastructure/valuecache"
	"github.com/nerrad567/attribute-processor/internal/property"
	"github.com/nerrad567/attribute-processor/internal/symbols"
	"github.com/nerrad567/attribute-processor/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancelled on Ctrl+C or SIGTERM; everything shuts down from here.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting attribute processor",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, cfg.Device.Name, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Property store and state history
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	deps := device.Deps{
		Config:       cfg.Device,
		Processor:    cfg.Processor,
		Properties:   property.NewSQLiteRepository(db.DB),
		StateHistory: device.NewSQLiteStateHistoryRepository(db.DB),
		Logger:       log.Component("device"),
	}

	// Last-known value cache (optional)
	if cfg.Cache.Enabled {
		cache, cacheErr := valuecache.Open(cfg.Cache.Path, cfg.Device.Name)
		if cacheErr != nil {
			return fmt.Errorf("opening value cache: %w", cacheErr)
		}
		defer func() {
			log.Info("closing value cache")
			if closeErr := cache.Close(); closeErr != nil {
				log.Error("error closing value cache", "error", closeErr)
			}
		}()
		deps.Store = cache
		log.Info("value cache opened", "path", cfg.Cache.Path)
	} else {
		log.Info("value cache disabled")
	}

	// MQTT bus
	mqttClient, err := mqtt.Connect(cfg.MQTT, cfg.Device.Name)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	deps.Bus = mqttClient
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB history and archive (optional)
	var history *influxdb.History
	if cfg.InfluxDB.Enabled {
		history, err = influxdb.Connect(cfg.InfluxDB, cfg.Device.Name)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := history.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		history.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		deps.History = history
		deps.Archive = history
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled, archiving module unavailable")
	}

	// Device
	builder := symbols.NewBuilder(nil)
	builder.SetLogger(log.Component("symbols"))
	deps.Builder = builder

	dev, err := device.New(deps)
	if err != nil {
		return fmt.Errorf("creating device: %w", err)
	}

	rec, err := dev.Reload(ctx)
	if err != nil {
		return fmt.Errorf("loading device properties: %w", err)
	}
	log.Info("device configured",
		"source", rec.Source,
		"attributes", rec.Attributes,
		"states", rec.States,
		"skipped", len(rec.Skipped),
	)

	if startErr := dev.Start(); startErr != nil {
		return fmt.Errorf("subscribing device requests: %w", startErr)
	}
	defer func() {
		if stopErr := dev.Stop(); stopErr != nil {
			log.Warn("releasing device topics", "error", stopErr)
		}
	}()

	// REST API and WebSocket hub (optional)
	if cfg.API.Enabled {
		apiLog := log.Component("api")
		hub := api.NewHub(cfg.Device.Name, apiLog)
		go hub.Run(ctx)
		dev.SetBroadcaster(hub)

		server, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  apiLog,
			Device:  dev,
			Hub:     hub,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, history); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, running read schedule",
		"schedule", cfg.Processor.Schedule,
	)

	// Run blocks until the shutdown signal.
	if err := dev.Run(ctx); err != nil {
		return fmt.Errorf("running device: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ATTRPROC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ATTRPROC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - history: InfluxDB history to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, history *influxdb.History) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if history != nil {
		if err := history.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
