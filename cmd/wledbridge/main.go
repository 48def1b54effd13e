// WLED-Joy Bridge
//
// This is the main entry point for the WLED-Joy bridge daemon. It connects
// addressable LED controllers speaking the WLED JSON API to an MQTT-based
// home platform:
//   - Per-device synchronization loops (poll + optional WebSocket push)
//   - Platform commands in, retained state/availability out
//   - SQLite state history and optional InfluxDB telemetry
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/wledjoy/wledbridge/migrations"

	"github.com/wledjoy/wledbridge/internal/bridge"
	"github.com/wledjoy/wledbridge/internal/history"
	"github.com/wledjoy/wledbridge/internal/infrastructure/config"
	"github.com/wledjoy/wledbridge/internal/infrastructure/database"
	"github.com/wledjoy/wledbridge/internal/infrastructure/influxdb"
	"github.com/wledjoy/wledbridge/internal/infrastructure/logging"
	"github.com/wledjoy/wledbridge/internal/infrastructure/mqtt"
	"github.com/wledjoy/wledbridge/internal/light"
	"github.com/wledjoy/wledbridge/internal/wled"
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

// historyRetention is how long state-history rows are kept.
const historyRetention = 30 * 24 * time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting WLED-Joy bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the state-history database (optional)
	var db *database.DB
	var historyRepo *history.Repository
	if cfg.Database.Enabled {
		db, err = database.Open(ctx, database.Config{
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

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", cfg.Database.Path)

		historyRepo = history.NewRepository(db.DB)
	} else {
		log.Info("state history disabled")
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT, cfg.Instance.ID)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"instance_id", cfg.Instance.ID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// The bridge is created after the loops but handlers only fire once the
	// loops run, so the closure capture below is safe.
	var br *bridge.Bridge

	// Build one synchronization loop per configured device.
	loops := make(map[string]*light.Loop, len(cfg.Devices))
	devices := make(map[string]bridge.DeviceController, len(cfg.Devices))
	var sockets []*wled.Socket
	for _, dev := range cfg.Devices {
		deviceID := dev.ID
		client := wled.New(dev.Host, dev.TimeoutDuration())
		translator := light.NewTranslator(probeCapabilities(ctx, client, dev, log), dev.KeepMainLight)

		opts := []light.LoopOption{
			light.WithLogger(log),
			light.WithUpdateHandler(func(s light.State) {
				br.HandleUpdate(deviceID, s)
			}),
			light.WithPollObserver(func(latency time.Duration, ok bool) {
				influxClient.WritePollLatency(deviceID, latency, ok)
			}),
		}

		if dev.Push {
			sock := wled.NewSocket(client, log)
			sockets = append(sockets, sock)
			opts = append(opts, light.WithPushSource(sock.Snapshots()))
		}

		loop := light.NewLoop(light.LoopConfig{
			DeviceID:             deviceID,
			PollInterval:         dev.PollIntervalDuration(),
			CatalogInterval:      dev.CatalogIntervalDuration(),
			Timeout:              dev.TimeoutDuration(),
			UnreachableThreshold: dev.UnreachableThreshold,
			Optimistic:           cfg.Bridge.Optimistic,
		}, client, translator, opts...)

		loops[deviceID] = loop
		devices[deviceID] = loop
		log.Info("device configured",
			"device_id", deviceID,
			"name", dev.Name,
			"host", client.Host(),
			"push", dev.Push,
		)
	}

	br, err = bridge.New(bridge.Options{
		InstanceID:     cfg.Instance.ID,
		Version:        version,
		MQTT:           mqttClient,
		Topics:         mqttClient.Topics(),
		Devices:        devices,
		History:        historyRepo,
		Telemetry:      influxClient,
		HealthInterval: cfg.Bridge.HealthIntervalDuration(),
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	if err := br.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		br.Stop()
	}()

	// Start the device loops and push sockets.
	var wg sync.WaitGroup
	for _, sock := range sockets {
		sock := sock
		wg.Add(1)
		go func() {
			defer wg.Done()
			sock.Run(ctx)
		}()
	}
	for _, loop := range loops {
		loop := loop
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop.Run(ctx)
		}()
	}
	defer wg.Wait()

	if historyRepo != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruneLoop(ctx, historyRepo, log)
		}()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"devices", len(loops),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses WLEDJOY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WLEDJOY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// probeCapabilities asks the device what it can do. When the device is
// offline at startup the loop still has to come up, so probe failures fall
// back to an RGB-only default; the config override wins either way.
func probeCapabilities(ctx context.Context, client *wled.Client, dev config.DeviceConfig, log *logging.Logger) light.Capabilities {
	caps := light.Capabilities{SupportsRGB: true}

	probeCtx, cancel := context.WithTimeout(ctx, dev.TimeoutDuration())
	defer cancel()

	info, err := client.Info(probeCtx)
	if err != nil {
		log.Warn("capability probe failed, assuming RGB only",
			"device_id", dev.ID,
			"error", err,
		)
	} else {
		caps.SupportsRGB = info.SupportsRGB
		caps.SupportsCCT = info.SupportsCCT
		log.Info("device capabilities probed",
			"device_id", dev.ID,
			"name", info.Name,
			"version", info.Version,
			"rgb", info.SupportsRGB,
			"cct", info.SupportsCCT,
		)
	}

	if dev.SupportsCCT != nil {
		caps.SupportsCCT = *dev.SupportsCCT
	}
	return caps
}

// pruneLoop trims old state-history rows once a day.
func pruneLoop(ctx context.Context, repo *history.Repository, log *logging.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := repo.Prune(ctx, historyRetention)
			if err != nil {
				log.Warn("history prune failed", "error", err)
				continue
			}
			if removed > 0 {
				log.Info("history pruned", "rows", removed)
			}
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
