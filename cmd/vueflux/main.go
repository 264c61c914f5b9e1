// VueFlux - energy usage collector
//
// VueFlux polls one or more energy-monitoring accounts, converts the
// per-channel readings into flat power-usage points with on/off transition
// events, and writes them to InfluxDB. Optional extras: a retained MQTT
// mirror of live readings, a Prometheus metrics endpoint, and a SQLite
// catalog of discovered devices and channels.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vueflux/vueflux/internal/catalog"
	"github.com/vueflux/vueflux/internal/collector"
	"github.com/vueflux/vueflux/internal/infrastructure/config"
	"github.com/vueflux/vueflux/internal/infrastructure/database"
	"github.com/vueflux/vueflux/internal/infrastructure/influxdb"
	"github.com/vueflux/vueflux/internal/infrastructure/logging"
	"github.com/vueflux/vueflux/internal/infrastructure/mqtt"
	"github.com/vueflux/vueflux/internal/metrics"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting VueFlux",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "accounts", len(cfg.Accounts))

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the device catalog (optional)
	var deviceCatalog *catalog.Catalog
	if cfg.Catalog.Enabled {
		db, dbErr := database.Open(database.Config{
			Path:        cfg.Catalog.Path,
			WALMode:     cfg.Catalog.WALMode,
			BusyTimeout: cfg.Catalog.BusyTimeout,
		})
		if dbErr != nil {
			return fmt.Errorf("opening catalog database: %w", dbErr)
		}
		defer func() {
			log.Info("closing catalog database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing catalog database", "error", closeErr)
			}
		}()

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running catalog migrations: %w", migrateErr)
		}
		deviceCatalog = catalog.New(db)
		for _, account := range cfg.Accounts {
			entries, listErr := deviceCatalog.Channels(ctx, account.Name)
			if listErr != nil {
				return fmt.Errorf("reading catalog: %w", listErr)
			}
			log.Info("device catalog ready",
				"account", account.Name,
				"known_channels", len(entries),
			)
		}
	} else {
		log.Info("device catalog disabled")
	}

	// Connect to InfluxDB
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
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

	// Wipe previous data when a reset was requested
	if cfg.InfluxDB.Reset {
		log.Warn("resetting measurement", "measurement", collector.Measurement)
		if resetErr := influxClient.ResetMeasurement(ctx, collector.Measurement, time.Now()); resetErr != nil {
			return fmt.Errorf("resetting measurement: %w", resetErr)
		}
	}

	// Connect to MQTT broker (optional)
	var mirror collector.Mirror
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
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
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		mirror = mqttClient
	} else {
		log.Info("MQTT mirror disabled")
	}

	// Start the metrics endpoint (optional)
	promMetrics := metrics.New()
	if cfg.Metrics.Enabled {
		if err := startMetricsServer(ctx, cfg.Metrics, promMetrics, log); err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
		log.Info("metrics endpoint started", "listen", cfg.Metrics.Listen)
	} else {
		log.Info("metrics endpoint disabled")
	}

	c, err := collector.New(collector.Options{
		Config:   cfg.Collector,
		Accounts: cfg.Accounts,
		Sink:     influxClient,
		Mirror:   mirror,
		Catalog:  deviceCatalog,
		Metrics:  promMetrics,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating collector: %w", err)
	}

	log.Info("initialisation complete, polling")
	if err := c.Run(ctx); err != nil {
		return fmt.Errorf("collector: %w", err)
	}

	log.Info("VueFlux stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VUEFLUX_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VUEFLUX_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startMetricsServer serves the Prometheus registry over HTTP, shutting the
// listener down when ctx is cancelled. The listener is bound synchronously
// so a busy port fails startup instead of surfacing minutes later.
func startMetricsServer(ctx context.Context, cfg config.MetricsConfig, m *metrics.Metrics, log *logging.Logger) error {
	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.Error("metrics server failed", "listen", cfg.Listen, "error", serveErr)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	return nil
}
