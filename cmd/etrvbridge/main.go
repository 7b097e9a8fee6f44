// etrvbridge keeps a HomeMatic IP radiator valve, reached through the
// CCU XML-API add-on, in sync with the home's MQTT bus.
//
// It polls the valve's datapoints, mirrors them as retained MQTT state,
// forwards setpoint and profile commands back to the appliance, records an
// audit trail in SQLite and optional telemetry in InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-etrv/internal/api"
	"github.com/nerrad567/gray-logic-etrv/internal/audit"
	"github.com/nerrad567/gray-logic-etrv/internal/bridge"
	"github.com/nerrad567/gray-logic-etrv/internal/etrv"
	"github.com/nerrad567/gray-logic-etrv/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-etrv/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-etrv/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-etrv/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-etrv/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-etrv/migrations"
)

// Set at build time via -ldflags "-X main.version=1.0.0".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the components and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting etrv bridge", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)
	if cfg.Logging.Debug {
		if dump, dumpErr := cfg.Dump(); dumpErr == nil {
			log.Debug("effective configuration\n" + dump)
		}
	}

	reg, err := etrv.LoadRegistry(cfg.DatapointList(), cfg.Appliance.FeatureLevel)
	if err != nil {
		return fmt.Errorf("loading datapoints: %w", err)
	}

	display := etrv.NewDisplay()
	display.SetLogger(log)
	checks := make(map[string]api.HealthChecker)

	// Audit trail
	var recorder etrv.EventRecorder
	var auditRepo audit.Repository
	db, err := openDatabase(ctx, cfg.Database)
	switch {
	case errors.Is(err, database.ErrDisabled):
		log.Info("audit trail disabled")
	case err != nil:
		return err
	default:
		defer closeWith(log, "database", db.Close)
		repo := audit.NewSQLiteRepository(db.DB, cfg.Appliance.DeviceID)
		async := audit.NewAsyncRecorder(repo, log)
		defer async.Close()
		recorder, auditRepo = async, repo
		checks["database"] = db
		log.Info("audit trail enabled", "path", db.Path())
	}

	// Telemetry
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer closeWith(log, "InfluxDB", influxClient.Close)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		display.AddSink(bridge.NewTelemetrySink(cfg.Appliance.DeviceID, influxClient))
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	session, err := etrv.NewSession(etrv.SessionOptions{
		Registry:  reg,
		DeviceID:  cfg.Appliance.DeviceID,
		APIPath:   cfg.Appliance.APIPath,
		Transport: etrv.NewHTTPTransport(cfg.Appliance.Address, cfg.Appliance.Port, logging.ServiceName+"/"+version),
		Display:   display,
		Reconciler: etrv.Reconciler{
			BatteryOKMessage:  cfg.Display.BatteryOKMessage,
			BatteryLowMessage: cfg.Display.BatteryLowMessage,
		},
		Heartbeat:      cfg.GetHeartbeat(),
		PollInterval:   cfg.GetPollInterval(),
		RequestTimeout: cfg.GetRequestTimeout(),
		Recorder:       recorder,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	// MQTT host boundary
	if cfg.MQTT.Enabled {
		mqttClient, br, mqttErr := startMQTT(ctx, cfg, session, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer closeWith(log, "MQTT", mqttClient.Close)
		defer br.Stop()
		display.AddSink(br)
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	sessionErr := make(chan error, 1)
	go func() { sessionErr <- session.Run(ctx) }()

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:    cfg.API,
			Logger:    log,
			Session:   session,
			AuditRepo: auditRepo,
			Checks:    checks,
			Version:   version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := server.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer closeWith(log, "API server", server.Close)
	}

	// First fetch now rather than one poll interval from now.
	if err := session.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("initial refresh not started", "error", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"appliance", fmt.Sprintf("%s:%d", cfg.Appliance.Address, cfg.Appliance.Port),
		"device_id", cfg.Appliance.DeviceID,
	)

	select {
	case <-ctx.Done():
		<-sessionErr
	case err := <-sessionErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("session: %w", err)
		}
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("ETRV_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase opens the audit database and applies migrations. It returns
// database.ErrDisabled when no path is configured.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		if errors.Is(err, database.ErrDisabled) {
			return nil, err
		}
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// startMQTT connects with the offline LWT and starts the bridge.
func startMQTT(ctx context.Context, cfg *config.Config, session *etrv.Session, log *logging.Logger) (*mqtt.Client, *bridge.Bridge, error) {
	will, err := bridge.LWT(bridge.Protocol)
	if err != nil {
		return nil, nil, fmt.Errorf("building MQTT will: %w", err)
	}

	client, err := mqtt.Connect(cfg.MQTT, will)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() { log.Info("MQTT reconnected") })
	client.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	br, err := bridge.NewBridge(bridge.Options{
		DeviceID:   cfg.Appliance.DeviceID,
		BridgeID:   bridge.Protocol,
		Version:    version,
		MQTTClient: client,
		Session:    session,
		Logger:     log,
	})
	if err != nil {
		client.Close() //nolint:errcheck // error path
		return nil, nil, fmt.Errorf("creating bridge: %w", err)
	}
	if err := br.Start(ctx); err != nil {
		client.Close() //nolint:errcheck // error path
		return nil, nil, fmt.Errorf("starting bridge: %w", err)
	}
	return client, br, nil
}

func closeWith(log *logging.Logger, name string, closeFn func() error) {
	log.Info("closing " + name)
	if err := closeFn(); err != nil {
		log.Error("error closing "+name, "error", err)
	}
}
