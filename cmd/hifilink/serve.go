package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hifilink/hifilink/internal/api"
	"github.com/hifilink/hifilink/internal/audit"
	"github.com/hifilink/hifilink/internal/bridges/mqttbridge"
	"github.com/hifilink/hifilink/internal/infrastructure/config"
	"github.com/hifilink/hifilink/internal/infrastructure/database"
	"github.com/hifilink/hifilink/internal/infrastructure/influxdb"
	"github.com/hifilink/hifilink/internal/infrastructure/logging"
	"github.com/hifilink/hifilink/internal/infrastructure/mqtt"
	"github.com/hifilink/hifilink/internal/queue"
	"github.com/hifilink/hifilink/internal/timer"
)

// run is the service, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting hifilink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Best-effort on exit
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	sp := buildSignalPath(cfg, st.registry, log)
	defer func() {
		if closeErr := sp.Close(); closeErr != nil {
			log.Error("error releasing hardware", "error", closeErr)
		}
	}()

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

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
		influxClient.SetLogger(log)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Background loops stop before anything they use is closed.
	var wg sync.WaitGroup
	workCtx, stopWork := context.WithCancel(ctx)
	defer func() {
		stopWork()
		wg.Wait()
	}()

	cmdQueue := queue.New(cfg.Queue.Capacity)
	worker := queue.NewWorker(cmdQueue, sp.dispatcher)
	worker.SetLogger(log)
	worker.SetHeartbeat(time.Duration(cfg.Queue.IdleIntervalMS) * time.Millisecond)

	if influxClient != nil {
		metrics := metricsRecorder{writer: influxClient, queue: cmdQueue}
		sp.dispatcher.AddRecorder(metrics)
		worker.AddObserver(metrics)
	}

	var auditWriter *audit.Writer
	if cfg.Audit.Enabled {
		auditWriter = newAuditWriter(cfg, st, log)
		sp.dispatcher.AddRecorder(auditWriter)
		wg.Go(func() {
			if runErr := auditWriter.Run(workCtx); runErr != nil && workCtx.Err() == nil {
				log.Error("audit writer exited", "error", runErr)
			}
		})
	} else {
		log.Info("audit log disabled")
	}

	var timerRepo timer.Repository
	var scheduler *timer.Scheduler
	if cfg.Timers.Enabled {
		timerRepo = timer.NewSQLiteRepository(st.db.DB)
		scheduler = timer.NewScheduler(timerRepo, sp.dispatcher)
		scheduler.SetLogger(log)
		scheduler.SetTick(time.Duration(cfg.Timers.TickMS) * time.Millisecond)
		scheduler.SetDefaultDelay(time.Duration(cfg.Timers.DefaultDelayMS) * time.Millisecond)
	} else {
		log.Info("timers disabled")
	}

	apiServer, err := api.New(apiDeps(cfg, log, st, sp, cmdQueue, worker, timerRepo, scheduler, auditWriter, mqttClient, influxClient))
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	sp.dispatcher.AddRecorder(apiServer.Hub())
	worker.AddObserver(apiServer.Hub())

	if mqttClient != nil {
		rb, bridgeErr := startMQTTBridge(workCtx, cfg, log, mqttClient, cmdQueue, worker, st)
		if bridgeErr != nil {
			return bridgeErr
		}
		sp.dispatcher.AddRecorder(rb.bridge)
		worker.AddObserver(rb.bridge)
		defer rb.stop()
	}

	wg.Go(func() {
		if runErr := worker.Run(workCtx); runErr != nil && workCtx.Err() == nil {
			log.Error("queue worker exited", "error", runErr)
		}
	})
	if scheduler != nil {
		wg.Go(func() {
			if runErr := scheduler.Run(workCtx); runErr != nil && workCtx.Err() == nil {
				log.Error("timer scheduler exited", "error", runErr)
			}
		})
	}

	if err := apiServer.Start(workCtx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, st.db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"queue_capacity", cmdQueue.Capacity(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up", "pending", cmdQueue.Depth())

	// Deferred calls run in reverse order:
	// 1. API server, MQTT bridge and health reporter
	// 2. Worker and scheduler
	// 3. InfluxDB, MQTT, hardware, database

	log.Info("hifilink stopped")
	return nil
}

// apiDeps assembles the API server dependencies. Optional connections are
// only set when present so the interfaces are never typed nils.
func apiDeps(
	cfg *config.Config,
	log *logging.Logger,
	st *store,
	sp *signalPath,
	q *queue.Queue,
	worker *queue.Worker,
	timers timer.Repository,
	scheduler *timer.Scheduler,
	auditWriter *audit.Writer,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
) api.Deps {
	deps := api.Deps{
		Config:     cfg,
		Logger:     log,
		Registry:   st.registry,
		Dispatcher: sp.dispatcher,
		Queue:      q,
		Worker:     worker,
		Timers:     timers,
		Scheduler:  scheduler,
		Audit:      auditWriter,
		DB:         st.db,
		Version:    version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.InfluxDB = influxClient
	}
	return deps
}

// connectMQTT connects to the broker and hooks up connection logging.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"prefix", client.Topics().Prefix,
	)
	return client, nil
}

// runningBridge is a started MQTT bridge and its health reporter.
type runningBridge struct {
	bridge *mqttbridge.Bridge
	health *mqttbridge.HealthReporter
	log    *logging.Logger
}

func (r *runningBridge) stop() {
	r.log.Info("stopping MQTT bridge")
	r.bridge.Stop()
	r.health.Stop()
}

// startMQTTBridge subscribes to command topics and starts health reporting.
//
// Parameters:
//   - ctx: Context bounding the bridge goroutines
//   - cfg: Application configuration
//   - log: Logger instance
//   - client: Connected MQTT client
//   - q, worker: Command queue and its consumer
//   - st: Store whose registry supplies the device count
//
// Returns:
//   - *runningBridge: Started bridge and reporter
//   - error: If the command subscription fails
func startMQTTBridge(
	ctx context.Context,
	cfg *config.Config,
	log *logging.Logger,
	client *mqtt.Client,
	q *queue.Queue,
	worker *queue.Worker,
	st *store,
) (*runningBridge, error) {
	bridge, err := mqttbridge.New(mqttbridge.Options{
		MQTT:   client,
		Topics: client.Topics(),
		Queue:  q,
		QoS:    client.QoS(),
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}

	health := mqttbridge.NewHealthReporter(mqttbridge.HealthReporterConfig{
		Service:   cfg.Device.Name,
		Version:   version,
		Topic:     client.Topics().Health(),
		Interval:  time.Duration(cfg.MQTT.HealthInterval) * time.Second,
		Publisher: client,
		Queue:     q,
		Worker:    worker,
		Devices:   st.registry,
	})
	health.SetLogger(log)
	health.Start(ctx)

	log.Info("MQTT bridge started", "commands", client.Topics().AllCommands())
	return &runningBridge{bridge: bridge, health: health, log: log}, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
