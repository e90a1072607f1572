package main

import (
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/app"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/config"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/logging"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/workflows"
)

var (
	loadConfig      = config.Load
	newLogger       = logging.New
	dialTemporal    = client.Dial
	newApp          = app.New
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	temporalClient, err := dialTemporal(client.Options{
		HostPort: cfg.TemporalAddress,
		Logger:   logging.Temporal(logger.Named("temporal")),
	})
	if err != nil {
		return err
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

	application, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("closing store", zap.Error(err))
		}
	}()

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: max(cfg.BatchConcurrency, 1),
	})
	workflows.Register(w, workflows.NewBatchActivities(application.Batch))

	logger.Info("batch worker started",
		zap.String("task_queue", cfg.TemporalTaskQueue),
		zap.String("store", cfg.StoreDriver),
	)
	return w.Run(workerInterrupt())
}
