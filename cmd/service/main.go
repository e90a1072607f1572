package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/api"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/app"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/batch"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/config"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/logging"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/scheduler"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/workflows"
)

const batchJobName = "batch-scrape"

type server interface {
	Start(ctx context.Context, addr string) error
	RunBatch(ctx context.Context) (batch.Summary, error)
}

type jobScheduler interface {
	Schedule(spec string, name string, job func(ctx context.Context)) (cron.EntryID, error)
	Start(ctx context.Context)
}

type batchService interface {
	RunBatch(ctx context.Context, input workflows.BatchInput) (batch.Summary, error)
}

var (
	loadConfig   = config.Load
	newLogger    = logging.New
	newApp       = app.New
	dialTemporal = client.Dial
	newBatches   = func(c client.Client, taskQueue string) batchService {
		return workflows.NewService(c, taskQueue)
	}
	newServer = func(a *app.App, batches api.BatchRunner) server {
		return api.NewServer(a.History, a.Broker, batches, a.Config,
			api.WithMetrics(a.Metrics),
			api.WithLogger(a.Logger.Named("api")),
		)
	}
	newScheduler = func(logger *zap.Logger) jobScheduler {
		return scheduler.New(logger)
	}
	notifyContext = signal.NotifyContext
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

	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	application, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("closing store", zap.Error(err))
		}
	}()

	runner, closeRunner, err := batchRunner(application, logger)
	if err != nil {
		return err
	}
	defer closeRunner()

	srv := newServer(application, runner)

	if cfg.DisableScheduler {
		logger.Info("scheduler disabled")
	} else {
		sched := newScheduler(logger.Named("scheduler"))
		if _, err := sched.Schedule(cfg.CronSchedule, batchJobName, func(ctx context.Context) {
			_, _ = srv.RunBatch(ctx)
		}); err != nil {
			return err
		}
		sched.Start(ctx)
	}

	addr := fmt.Sprintf(":%s", cfg.ServicePort)
	logger.Info("scraper service listening",
		zap.String("addr", addr),
		zap.String("store", cfg.StoreDriver),
		zap.String("batch_backend", cfg.BatchBackend),
	)
	return srv.Start(ctx, addr)
}

// batchRunner runs batches in process, or on the Temporal worker when the
// temporal backend is configured.
func batchRunner(a *app.App, logger *zap.Logger) (api.BatchRunner, func(), error) {
	cfg := a.Config
	if cfg.BatchBackend != config.BackendTemporal {
		return api.BatchRunnerFunc(a.RunBatch), func() {}, nil
	}
	temporalClient, err := dialTemporal(client.Options{
		HostPort: cfg.TemporalAddress,
		Logger:   logging.Temporal(logger.Named("temporal")),
	})
	if err != nil {
		return nil, nil, err
	}
	closeClient := func() {
		if temporalClient != nil {
			temporalClient.Close()
		}
	}
	service := newBatches(temporalClient, cfg.TemporalTaskQueue)
	return api.BatchRunnerFunc(func(ctx context.Context) (batch.Summary, error) {
		return service.RunBatch(ctx, workflows.BatchInput{
			PromptsFile:  cfg.PromptsFile,
			OutputFile:   cfg.OutputFile,
			GenerateHTML: cfg.GenerateHTML,
			Concurrency:  cfg.BatchConcurrency,
		})
	}), closeClient, nil
}
