package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const FallbackSchedule = "0 8 * * *"

// Scheduler fires jobs on standard five-field cron specs in UTC. A job that
// is still running when its next tick arrives skips that tick.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu  sync.Mutex
	ctx context.Context
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	adapter := cronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger: logger,
		ctx:    context.Background(),
	}
}

// ResolveSchedule parses spec, falling back to FallbackSchedule when it is
// not a valid cron expression. It returns the spec actually used.
func ResolveSchedule(spec string) (cron.Schedule, string, error) {
	schedule, err := cron.ParseStandard(spec)
	if err == nil {
		return schedule, spec, nil
	}
	fallback, fallbackErr := cron.ParseStandard(FallbackSchedule)
	if fallbackErr != nil {
		return nil, "", fallbackErr
	}
	return fallback, FallbackSchedule, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
}

// Schedule registers job under name. An invalid spec is logged and replaced
// by FallbackSchedule.
func (s *Scheduler) Schedule(spec string, name string, job func(ctx context.Context)) (cron.EntryID, error) {
	schedule, used, err := ResolveSchedule(spec)
	if schedule == nil {
		return 0, err
	}
	if err != nil {
		s.logger.Warn("invalid cron schedule, using fallback",
			zap.String("schedule", spec),
			zap.String("fallback", used),
			zap.Error(err),
		)
	}
	id := s.cron.Schedule(schedule, cron.FuncJob(func() {
		started := time.Now()
		s.logger.Info("scheduled job starting", zap.String("job", name))
		job(s.context())
		s.logger.Info("scheduled job finished", zap.String("job", name), zap.Duration("duration", time.Since(started)))
	}))
	s.logger.Info("scheduled job",
		zap.String("job", name),
		zap.String("schedule", used),
		zap.Time("next", schedule.Next(time.Now().UTC())),
	)
	return id, nil
}

// Start runs the scheduler until ctx is done. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started")
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
