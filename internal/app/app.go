// Package app assembles the store, history recorder, tool adapters, agents
// and batch runner from configuration. Every binary builds one App.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/agent"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/batch"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/config"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/events"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/history"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/llm"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/metrics"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store/factory"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/tools"
)

const httpClientRetries = 2

var (
	openStore   = factory.Open
	newProvider = llm.NewProvider
	newBrowser  = func(headless bool, logger *zap.Logger) browser {
		return tools.NewChromeBrowser(headless, logger)
	}
)

type browser interface {
	tools.Browser
	Close()
}

type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Broker    *events.Broker
	Store     store.Store
	History   *history.Recorder
	Scraper   *agent.Agent
	Evaluator *agent.Agent
	Batch     *batch.Batch

	browser browser
}

// New opens the configured store and builds the agents over it. The caller
// owns the App and must Close it.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	provider, err := newProvider(llm.Config{
		Provider:         cfg.LLMProvider,
		Model:            cfg.LLMModel,
		BaseURL:          cfg.LLMBaseURL,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenRouterAPIKey: cfg.OpenRouterAPIKey,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	m := metrics.New()
	broker := events.NewBroker()
	recorder := history.New(st,
		history.WithBroker(broker),
		history.WithMetrics(m),
		history.WithLogger(logger.Named("history")),
	)

	toolLogger := logger.Named("tools")
	chrome := newBrowser(cfg.BrowserHeadless, toolLogger)
	httpClient := resty.New().
		SetRetryCount(httpClientRetries).
		SetRetryWaitTime(500 * time.Millisecond)
	set := agent.Toolset{
		HTTP:    tools.NewHTTPRequester(httpClient, recorder, toolLogger),
		Browser: tools.NewBrowserTools(chrome, recorder, toolLogger),
		History: tools.NewHistoryTools(recorder),
		Metrics: m,
	}

	agentOpts := []agent.Option{
		agent.WithMaxTurns(cfg.AgentMaxTurns),
		agent.WithLogger(logger.Named("agent")),
	}
	scraper := agent.NewScraper(provider, set, agentOpts...)
	evaluator := agent.NewEvaluator(provider, scraper, set, agentOpts...)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   m,
		Broker:    broker,
		Store:     st,
		History:   recorder,
		Scraper:   scraper,
		Evaluator: evaluator,
		Batch: batch.New(recorder, evaluator,
			batch.WithMetrics(m),
			batch.WithLogger(logger.Named("batch")),
		),
		browser: chrome,
	}, nil
}

// BatchOptions is the batch run described by the configuration.
func (a *App) BatchOptions() batch.Options {
	return batch.Options{
		PromptsFile:  a.Config.PromptsFile,
		OutputFile:   a.Config.OutputFile,
		GenerateHTML: a.Config.GenerateHTML,
		Concurrency:  a.Config.BatchConcurrency,
	}
}

// RunBatch runs the configured batch in process.
func (a *App) RunBatch(ctx context.Context) (batch.Summary, error) {
	return a.Batch.Run(ctx, a.BatchOptions())
}

func (a *App) Close() error {
	if a.browser != nil {
		a.browser.Close()
	}
	return a.Store.Close()
}
