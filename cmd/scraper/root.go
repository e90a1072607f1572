package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/app"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/config"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/logging"
)

var (
	loadConfig = config.Load
	newLogger  = logging.New
	newApp     = app.New
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scraper",
		Short:         "scraper runs the multi-agent web scraper and inspects its scrape history.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(),
		newBatchCmd(),
		newHistoryCmd(),
		newAdviceCmd(),
		newReportCmd(),
	)
	return root
}

// withApp builds the App from the environment for one command and closes it
// afterwards.
func withApp(fn func(a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing store", zap.Error(err))
		}
	}()
	return fn(a)
}
