package factory

import (
	"fmt"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/config"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store/memory"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store/postgres"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store/sqlite"
)

var (
	newSQLite = func(path string) (store.Store, error) {
		return sqlite.New(path)
	}
	newPostgres = func(conn string) (store.Store, error) {
		return postgres.New(conn)
	}
)

// Open returns the backend selected by cfg.StoreDriver.
func Open(cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite, "":
		st, err := newSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", cfg.DBPath, err)
		}
		return st, nil
	case config.DriverPostgres:
		st, err := newPostgres(cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
