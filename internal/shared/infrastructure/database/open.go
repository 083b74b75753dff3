package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrDriverNotLinked   = errors.New("database driver not linked into this binary")
)

// Config selects and tunes a connection.
type Config struct {
	// Driver is detected from URL when empty or "auto".
	Driver Driver
	// URL is a postgres:// URL or a SQLite path (optionally sqlite://).
	URL string
	// SQLitePath wins over URL for SQLite. Empty means ~/.gadfly/gadfly.db.
	SQLitePath string
	// MaxConns caps the PostgreSQL pool; zero keeps pgxpool's default.
	MaxConns int
}

// Opener opens a connection for one driver.
type Opener func(ctx context.Context, cfg Config) (Connection, error)

var (
	openersMu sync.RWMutex
	openers   = map[Driver]Opener{}
)

// Register links a driver implementation. The driver packages call it from
// init, so a blank import is enough.
func Register(driver Driver, open Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[driver] = open
}

// Open resolves the driver and opens the connection.
func Open(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" || driver == "auto" {
		driver = DetectDriver(cfg.URL)
	}
	if !driver.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	if driver == DriverSQLite && cfg.SQLitePath == "" {
		cfg.SQLitePath = SQLitePathFromURL(cfg.URL)
	}

	openersMu.RLock()
	open := openers[driver]
	openersMu.RUnlock()
	if open == nil {
		return nil, fmt.Errorf("%w: %s", ErrDriverNotLinked, driver)
	}
	return open(ctx, cfg)
}
