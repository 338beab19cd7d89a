package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // migrate driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // file:// source
)

// Migration directions.
const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

// ErrInvalidDirection is returned for a direction other than up or down.
var ErrInvalidDirection = errors.New("direction must be \"up\" or \"down\"")

// Migrate applies (up) or reverts (down) the schema migrations at
// cfg.MigrationsPath. It reports applied=false when nothing changed.
func Migrate(cfg Config, direction string) (applied bool, err error) {
	if direction != MigrateUp && direction != MigrateDown {
		return false, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}

	m, err := migrate.New(cfg.MigrationsPath, cfg.URL())
	if err != nil {
		return false, fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if direction == MigrateUp {
		err = m.Up()
	} else {
		err = m.Down()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("migrate %s: %w", direction, err)
	}

	return true, nil
}
