// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/puzzleduel/config"
	"github.com/wfunc/puzzleduel/models"
)

// Database stores match history.
type Database interface {
	SaveMatchRecord(ctx context.Context, rec *models.MatchRecord) error
	RecentMatches(ctx context.Context, limit int) ([]models.MatchRecord, error)
	Close() error
}

var (
	ErrDuplicateRecord = errors.New("duplicate match record")
	ErrUnknownDriver   = errors.New("unknown database driver")
)

const connectTimeout = 5 * time.Second

// Open returns the history backend selected by cfg.Driver.
func Open(cfg config.DatabaseConfig) (Database, error) {
	pg := cfg.Postgres
	switch cfg.Driver {
	case "":
		return NewMemory(), nil
	case "gorm":
		return NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "pq":
		return NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func dsn(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}
