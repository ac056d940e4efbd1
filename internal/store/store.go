// Package store persists campground listings behind a driver-agnostic
// interface with Postgres and SQLite backends.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/opencamp/harvester/internal/config"
	"github.com/opencamp/harvester/internal/db"
	"github.com/opencamp/harvester/internal/model"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = eris.New("store: campground not found")

// Filter narrows ListCampgrounds results. Zero values mean "no
// constraint" except Limit, which defaults to 100 when unset.
type Filter struct {
	State     string
	MinRating *float64
	Limit     int
	Offset    int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Store is the persistence surface the harvester and the read API share.
type Store interface {
	// UpsertCampgrounds writes the batch inside a single transaction.
	// Existing rows are fully replaced column by column, including
	// address; created_at is preserved and updated_at refreshed.
	UpsertCampgrounds(ctx context.Context, batch []model.Campground) (int, error)
	ListCampgrounds(ctx context.Context, f Filter) ([]model.StoredCampground, error)
	GetCampground(ctx context.Context, id string) (*model.StoredCampground, error)
	CountCampgrounds(ctx context.Context) (int64, error)
	Migrate(ctx context.Context) error
	Close()
}

// Open builds the store named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres", "":
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.MaxConns, cfg.MinConns)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool), nil
	case "sqlite":
		return OpenSQLiteStore(cfg.SQLitePath)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
