// Package store opens the configured persistence backend.
//
// The "json" backend keeps the point history and the daily progress in two
// JSON documents. The "sqlite" backend keeps both in one database.
package store

import (
	"fmt"
	"time"

	"github.com/warp/points-engine/config"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/progress"
	"github.com/warp/points-engine/store/jsonfile"
	"github.com/warp/points-engine/store/sqlite"
)

// Backend is an opened pair of stores.
type Backend struct {
	History  points.Store
	Progress progress.Store

	closeFn func() error
}

// Close releases the backend.
func (b *Backend) Close() error {
	if b.closeFn == nil {
		return nil
	}
	return b.closeFn()
}

// Open opens the backend named by cfg.Store. Dates in JSON documents are
// read in loc; nil means time.Local.
func Open(cfg *config.Config, loc *time.Location) (*Backend, error) {
	switch cfg.Store {
	case config.StoreJSON, "":
		return &Backend{
			History:  jsonfile.New(cfg.HistoryFile, loc),
			Progress: progress.NewFileStore(cfg.ProgressFile, loc),
		}, nil

	case config.StoreSQLite:
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store %s: %w", cfg.SQLitePath, err)
		}
		return &Backend{History: db, Progress: db, closeFn: db.Close}, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}
