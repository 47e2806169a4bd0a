package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "repowatch/pkg/logx"
)

// Store persists the announced-event set across restarts.
//
// Persistence is best-effort: the in-memory dedup guard stays authoritative,
// the store only warms it at startup so a quick restart doesn't re-announce
// events still inside the recency window.
type Store interface {
	PutAnnounced(ctx context.Context, id string, until time.Time) error
	LoadAnnounced(ctx context.Context) (map[string]time.Time, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
