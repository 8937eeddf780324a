package storage

import (
	"fmt"
	"strings"

	logx "cdbot/pkg/logx"
)

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
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, fmt.Errorf("storage: sqlite path is required")
		}
		return openSQLite(cfg.Path, cfg, log)
	case "memory":
		return openSQLite(":memory:", cfg, log)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
