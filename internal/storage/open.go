package storage

import (
	"errors"
	"strings"

	logx "soulverse/pkg/logx"
)

// Open initializes the configured store. An empty driver selects memory.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// Drivers lists the accepted driver names.
func Drivers() []string { return []string{"memory", "sqlite", "redis"} }
