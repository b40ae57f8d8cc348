// internal/storage/factory.go
package storage

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/OCAP2/transport/internal/config"
	gormstorage "github.com/OCAP2/transport/internal/storage/gorm"
	"github.com/OCAP2/transport/internal/storage/memory"
	"gorm.io/gorm"
)

// ErrNoDatabase is returned when the gorm backend is selected without a connection.
var ErrNoDatabase = errors.New("gorm storage requires a database connection")

// NewBackend creates a storage backend based on configuration. db is only
// used by the gorm backend.
func NewBackend(cfg config.StorageConfig, db *gorm.DB, logger *slog.Logger) (Backend, error) {
	switch cfg.Type {
	case "gorm", "postgres", "sqlite":
		if db == nil {
			return nil, ErrNoDatabase
		}
		return gormstorage.New(gormstorage.Dependencies{DB: db, Logger: logger}), nil
	case "memory":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
