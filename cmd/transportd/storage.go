package main

import (
	"errors"
	"fmt"

	"github.com/OCAP2/transport/internal/config"
	"github.com/OCAP2/transport/internal/database"
	"github.com/OCAP2/transport/internal/storage"
	"gorm.io/gorm"
)

// store bundles the template backend with the connection it runs on.
type store struct {
	storage.Backend
	db *database.Manager
}

func (s *store) Close() error {
	err := s.Backend.Close()
	if s.db != nil {
		err = errors.Join(err, s.db.Close())
	}
	return err
}

func openStorage() (*store, error) {
	storageCfg := config.GetStorageConfig()

	var (
		dbm *database.Manager
		db  *gorm.DB
	)
	if storageCfg.Type != "memory" {
		dbm = database.NewManager(ZLogger)
		if err := dbm.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := dbm.Setup(); err != nil {
			dbm.Close()
			return nil, err
		}
		db = dbm.DB
	}

	backend, err := storage.NewBackend(storageCfg, db, Logger)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		if dbm != nil {
			dbm.Close()
		}
		return nil, err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "error", err)
		if dbm != nil {
			dbm.Close()
		}
		return nil, err
	}
	Logger.Info("Storage backend initialized", "type", storageCfg.Type, "local", dbm != nil && dbm.ShouldSaveLocal)
	return &store{Backend: backend, db: dbm}, nil
}
