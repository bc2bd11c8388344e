package providers

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/JoeAtEgypt/library-management/internal/config"
	"github.com/JoeAtEgypt/library-management/internal/logger"
	"github.com/JoeAtEgypt/library-management/internal/sse"
	"github.com/JoeAtEgypt/library-management/internal/store"
	"github.com/JoeAtEgypt/library-management/internal/store/postgres"
	"github.com/JoeAtEgypt/library-management/internal/store/sqlite"
)

// HubHandle wraps the availability hub with its context for lifecycle management.
type HubHandle struct {
	*sse.Hub
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *HubHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Hub.Shutdown(ctx)
}

// ProvideHub provides the availability broadcaster.
func ProvideHub(i do.Injector) (*HubHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	hub := sse.NewHub(log.Component("hub"))

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Start(ctx)

	log.Info("Availability hub started", "topic", sse.TopicBookAvailability)

	return &HubHandle{
		Hub:    hub,
		cancel: cancel,
	}, nil
}

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the database selected by cfg.Database.Driver.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	switch cfg.Database.Driver {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		db, err := postgres.Open(ctx, cfg.Database.PostgresURL, log.Component("store"))
		if err != nil {
			return nil, err
		}
		log.Info("Database initialized", "driver", "postgres")
		return &StoreHandle{Store: db}, nil

	case "sqlite", "":
		dbPath := filepath.Join(cfg.Metadata.BasePath, "library.db")
		db, err := sqlite.Open(dbPath, log.Component("store"))
		if err != nil {
			return nil, err
		}
		log.Info("Database initialized", "driver", "sqlite", "path", dbPath)
		return &StoreHandle{Store: db}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}
