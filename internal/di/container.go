// Package di provides dependency injection configuration for the library server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/JoeAtEgypt/library-management/internal/auth"
	"github.com/JoeAtEgypt/library-management/internal/config"
	"github.com/JoeAtEgypt/library-management/internal/di/providers"
	"github.com/JoeAtEgypt/library-management/internal/logger"
	"github.com/JoeAtEgypt/library-management/internal/notify"
	"github.com/JoeAtEgypt/library-management/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Persistence and realtime
	do.Provide(injector, providers.ProvideHub)
	do.Provide(injector, providers.ProvideStore)

	// Search layer
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideCatalogService)

	// Notifications
	do.Provide(injector, providers.ProvideJournal)
	do.Provide(injector, providers.ProvideMailer)
	do.Provide(injector, providers.ProvideDispatcher)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Business services
	do.Provide(injector, providers.ProvideBorrowingService)

	// Workers
	do.Provide(injector, providers.ProvideReminderJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services. Shutdown order is handled by the
// container from the recorded dependency graph.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.HubHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*service.CatalogService](injector)
	_ = do.MustInvoke[*providers.JournalHandle](injector)
	_ = do.MustInvoke[notify.Mailer](injector)
	_ = do.MustInvoke[*providers.DispatcherHandle](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)
	_ = do.MustInvoke[*service.BorrowingService](injector)

	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	_ = do.MustInvoke[*providers.ReminderJob](injector)

	providers.TriggerSearchReindexIfNeeded(injector)

	return nil
}
