package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/JoeAtEgypt/library-management/internal/api"
	"github.com/JoeAtEgypt/library-management/internal/auth"
	"github.com/JoeAtEgypt/library-management/internal/config"
	"github.com/JoeAtEgypt/library-management/internal/logger"
	"github.com/JoeAtEgypt/library-management/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	api *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.api.Close()
	return err
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	hub := do.MustInvoke[*HubHandle](i)
	journal := do.MustInvoke[*JournalHandle](i)
	dispatcher := do.MustInvoke[*DispatcherHandle](i)

	services := &api.Services{
		Borrowing:  do.MustInvoke[*service.BorrowingService](i),
		Catalog:    do.MustInvoke[*service.CatalogService](i),
		Tokens:     do.MustInvoke[*auth.TokenService](i),
		Journal:    journal.Journal,
		Dispatcher: dispatcher.Dispatcher,
	}

	opts := api.DefaultOptions()
	if len(cfg.Server.AllowedOrigins) > 0 {
		opts.AllowedOrigins = cfg.Server.AllowedOrigins
	}

	handler := api.NewServer(storeHandle.Store, services, hub.Hub, opts, log.Component("api"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, api: handler}, nil
}
