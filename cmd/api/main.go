// Package main runs the library server: HTTP API, availability streams,
// notification dispatcher and the reminder sweep.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/JoeAtEgypt/library-management/internal/di"
	"github.com/JoeAtEgypt/library-management/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	injector := di.NewContainer()
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	<-ctx.Done()
	log.Info("Shutting down server gracefully...")

	// Services stop in reverse dependency order, so the HTTP server drains
	// before the dispatcher, journal and store close.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	log.Info("Server stopped")
}
