package api

import (
	"github.com/JoeAtEgypt/library-management/internal/auth"
	"github.com/JoeAtEgypt/library-management/internal/notify"
	"github.com/JoeAtEgypt/library-management/internal/service"
)

// Services groups the business logic used by the API server.
type Services struct {
	Borrowing *service.BorrowingService
	Catalog   *service.CatalogService
	Tokens    *auth.TokenService

	// Optional. Without them the admin notification log and its health check report degraded.
	Journal    *notify.Journal
	Dispatcher *notify.Dispatcher
}
