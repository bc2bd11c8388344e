package providers

import (
	"github.com/samber/do/v2"

	"github.com/JoeAtEgypt/library-management/internal/config"
	"github.com/JoeAtEgypt/library-management/internal/logger"
	"github.com/JoeAtEgypt/library-management/internal/service"
)

// ProvideBorrowingService provides the borrowing engine. Notifications go to
// the dispatcher and availability events to the hub.
func ProvideBorrowingService(i do.Injector) (*service.BorrowingService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	dispatcher := do.MustInvoke[*DispatcherHandle](i)
	hub := do.MustInvoke[*HubHandle](i)

	svc := service.NewBorrowingService(storeHandle.Store, dispatcher.Dispatcher, hub.Hub, service.BorrowingConfig{
		MaxActiveLoans: cfg.Borrowing.MaxActiveLoans,
		MaxLoanDays:    cfg.Borrowing.MaxLoanDays,
		PenaltyPerDay:  cfg.Borrowing.PenaltyPerDay,
		Location:       cfg.Borrowing.Location,
	}, log.Component("borrowing"))

	log.Info("Borrowing service ready",
		"max_active_loans", svc.MaxActiveLoans(),
		"max_loan_days", cfg.Borrowing.MaxLoanDays,
		"penalty_per_day", cfg.Borrowing.PenaltyPerDay.StringFixed(2),
	)

	return svc, nil
}
