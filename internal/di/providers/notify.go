package providers

import (
	"context"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/JoeAtEgypt/library-management/internal/config"
	"github.com/JoeAtEgypt/library-management/internal/logger"
	"github.com/JoeAtEgypt/library-management/internal/notify"
)

// JournalHandle wraps the delivery journal with shutdown capability.
type JournalHandle struct {
	*notify.Journal
}

// Shutdown implements do.Shutdownable.
func (h *JournalHandle) Shutdown() error {
	return h.Close()
}

// ProvideJournal opens the Badger delivery journal under the data directory.
func ProvideJournal(i do.Injector) (*JournalHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dir := filepath.Join(cfg.Metadata.BasePath, "journal")
	journal, err := notify.OpenJournal(dir, cfg.Notify.JournalTTL, log.Component("journal"))
	if err != nil {
		return nil, err
	}

	log.Info("Delivery journal opened", "path", dir, "ttl", cfg.Notify.JournalTTL)

	return &JournalHandle{Journal: journal}, nil
}

// ProvideMailer provides the mail backend selected by cfg.Mail.Backend.
func ProvideMailer(i do.Injector) (notify.Mailer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Mail.Backend == "smtp" {
		mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
		if err != nil {
			return nil, err
		}
		log.Info("SMTP mailer configured", "host", cfg.Mail.Host, "port", cfg.Mail.Port)
		return mailer, nil
	}

	log.Info("Console mailer configured")
	return notify.NewConsoleMailer(os.Stdout, cfg.Mail.From), nil
}

// DispatcherHandle wraps the notification dispatcher with shutdown capability.
type DispatcherHandle struct {
	*notify.Dispatcher
}

// Shutdown implements do.Shutdownable. Queued messages get shutdownTimeout to drain.
func (h *DispatcherHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Dispatcher.Shutdown(ctx)
}

// ProvideDispatcher provides the started notification dispatcher.
func ProvideDispatcher(i do.Injector) (*DispatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	mailer := do.MustInvoke[notify.Mailer](i)
	journal := do.MustInvoke[*JournalHandle](i)

	d := notify.NewDispatcher(mailer, journal.Journal, notify.Options{
		Workers:   cfg.Notify.Workers,
		QueueSize: cfg.Notify.QueueSize,
	}, log.Component("notify"))
	d.Start()

	return &DispatcherHandle{Dispatcher: d}, nil
}
