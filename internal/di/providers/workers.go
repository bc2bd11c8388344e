package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/JoeAtEgypt/library-management/internal/config"
	"github.com/JoeAtEgypt/library-management/internal/logger"
	"github.com/JoeAtEgypt/library-management/internal/service"
)

// ReminderJob runs the periodic due-date reminder sweep.
type ReminderJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *ReminderJob) Shutdown() error {
	j.cancel()
	return nil
}

// ProvideReminderJob provides the reminder job. The first sweep runs at startup.
func ProvideReminderJob(i do.Injector) (*ReminderJob, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	borrowing := do.MustInvoke[*service.BorrowingService](i)

	ctx, cancel := context.WithCancel(context.Background())

	if !cfg.Reminder.Enabled {
		log.Info("Reminder job disabled by configuration")
		return &ReminderJob{cancel: cancel}, nil
	}

	interval := cfg.Reminder.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	sweep := func() {
		count, err := borrowing.RunReminderSweep(ctx, time.Now(), cfg.Reminder.WindowDays)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("Reminder sweep failed", "error", err)
			}
			return
		}
		log.Info("Reminder sweep completed", "reminders", count, "window_days", cfg.Reminder.WindowDays)
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		sweep()

		for {
			select {
			case <-ticker.C:
				sweep()
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Reminder job started", "interval", interval)

	return &ReminderJob{cancel: cancel}, nil
}
