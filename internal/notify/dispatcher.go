// Package notify delivers user notifications (email) in the background.
//
// Send is fire-and-forget: it enqueues and returns. Workers attempt each
// message once; failures are logged and journaled, never retried and never
// reported back to the caller.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	domainerrors "github.com/JoeAtEgypt/library-management/internal/errors"
	"github.com/JoeAtEgypt/library-management/internal/id"
)

// Recorder stores the outcome of delivery attempts.
type Recorder interface {
	Record(ctx context.Context, d Delivery) error
}

// Options sizes the dispatcher.
type Options struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// Stats is a snapshot of dispatcher counters since start.
type Stats struct {
	Queued  int64 `json:"queued"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
	Pending int   `json:"pending"`
}

// Dispatcher is the background notification queue.
type Dispatcher struct {
	mailer   Mailer
	recorder Recorder
	logger   *slog.Logger
	queue    chan Message
	opts     Options
	now      func() time.Time
	wg       sync.WaitGroup

	// closed guards queue against sends after Shutdown.
	closedMu sync.RWMutex
	closed   bool

	queued, sent, failed, dropped atomic.Int64
}

// NewDispatcher creates a dispatcher. recorder may be nil.
func NewDispatcher(mailer Mailer, recorder Recorder, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		mailer:   mailer,
		recorder: recorder,
		logger:   logger,
		queue:    make(chan Message, opts.QueueSize),
		opts:     opts,
		now:      time.Now,
	}
}

// Start launches the workers. They run until Shutdown closes the queue.
func (d *Dispatcher) Start() {
	d.logger.Info("notification dispatcher starting", "workers", d.opts.Workers, "queue_size", d.opts.QueueSize)
	for range d.opts.Workers {
		d.wg.Add(1)
		go d.work()
	}
}

// Send enqueues a notification and returns immediately. Messages without
// recipients, messages sent after Shutdown, and messages arriving while the
// queue is full are dropped with a log line.
func (d *Dispatcher) Send(_ context.Context, subject, body string, recipients []string) {
	rcpts := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			rcpts = append(rcpts, r)
		}
	}
	if len(rcpts) == 0 {
		d.dropped.Add(1)
		d.logger.Warn("notification dropped: no recipients", "subject", subject)
		return
	}

	msg := Message{
		ID:         id.MustGenerate(id.PrefixMessage),
		Subject:    subject,
		Body:       body,
		Recipients: rcpts,
		QueuedAt:   d.now().UTC(),
	}

	d.closedMu.RLock()
	defer d.closedMu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		d.logger.Warn("notification dropped: dispatcher stopped", "message_id", msg.ID, "subject", subject)
		return
	}

	select {
	case d.queue <- msg:
		d.queued.Add(1)
	default:
		d.dropped.Add(1)
		err := domainerrors.Delivery(nil, "notification queue full")
		d.logger.Error("notification dropped", "message_id", msg.ID, "subject", subject, "error", err)
	}
}

// Shutdown stops accepting messages and waits for queued ones to be
// attempted, or for ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.closedMu.Lock()
	if d.closed {
		d.closedMu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.closedMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("notification dispatcher drained")
		return nil
	case <-ctx.Done():
		d.logger.Warn("notification drain timed out", "pending", len(d.queue))
		return ctx.Err()
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:  d.queued.Load(),
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
		Pending: len(d.queue),
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

// deliver makes the single delivery attempt for msg. Panics in a mailer are
// contained so one bad message cannot stop a worker.
func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.SendTimeout)
	defer cancel()

	record := Delivery{
		AttemptedAt: d.now().UTC(),
		MessageID:   msg.ID,
		Subject:     msg.Subject,
		Recipients:  msg.Recipients,
		Status:      StatusSent,
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = domainerrors.Internal("mailer panic")
				d.logger.Error("mailer panicked", "message_id", msg.ID, "panic", r)
			}
		}()
		return d.mailer.Deliver(ctx, msg)
	}()

	if err != nil {
		derr := domainerrors.Delivery(err, "deliver notification")
		d.failed.Add(1)
		record.Status = StatusFailed
		record.Error = derr.Error()
		d.logger.Error("notification delivery failed",
			"message_id", msg.ID,
			"subject", msg.Subject,
			"recipients", len(msg.Recipients),
			"error", derr)
	} else {
		d.sent.Add(1)
		d.logger.Debug("notification delivered", "message_id", msg.ID, "subject", msg.Subject)
	}

	if d.recorder != nil {
		if err := d.recorder.Record(ctx, record); err != nil {
			d.logger.Warn("failed to journal delivery", "message_id", msg.ID, "error", err)
		}
	}
}
