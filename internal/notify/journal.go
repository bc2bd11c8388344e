package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Delivery statuses recorded in the journal.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

const deliveryPrefix = "delivery:"

// Delivery is the journal record of one delivery attempt.
type Delivery struct {
	AttemptedAt time.Time `json:"attempted_at"`
	MessageID   string    `json:"message_id"`
	Subject     string    `json:"subject"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Recipients  []string  `json:"recipients"`
}

// Journal keeps a rolling record of delivery attempts for operators.
// Entries expire after the configured TTL. It is never read back for retries.
type Journal struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenJournal opens (or creates) a Badger journal in dir.
// An empty dir keeps the journal in memory.
func OpenJournal(dir string, ttl time.Duration, logger *slog.Logger) (*Journal, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db, ttl: ttl, logger: logger}, nil
}

// Close flushes and closes the journal.
func (j *Journal) Close() error {
	return j.db.Close()
}

// journalKey orders newest entries first under a forward iterator.
func journalKey(d Delivery) []byte {
	inverted := math.MaxInt64 - d.AttemptedAt.UnixNano()
	return fmt.Appendf(nil, "%s%019d:%s", deliveryPrefix, inverted, d.MessageID)
}

// Record stores a delivery attempt.
func (j *Journal) Record(_ context.Context, d Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}

	return j.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(journalKey(d), data)
		if j.ttl > 0 {
			entry = entry.WithTTL(j.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Recent returns up to limit deliveries, newest first, optionally only those with status.
func (j *Journal) Recent(ctx context.Context, status string, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	out := make([]Delivery, 0, min(limit, 64))
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(deliveryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid() && len(out) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var d Delivery
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &d)
			})
			if err != nil {
				j.logger.Warn("skipping unreadable journal entry", "key", string(it.Item().Key()), "error", err)
				continue
			}
			if status != "" && d.Status != status {
				continue
			}
			out = append(out, d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return out, nil
}
