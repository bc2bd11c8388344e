package api

import (
	"time"

	domainerrors "github.com/JoeAtEgypt/library-management/internal/errors"
	"github.com/JoeAtEgypt/library-management/internal/ratelimit"
)

// RateLimiter is the per-user limiter guarding borrow and return.
type RateLimiter = ratelimit.KeyedRateLimiter

// NewRateLimiter creates a limiter allowing ratePerInterval requests per
// interval with the given burst. For example 20 per minute is 0.333 rps.
func NewRateLimiter(ratePerInterval int, interval time.Duration, burst int) *RateLimiter {
	rps := float64(ratePerInterval) / interval.Seconds()
	return ratelimit.New(rps, burst)
}

// allowLedgerWrite charges one borrow or return against the user's budget.
func (s *Server) allowLedgerWrite(userID string) error {
	if s.ledgerLimiter == nil || s.ledgerLimiter.Allow(userID) {
		return nil
	}
	s.logger.Warn("Rate limit exceeded", "user_id", userID)
	return domainerrors.RateLimited("Too many requests. Please try again later.")
}
