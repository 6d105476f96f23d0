// Package quota enforces the per-user daily generation limit. The day
// boundary is a calendar comparison (year/month/day), not an elapsed-time
// duration.
package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/tryonix/tryonix-server/apperr"
	"github.com/tryonix/tryonix-server/models"
)

// DefaultDailyLimit is the number of successful generations allowed per
// calendar day.
const DefaultDailyLimit = 3

const limitMessage = "Daily limit reached (3 try-ons per day). Please try again tomorrow."

// Counter is the usage state embedded in the user document.
type Counter struct {
	Count    int
	LastDate *time.Time
}

// Advance applies the daily-reset rule to a counter. It returns the counter
// as of now and whether a reset occurred. Pure so it is testable without a
// database.
func Advance(c Counter, now time.Time) (Counter, bool) {
	if c.LastDate != nil && sameCalendarDay(*c.LastDate, now) {
		return c, false
	}
	return Counter{Count: 0, LastDate: &now}, true
}

func sameCalendarDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// UserSource is the slice of the user store the gate needs.
type UserSource interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	SaveUsage(ctx context.Context, id string, count int, last time.Time) error
}

// Gate decides whether a user may start a new generation today.
//
// Admission does not increment the counter; the increment happens only after
// a successful generation, so a failed generation does not consume quota.
// Two concurrent requests from the same user may both be admitted before
// either increments — accepted slack, requests are not serialized.
type Gate struct {
	users  UserSource
	limit  int
	logger *slog.Logger
	now    func() time.Time
}

func NewGate(users UserSource, limit int, logger *slog.Logger) *Gate {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &Gate{users: users, limit: limit, logger: logger, now: time.Now}
}

// Admit returns nil when the user may generate, a rate-limit error when the
// daily quota is exhausted, and an authentication error when the user record
// cannot be loaded (fail closed, never open).
func (g *Gate) Admit(ctx context.Context, userID string) error {
	user, err := g.users.FindByID(ctx, userID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindAuthentication) {
			return err
		}
		return apperr.Authentication("User not found", err)
	}

	counter, reset := Advance(Counter{Count: user.TryOnCount, LastDate: user.LastTryOnDate}, g.now())
	if reset {
		// The reset is persisted immediately, independent of whether the
		// generation that triggered it succeeds.
		if err := g.users.SaveUsage(ctx, userID, counter.Count, *counter.LastDate); err != nil {
			g.logger.Error("failed to persist quota reset", "user_id", userID, "error", err)
			return apperr.Internal(err)
		}
	}

	if counter.Count >= g.limit {
		return apperr.RateLimit(limitMessage)
	}
	return nil
}
