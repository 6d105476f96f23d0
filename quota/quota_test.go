package quota

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tryonix/tryonix-server/apperr"
	"github.com/tryonix/tryonix-server/models"
)

func TestAdvance(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 30, 0, 0, time.Local)
	yesterday := now.AddDate(0, 0, -1)
	earlierToday := time.Date(2026, 8, 28, 0, 5, 0, 0, time.Local)

	tests := []struct {
		name      string
		counter   Counter
		wantCount int
		wantReset bool
	}{
		{"no last date resets", Counter{Count: 2, LastDate: nil}, 0, true},
		{"yesterday resets", Counter{Count: 3, LastDate: &yesterday}, 0, true},
		{"same day keeps count", Counter{Count: 2, LastDate: &earlierToday}, 2, false},
		{"same instant keeps count", Counter{Count: 1, LastDate: &now}, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reset := Advance(tt.counter, now)
			assert.Equal(t, tt.wantCount, got.Count)
			assert.Equal(t, tt.wantReset, reset)
			if reset {
				require.NotNil(t, got.LastDate)
				assert.Equal(t, now, *got.LastDate)
			}
		})
	}
}

func TestAdvanceUsesCalendarFieldsNotDuration(t *testing.T) {
	// 23:50 yesterday to 00:10 today is 20 minutes of elapsed time but a
	// new calendar day.
	last := time.Date(2026, 8, 27, 23, 50, 0, 0, time.Local)
	now := time.Date(2026, 8, 28, 0, 10, 0, 0, time.Local)

	got, reset := Advance(Counter{Count: 3, LastDate: &last}, now)
	assert.True(t, reset)
	assert.Equal(t, 0, got.Count)
}

type fakeUserSource struct {
	user       *models.User
	findErr    error
	saveErr    error
	savedCount int
	savedLast  time.Time
	saves      int
}

func (f *fakeUserSource) FindByID(ctx context.Context, id string) (*models.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.user, nil
}

func (f *fakeUserSource) SaveUsage(ctx context.Context, id string, count int, last time.Time) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.savedCount = count
	f.savedLast = last
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestGateAdmitsUnderLimit(t *testing.T) {
	now := time.Now()
	src := &fakeUserSource{user: &models.User{TryOnCount: 2, LastTryOnDate: &now}}
	gate := NewGate(src, 3, testLogger())

	require.NoError(t, gate.Admit(context.Background(), "u1"))
	assert.Zero(t, src.saves, "no reset expected within the same day")
}

func TestGateDeniesAtLimit(t *testing.T) {
	now := time.Now()
	src := &fakeUserSource{user: &models.User{TryOnCount: 3, LastTryOnDate: &now}}
	gate := NewGate(src, 3, testLogger())

	err := gate.Admit(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindRateLimit))
	assert.Zero(t, src.saves, "denial must not touch the counter")
}

func TestGateResetsOnNewDay(t *testing.T) {
	yesterday := time.Now().AddDate(0, 0, -1)
	src := &fakeUserSource{user: &models.User{TryOnCount: 3, LastTryOnDate: &yesterday}}
	gate := NewGate(src, 3, testLogger())

	require.NoError(t, gate.Admit(context.Background(), "u1"))
	assert.Equal(t, 1, src.saves, "reset must be persisted immediately")
	assert.Equal(t, 0, src.savedCount)
	assert.WithinDuration(t, time.Now(), src.savedLast, time.Minute)
}

func TestGateFailsClosedOnLookupError(t *testing.T) {
	src := &fakeUserSource{findErr: errors.New("connection refused")}
	gate := NewGate(src, 3, testLogger())

	err := gate.Admit(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthentication))
}

func TestGateFailsClosedOnResetPersistError(t *testing.T) {
	src := &fakeUserSource{user: &models.User{TryOnCount: 1}, saveErr: errors.New("write failed")}
	gate := NewGate(src, 3, testLogger())

	err := gate.Admit(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
}
