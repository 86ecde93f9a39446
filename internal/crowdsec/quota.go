package crowdsec

import (
	"context"
	"sync"
	"time"

	"github.com/Wikid82/gatewatch/internal/logger"
)

// QuotaStore persists the counter so restarts do not reset the daily usage.
type QuotaStore interface {
	LoadQuota(ctx context.Context) (day string, used int, err error)
	SaveQuota(ctx context.Context, day string, used int) error
}

// QuotaStatus is a point-in-time view of the counter.
type QuotaStatus struct {
	Day       string `json:"day"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Effective int    `json:"effective_limit"`
	Remaining int    `json:"remaining"`
}

// QuotaCounter tracks API calls per UTC calendar day. Calls stop once
// limit-margin is reached; overruns and 429 responses pin the counter to
// limit until the day rolls over.
type QuotaCounter struct {
	mu     sync.Mutex
	limit  int
	margin int
	day    string
	used   int
	store  QuotaStore
	now    func() time.Time
}

// NewQuotaCounter creates a counter and restores today's usage from store
// when one is given.
func NewQuotaCounter(ctx context.Context, limit, margin int, store QuotaStore) *QuotaCounter {
	q := &QuotaCounter{limit: limit, margin: margin, store: store, now: time.Now}
	q.day = q.today()
	if store != nil {
		day, used, err := store.LoadQuota(ctx)
		if err != nil {
			logger.Log().WithError(err).Warn("crowdsec: could not load quota counter, starting from zero")
		} else if day == q.day {
			q.used = used
		}
	}
	return q
}

// SetClock overrides the time source for testing.
func (q *QuotaCounter) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

func (q *QuotaCounter) today() string {
	return q.now().UTC().Format("2006-01-02")
}

func (q *QuotaCounter) effective() int {
	return q.limit - q.margin
}

// rollover must be called with mu held.
func (q *QuotaCounter) rollover() {
	if day := q.today(); day != q.day {
		q.day = day
		q.used = 0
	}
}

// Allow reserves one call. It returns false when the effective ceiling is
// already reached.
func (q *QuotaCounter) Allow(ctx context.Context) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	if q.used >= q.effective() {
		if q.used < q.limit {
			q.used = q.limit
			q.persist(ctx)
		}
		return false
	}
	q.used++
	q.persist(ctx)
	return true
}

// Exhaust pins the counter to the limit for the rest of the day.
func (q *QuotaCounter) Exhaust(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	q.used = q.limit
	q.persist(ctx)
}

// Status returns the current counter state.
func (q *QuotaCounter) Status() QuotaStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	remaining := q.effective() - q.used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaStatus{
		Day:       q.day,
		Used:      q.used,
		Limit:     q.limit,
		Effective: q.effective(),
		Remaining: remaining,
	}
}

func (q *QuotaCounter) persist(ctx context.Context) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveQuota(ctx, q.day, q.used); err != nil {
		logger.Log().WithError(err).Warn("crowdsec: could not persist quota counter")
	}
}
