package crowdsec

import (
	"context"
	"errors"
	"time"

	"github.com/Wikid82/gatewatch/internal/logger"
	"github.com/Wikid82/gatewatch/internal/metrics"
	"github.com/Wikid82/gatewatch/internal/models"
	"github.com/Wikid82/gatewatch/internal/util"
)

const (
	PositiveTTL = 30 * 24 * time.Hour
	NegativeTTL = 24 * time.Hour
)

// Status describes how a lookup was answered.
type Status string

const (
	StatusFound          Status = "found"
	StatusNotFound       Status = "not_found"
	StatusUnavailable    Status = "unavailable"
	StatusQuotaExhausted Status = "quota_exhausted"
	StatusSkipped        Status = "skipped"
)

// CacheStore persists lookups. GetReputation returns (nil, nil) when the IP
// was never cached.
type CacheStore interface {
	GetReputation(ctx context.Context, ip string) (*models.CrowdSecReputation, error)
	SaveReputation(ctx context.Context, rep *models.CrowdSecReputation) error
}

// LookupResult is what callers receive. Reputation is nil for every status
// other than StatusFound.
type LookupResult struct {
	IP         string      `json:"ip"`
	Status     Status      `json:"status"`
	Reputation *Reputation `json:"reputation,omitempty"`
	FromCache  bool        `json:"from_cache"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty"`
}

// Service wraps the client with the cache and the daily quota.
type Service struct {
	client *Client
	cache  CacheStore
	quota  *QuotaCounter
	now    func() time.Time
}

func NewService(client *Client, cache CacheStore, quota *QuotaCounter) *Service {
	return &Service{client: client, cache: cache, quota: quota, now: time.Now}
}

// SetClock overrides the time source for testing.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Configured reports whether an API key is set.
func (s *Service) Configured() bool {
	return s.client.Configured()
}

// Quota exposes the counter state.
func (s *Service) Quota() QuotaStatus {
	return s.quota.Status()
}

// GetReputation returns reputation data for ip. Failures never surface as
// errors; the result status says why no data is available.
func (s *Service) GetReputation(ctx context.Context, ip string) LookupResult {
	res := LookupResult{IP: ip}
	if !util.IsPublicIPString(ip) {
		res.Status = StatusSkipped
		return res
	}

	if cached, ok := s.fromCache(ctx, ip); ok {
		metrics.IncReputation("cache_hit")
		return cached
	}

	if !s.client.Configured() {
		res.Status = StatusUnavailable
		return res
	}
	if !s.quota.Allow(ctx) {
		metrics.IncReputation("quota")
		res.Status = StatusQuotaExhausted
		return res
	}

	rep, raw, err := s.client.Smoke(ctx, ip)
	now := s.now().UTC()
	switch {
	case err == nil:
		metrics.IncReputation("found")
		expires := now.Add(PositiveTTL)
		s.store(ctx, &models.CrowdSecReputation{IP: ip, Payload: string(raw), FetchedAt: now, ExpiresAt: expires})
		res.Status = StatusFound
		res.Reputation = rep
		res.ExpiresAt = &expires
	case errors.Is(err, ErrNotFound):
		metrics.IncReputation("not_found")
		expires := now.Add(NegativeTTL)
		s.store(ctx, &models.CrowdSecReputation{IP: ip, NotFound: true, FetchedAt: now, ExpiresAt: expires})
		res.Status = StatusNotFound
		res.ExpiresAt = &expires
	case errors.Is(err, ErrRateLimited):
		metrics.IncReputation("rate_limited")
		s.quota.Exhaust(ctx)
		logger.Log().WithField("ip", ip).Warn("crowdsec: rate limited, quota pinned for the rest of the day")
		res.Status = StatusQuotaExhausted
	case errors.Is(err, ErrUnauthorized):
		metrics.IncReputation("error")
		logger.Log().WithField("ip", ip).Warn("crowdsec: api key rejected, check CROWDSEC_API_KEY")
		res.Status = StatusUnavailable
	default:
		metrics.IncReputation("error")
		logger.Log().WithError(err).WithField("ip", ip).Warn("crowdsec: reputation lookup failed")
		res.Status = StatusUnavailable
	}
	return res
}

func (s *Service) fromCache(ctx context.Context, ip string) (LookupResult, bool) {
	if s.cache == nil {
		return LookupResult{}, false
	}
	entry, err := s.cache.GetReputation(ctx, ip)
	if err != nil {
		logger.Log().WithError(err).WithField("ip", ip).Warn("crowdsec: cache read failed")
		return LookupResult{}, false
	}
	if entry == nil || entry.Expired(s.now()) {
		return LookupResult{}, false
	}

	expires := entry.ExpiresAt
	res := LookupResult{IP: ip, FromCache: true, ExpiresAt: &expires}
	if entry.NotFound {
		res.Status = StatusNotFound
		return res, true
	}
	rep, err := ParseReputation([]byte(entry.Payload))
	if err != nil {
		logger.Log().WithError(err).WithField("ip", ip).Debug("crowdsec: cached payload unreadable, refetching")
		return LookupResult{}, false
	}
	res.Status = StatusFound
	res.Reputation = rep
	return res, true
}

func (s *Service) store(ctx context.Context, rep *models.CrowdSecReputation) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SaveReputation(ctx, rep); err != nil {
		logger.Log().WithError(err).WithField("ip", rep.IP).Warn("crowdsec: cache write failed")
	}
}
