package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-finance/pkg/money"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
	"github.com/angelmondragon/packfinderz-finance/pkg/redis"
)

const (
	cacheScope      = "summary"
	defaultCacheTTL = 10 * time.Minute
)

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(scope string, parts ...string) string
}

// Summary is the dashboard's four rollups with display strings.
type Summary struct {
	TotalPendingCents     int64     `json:"total_pending_cents"`
	TotalPendingDisplay   string    `json:"total_pending_display"`
	TotalProcessedCents   int64     `json:"total_processed_cents"`
	TotalProcessedDisplay string    `json:"total_processed_display"`
	DisputeCount          int64     `json:"dispute_count"`
	ReturnCount           int64     `json:"return_count"`
	GeneratedAt           time.Time `json:"generated_at"`
	Stale                 bool      `json:"stale"`
}

// Service computes the financial summary.
type Service interface {
	Get(ctx context.Context) (*Summary, error)
}

// ServiceParams groups the summary service dependencies.
type ServiceParams struct {
	Repository Repository
	Cache      cacheStore
	CacheTTL   time.Duration
	Currency   string
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo     Repository
	cache    cacheStore
	ttl      time.Duration
	currency string
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the summary aggregator. The cache is optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("summary repository required")
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	currency := strings.TrimSpace(params.Currency)
	if currency == "" {
		currency = "usd"
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repository,
		cache:    params.Cache,
		ttl:      ttl,
		currency: currency,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Get always recomputes from the ledger. The cached copy is only served, marked
// stale, when the recompute fails.
func (s *service) Get(ctx context.Context) (*Summary, error) {
	totals, err := s.repo.Totals(ctx)
	if err != nil {
		if cached := s.readCache(ctx); cached != nil {
			cached.Stale = true
			s.warn(ctx, "summary recompute failed, serving cached copy", err)
			return cached, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute financial summary")
	}

	fresh := &Summary{
		TotalPendingCents:     totals.PendingRefundCents,
		TotalPendingDisplay:   money.Format(totals.PendingRefundCents, s.currency),
		TotalProcessedCents:   totals.CompletedPayoutCents,
		TotalProcessedDisplay: money.Format(totals.CompletedPayoutCents, s.currency),
		DisputeCount:          totals.DisputeCount,
		ReturnCount:           totals.ReturnCount,
		GeneratedAt:           s.now(),
	}

	if cached := s.readCache(ctx); cached != nil && !sameTotals(cached, fresh) && s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"cached_pending_cents":    cached.TotalPendingCents,
			"fresh_pending_cents":     fresh.TotalPendingCents,
			"cached_processed_cents":  cached.TotalProcessedCents,
			"fresh_processed_cents":   fresh.TotalProcessedCents,
			"cached_dispute_count":    cached.DisputeCount,
			"fresh_dispute_count":     fresh.DisputeCount,
			"cached_return_count":     cached.ReturnCount,
			"fresh_return_count":      fresh.ReturnCount,
			"cached_generated_at_utc": cached.GeneratedAt,
		}), "cached summary replaced by fresh computation")
	}
	s.writeCache(ctx, fresh)
	return fresh, nil
}

func (s *service) key() string {
	return s.cache.CacheKey(cacheScope, s.currency)
}

func (s *service) readCache(ctx context.Context) *Summary {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, s.key())
	if err != nil {
		if !redis.IsNil(err) {
			s.warn(ctx, "summary cache read failed", err)
		}
		return nil
	}
	var cached Summary
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		s.warn(ctx, "summary cache entry unreadable", err)
		return nil
	}
	return &cached
}

func (s *service) writeCache(ctx context.Context, summary *Summary) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		s.warn(ctx, "summary cache encode failed", err)
		return
	}
	if err := s.cache.Set(ctx, s.key(), string(payload), s.ttl); err != nil {
		s.warn(ctx, "summary cache write failed", err)
	}
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.WarnErr(ctx, msg, err)
}

func sameTotals(a, b *Summary) bool {
	return a.TotalPendingCents == b.TotalPendingCents &&
		a.TotalProcessedCents == b.TotalProcessedCents &&
		a.DisputeCount == b.DisputeCount &&
		a.ReturnCount == b.ReturnCount
}
