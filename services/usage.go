package services

import (
	"context"
	"fmt"
	"time"

	"timber-cms-platform/internal/logger"

	"github.com/redis/go-redis/v9"
)

// WindowCounter is the fixed-window counter backend. The Redis
// implementation keys counters by time bucket with a TTL slightly longer
// than the window.
type WindowCounter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}

type WindowStatus struct {
	Used      int64 `json:"used"`
	Limit     int   `json:"limit"`
	Remaining int64 `json:"remaining"`
}

type RateLimitStatus struct {
	RequestsPerMinute WindowStatus `json:"requestsPerMinute"`
	RequestsPerHour   WindowStatus `json:"requestsPerHour"`
	RequestsPerDay    WindowStatus `json:"requestsPerDay"`
	ResetTimes        struct {
		Minute time.Time `json:"minute"`
		Hour   time.Time `json:"hour"`
		Day    time.Time `json:"day"`
	} `json:"resetTimes"`
}

type UsageStatistics struct {
	TotalRequests       int64     `json:"totalRequests"`
	TotalTokens         int64     `json:"totalTokens"`
	MonthlySpend        float64   `json:"monthlySpend"`
	LastUsed            time.Time `json:"lastUsed"`
	AverageCostPerToken float64   `json:"averageCostPerToken"`
}

// UsageService gates generation requests against the configured rate
// limits using real fixed-window counters, and accumulates token/cost
// usage on the settings record.
type UsageService struct {
	settings *SettingsService
	counter  WindowCounter
	now      func() time.Time
}

func NewUsageService(settings *SettingsService, counter WindowCounter) *UsageService {
	return &UsageService{
		settings: settings,
		counter:  counter,
		now:      time.Now,
	}
}

// Allow consumes one slot in the minute, hour and day windows, failing
// with ErrRateLimited when any configured ceiling would be exceeded. A
// counter backend outage fails open so a Redis blip cannot take content
// generation down with it.
func (u *UsageService) Allow(ctx context.Context) error {
	settings, err := u.settings.GetSettings(ctx)
	if err != nil {
		return err
	}

	now := u.now().UTC()
	windows := []struct {
		name   string
		key    string
		ttl    time.Duration
		limit  int
		window string
	}{
		{"minute", minuteKey(now), 2 * time.Minute, settings.RateLimits.RequestsPerMinute, "per minute"},
		{"hour", hourKey(now), 2 * time.Hour, settings.RateLimits.RequestsPerHour, "per hour"},
		{"day", dayKey(now), 48 * time.Hour, settings.RateLimits.RequestsPerDay, "per day"},
	}

	for _, w := range windows {
		count, err := u.counter.Incr(ctx, w.key, w.ttl)
		if err != nil {
			logger.Warn("rate limit counter unavailable, failing open", "window", w.name, "error", err)
			continue
		}
		if count > int64(w.limit) {
			return fmt.Errorf("%w: too many requests %s", ErrRateLimited, w.window)
		}
	}

	return nil
}

// Status reports used/limit/remaining for each window plus reset times:
// the next minute and hour buckets, and the start of the next calendar day.
func (u *UsageService) Status(ctx context.Context) (*RateLimitStatus, error) {
	settings, err := u.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	now := u.now().UTC()
	status := &RateLimitStatus{
		RequestsPerMinute: u.windowStatus(ctx, minuteKey(now), settings.RateLimits.RequestsPerMinute),
		RequestsPerHour:   u.windowStatus(ctx, hourKey(now), settings.RateLimits.RequestsPerHour),
		RequestsPerDay:    u.windowStatus(ctx, dayKey(now), settings.RateLimits.RequestsPerDay),
	}
	status.ResetTimes.Minute = now.Truncate(time.Minute).Add(time.Minute)
	status.ResetTimes.Hour = now.Truncate(time.Hour).Add(time.Hour)
	status.ResetTimes.Day = time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

	return status, nil
}

func (u *UsageService) windowStatus(ctx context.Context, key string, limit int) WindowStatus {
	used, err := u.counter.Get(ctx, key)
	if err != nil {
		used = 0
	}
	remaining := int64(limit) - used
	if remaining < 0 {
		remaining = 0
	}
	return WindowStatus{Used: used, Limit: limit, Remaining: remaining}
}

// RecordUsage accumulates a completed generation into the usage counters.
// Usage tracking is best-effort: a persistence failure is logged and never
// surfaced to the generation flow that triggered it.
func (u *UsageService) RecordUsage(ctx context.Context, tokensUsed int, cost float64) {
	if err := u.settings.store.IncrementUsage(ctx, tokensUsed, cost, u.now().UTC()); err != nil {
		logger.Error("failed to record usage", "tokens", tokensUsed, "cost", cost, "error", err)
		return
	}
	u.settings.Invalidate()
}

// Statistics returns the accumulated counters plus the derived average
// cost per token, zero when no tokens have been billed.
func (u *UsageService) Statistics(ctx context.Context) (*UsageStatistics, error) {
	settings, err := u.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	stats := &UsageStatistics{
		TotalRequests: settings.Usage.TotalRequests,
		TotalTokens:   settings.Usage.TotalTokens,
		MonthlySpend:  settings.Usage.MonthlySpend,
		LastUsed:      settings.Usage.LastUsed,
	}
	if settings.Usage.TotalTokens > 0 {
		stats.AverageCostPerToken = settings.Usage.MonthlySpend / float64(settings.Usage.TotalTokens)
	}

	return stats, nil
}

func minuteKey(t time.Time) string { return "ai:rl:minute:" + t.Format("200601021504") }
func hourKey(t time.Time) string   { return "ai:rl:hour:" + t.Format("2006010215") }
func dayKey(t time.Time) string    { return "ai:rl:day:" + t.Format("20060102") }

type redisWindowCounter struct {
	rdb *redis.Client
}

// NewRedisWindowCounter implements fixed-window counting with INCR and a
// TTL set on the first hit of each bucket.
func NewRedisWindowCounter(rdb *redis.Client) WindowCounter {
	return &redisWindowCounter{rdb: rdb}
}

func (r *redisWindowCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		r.rdb.Expire(ctx, key, ttl)
	}
	return count, nil
}

func (r *redisWindowCounter) Get(ctx context.Context, key string) (int64, error) {
	count, err := r.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}
