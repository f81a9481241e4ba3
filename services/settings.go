package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"timber-cms-platform/models"
	"timber-cms-platform/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// settingsCacheTTL is the freshness window for the in-process settings
// cache. Staleness across instances within this window is accepted.
const settingsCacheTTL = 5 * time.Minute

// SettingsStore persists the singleton AISettings record.
type SettingsStore interface {
	Get(ctx context.Context) (*models.AISettings, error)
	Insert(ctx context.Context, settings *models.AISettings) error
	// UpdateConfig persists the configuration fields of the record, leaving
	// the usage counters untouched so concurrent increments survive. The
	// write applies only when the stored revision still matches
	// expectedRevision, failing with ErrRevisionConflict otherwise.
	UpdateConfig(ctx context.Context, settings *models.AISettings, expectedRevision int64) error
	IncrementUsage(ctx context.Context, tokens int, cost float64, at time.Time) error
	ResetUsage(ctx context.Context, at time.Time) error
}

// SettingsService owns the AISettings record and its in-process cache.
// The cache is a field of the service, injected where needed, rather than
// package-level state.
type SettingsService struct {
	store  SettingsStore
	secret string

	mu        sync.Mutex
	cached    *models.AISettings
	fetchedAt time.Time
	ttl       time.Duration
}

func NewSettingsService(store SettingsStore, secret string) *SettingsService {
	return &SettingsService{
		store:  store,
		secret: secret,
		ttl:    settingsCacheTTL,
	}
}

// GetSettings returns the settings record, serving from cache within the
// freshness window. The first-ever call default-initializes and persists
// the record. The API key field holds the sealed representation.
func (s *SettingsService) GetSettings(ctx context.Context) (*models.AISettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && time.Since(s.fetchedAt) < s.ttl {
		copied := *s.cached
		return &copied, nil
	}

	settings, err := s.store.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		settings = models.DefaultAISettings(time.Now().UTC())
		if insertErr := s.store.Insert(ctx, settings); insertErr != nil {
			// Another instance may have initialized concurrently.
			settings, err = s.store.Get(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize settings: %w", insertErr)
			}
		}
	} else if err != nil {
		return nil, err
	}

	s.cached = settings
	s.fetchedAt = time.Now()

	copied := *settings
	return &copied, nil
}

// UpdateSettings validates and applies a partial update. A new API key is
// sealed before persisting. The returned record has the key masked.
func (s *SettingsService) UpdateSettings(ctx context.Context, upd models.AISettingsUpdate) (*models.AISettings, error) {
	if violations := models.ValidateAISettingsUpdate(upd); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	current, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	updated := *current
	if upd.Model != nil {
		updated.Model = *upd.Model
	}
	if upd.MaxTokens != nil {
		updated.MaxTokens = *upd.MaxTokens
	}
	if upd.Temperature != nil {
		updated.Temperature = *upd.Temperature
	}
	if upd.IsEnabled != nil {
		updated.IsEnabled = *upd.IsEnabled
	}
	if upd.RateLimits != nil {
		if upd.RateLimits.RequestsPerMinute != nil {
			updated.RateLimits.RequestsPerMinute = *upd.RateLimits.RequestsPerMinute
		}
		if upd.RateLimits.RequestsPerHour != nil {
			updated.RateLimits.RequestsPerHour = *upd.RateLimits.RequestsPerHour
		}
		if upd.RateLimits.RequestsPerDay != nil {
			updated.RateLimits.RequestsPerDay = *upd.RateLimits.RequestsPerDay
		}
	}
	if upd.APIKey != nil && *upd.APIKey != "" {
		sealed, err := utils.SealAPIKey(*upd.APIKey, s.secret)
		if err != nil {
			return nil, fmt.Errorf("failed to seal api key: %w", err)
		}
		updated.APIKey = sealed
	}

	updated.Revision = current.Revision + 1
	updated.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateConfig(ctx, &updated, current.Revision); err != nil {
		return nil, err
	}

	// The usage counters in this snapshot may lag increments that landed
	// during the update, so drop the cache rather than caching the snapshot.
	s.Invalidate()

	return s.Masked(&updated), nil
}

// ResetUsage zeroes the usage counters and stamps lastUsed.
func (s *SettingsService) ResetUsage(ctx context.Context) error {
	if _, err := s.GetSettings(ctx); err != nil {
		return err
	}
	if err := s.store.ResetUsage(ctx, time.Now().UTC()); err != nil {
		return err
	}
	s.Invalidate()
	_, err := s.GetSettings(ctx)
	return err
}

// Invalidate drops the cached record so the next read hits the store.
func (s *SettingsService) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// Masked returns a copy safe to return to API clients: the API key is
// replaced with an opaque marker, never the sealed or plaintext value.
func (s *SettingsService) Masked(settings *models.AISettings) *models.AISettings {
	copied := *settings
	copied.APIKey = utils.MaskAPIKey(copied.APIKey)
	return &copied
}

// ValidateAPIKeyFormat reports whether a provider key is configured and
// passes a basic shape check. No live provider call is made here.
func (s *SettingsService) ValidateAPIKeyFormat(ctx context.Context) (bool, string, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return false, "", err
	}
	if settings.APIKey == "" {
		return false, "No API key configured", nil
	}
	plaintext, err := utils.OpenAPIKey(settings.APIKey, s.secret)
	if err != nil {
		return false, "Stored API key cannot be read", nil
	}
	if len(plaintext) <= 20 {
		return false, "API key format is invalid", nil
	}
	return true, "API key format appears valid", nil
}

const settingsDocID = "main"

type mongoSettingsStore struct {
	col *mongo.Collection
}

// NewMongoSettingsStore backs the settings service with the ai_settings
// collection, which holds a single document.
func NewMongoSettingsStore(db *mongo.Database) SettingsStore {
	return &mongoSettingsStore{col: db.Collection("ai_settings")}
}

func (m *mongoSettingsStore) Get(ctx context.Context) (*models.AISettings, error) {
	var settings models.AISettings
	err := m.col.FindOne(ctx, bson.M{"_id": settingsDocID}).Decode(&settings)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (m *mongoSettingsStore) Insert(ctx context.Context, settings *models.AISettings) error {
	settings.ID = settingsDocID
	_, err := m.col.InsertOne(ctx, settings)
	return err
}

func (m *mongoSettingsStore) UpdateConfig(ctx context.Context, settings *models.AISettings, expectedRevision int64) error {
	result, err := m.col.UpdateOne(ctx, bson.M{"_id": settingsDocID, "revision": expectedRevision}, bson.M{
		"$set": bson.M{
			"api_key":     settings.APIKey,
			"model":       settings.Model,
			"max_tokens":  settings.MaxTokens,
			"temperature": settings.Temperature,
			"is_enabled":  settings.IsEnabled,
			"rate_limits": settings.RateLimits,
			"revision":    settings.Revision,
			"updated_at":  settings.UpdatedAt,
		},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrRevisionConflict
	}
	return nil
}

func (m *mongoSettingsStore) IncrementUsage(ctx context.Context, tokens int, cost float64, at time.Time) error {
	_, err := m.col.UpdateOne(ctx, bson.M{"_id": settingsDocID}, bson.M{
		"$inc": bson.M{
			"usage.total_requests": 1,
			"usage.total_tokens":   tokens,
			"usage.monthly_spend":  cost,
		},
		"$set": bson.M{
			"usage.last_used": at,
			"updated_at":      at,
		},
	})
	return err
}

func (m *mongoSettingsStore) ResetUsage(ctx context.Context, at time.Time) error {
	_, err := m.col.UpdateOne(ctx, bson.M{"_id": settingsDocID}, bson.M{
		"$set": bson.M{
			"usage.total_requests": 0,
			"usage.total_tokens":   0,
			"usage.monthly_spend":  0,
			"usage.last_used":      at,
			"updated_at":           at,
		},
	})
	return err
}
