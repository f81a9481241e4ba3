package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"timber-cms-platform/models"
	"timber-cms-platform/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettingsStore struct {
	settings *models.AISettings
	getCalls int
	failGet  error

	// beforeUpdate runs once at the start of the next UpdateConfig call,
	// simulating writes that land between the service's read and its write.
	beforeUpdate func()
}

func (f *fakeSettingsStore) Get(ctx context.Context) (*models.AISettings, error) {
	f.getCalls++
	if f.failGet != nil {
		return nil, f.failGet
	}
	if f.settings == nil {
		return nil, ErrNotFound
	}
	copied := *f.settings
	return &copied, nil
}

func (f *fakeSettingsStore) Insert(ctx context.Context, settings *models.AISettings) error {
	if f.settings != nil {
		return errors.New("duplicate key")
	}
	copied := *settings
	f.settings = &copied
	return nil
}

func (f *fakeSettingsStore) UpdateConfig(ctx context.Context, settings *models.AISettings, expectedRevision int64) error {
	if f.beforeUpdate != nil {
		hook := f.beforeUpdate
		f.beforeUpdate = nil
		hook()
	}
	if f.settings == nil || f.settings.Revision != expectedRevision {
		return ErrRevisionConflict
	}
	copied := *settings
	copied.Usage = f.settings.Usage
	f.settings = &copied
	return nil
}

func (f *fakeSettingsStore) IncrementUsage(ctx context.Context, tokens int, cost float64, at time.Time) error {
	f.settings.Usage.TotalRequests++
	f.settings.Usage.TotalTokens += int64(tokens)
	f.settings.Usage.MonthlySpend += cost
	f.settings.Usage.LastUsed = at
	return nil
}

func (f *fakeSettingsStore) ResetUsage(ctx context.Context, at time.Time) error {
	f.settings.Usage = models.UsageStats{LastUsed: at}
	return nil
}

func TestGetSettingsInitializesDefaults(t *testing.T) {
	store := &fakeSettingsStore{}
	svc := NewSettingsService(store, "test-secret")

	settings, err := svc.GetSettings(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "gemini-pro", settings.Model)
	assert.True(t, settings.IsEnabled)
	require.NotNil(t, store.settings, "defaults should be persisted")
}

func TestGetSettingsServesFromCache(t *testing.T) {
	store := &fakeSettingsStore{settings: models.DefaultAISettings(time.Now().UTC())}
	svc := NewSettingsService(store, "test-secret")

	_, err := svc.GetSettings(context.Background())
	require.NoError(t, err)
	firstCalls := store.getCalls

	_, err = svc.GetSettings(context.Background())
	require.NoError(t, err)

	assert.Equal(t, firstCalls, store.getCalls, "second read should hit the cache")
}

func TestUpdateSettingsRejectsAllViolationsAtOnce(t *testing.T) {
	store := &fakeSettingsStore{settings: models.DefaultAISettings(time.Now().UTC())}
	svc := NewSettingsService(store, "test-secret")

	temp := 2.0
	tokens := 0
	_, err := svc.UpdateSettings(context.Background(), models.AISettingsUpdate{
		Temperature: &temp,
		MaxTokens:   &tokens,
	})

	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Len(t, ve.Violations, 2)
	assert.Equal(t, 2000, store.settings.MaxTokens, "invalid update must not persist")
}

func TestUpdateSettingsSealsAPIKeyAndMasksResponse(t *testing.T) {
	store := &fakeSettingsStore{settings: models.DefaultAISettings(time.Now().UTC())}
	svc := NewSettingsService(store, "test-secret")

	key := "AIzaSyExampleKeyWithEnoughLength123"
	updated, err := svc.UpdateSettings(context.Background(), models.AISettingsUpdate{APIKey: &key})
	require.NoError(t, err)

	assert.Equal(t, "[CONFIGURED]", updated.APIKey)
	assert.True(t, utils.IsSealedAPIKey(store.settings.APIKey), "stored key must be sealed")

	plaintext, err := utils.OpenAPIKey(store.settings.APIKey, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, key, plaintext)
}

func TestUpdateSettingsBumpsRevision(t *testing.T) {
	store := &fakeSettingsStore{settings: models.DefaultAISettings(time.Now().UTC())}
	svc := NewSettingsService(store, "test-secret")

	enabled := false
	_, err := svc.UpdateSettings(context.Background(), models.AISettingsUpdate{IsEnabled: &enabled})
	require.NoError(t, err)

	assert.Equal(t, int64(2), store.settings.Revision)
	assert.False(t, store.settings.IsEnabled)
}

func TestUpdateSettingsKeepsConcurrentUsageIncrements(t *testing.T) {
	store := &fakeSettingsStore{settings: models.DefaultAISettings(time.Now().UTC())}
	svc := NewSettingsService(store, "test-secret")

	// A generation finishes between the update's read and its write.
	store.beforeUpdate = func() {
		require.NoError(t, store.IncrementUsage(context.Background(), 120, 0.03, time.Now().UTC()))
	}

	enabled := false
	_, err := svc.UpdateSettings(context.Background(), models.AISettingsUpdate{IsEnabled: &enabled})
	require.NoError(t, err)

	assert.Equal(t, int64(1), store.settings.Usage.TotalRequests)
	assert.Equal(t, int64(120), store.settings.Usage.TotalTokens)
	assert.False(t, store.settings.IsEnabled)
	assert.Equal(t, int64(2), store.settings.Revision)
}

func TestUpdateSettingsPartialRateLimits(t *testing.T) {
	store := &fakeSettingsStore{settings: models.DefaultAISettings(time.Now().UTC())}
	svc := NewSettingsService(store, "test-secret")

	perHour := 250
	updated, err := svc.UpdateSettings(context.Background(), models.AISettingsUpdate{
		RateLimits: &models.RateLimitsUpdate{RequestsPerHour: &perHour},
	})
	require.NoError(t, err)

	assert.Equal(t, 250, updated.RateLimits.RequestsPerHour)
	assert.Equal(t, 10, updated.RateLimits.RequestsPerMinute, "untouched limits stay")
	assert.Equal(t, 500, updated.RateLimits.RequestsPerDay)
}

func TestResetUsageZeroesCounters(t *testing.T) {
	settings := models.DefaultAISettings(time.Now().UTC())
	settings.Usage.TotalRequests = 42
	settings.Usage.TotalTokens = 9000
	settings.Usage.MonthlySpend = 2.25
	store := &fakeSettingsStore{settings: settings}
	svc := NewSettingsService(store, "test-secret")

	require.NoError(t, svc.ResetUsage(context.Background()))

	fresh, err := svc.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Zero(t, fresh.Usage.TotalRequests)
	assert.Zero(t, fresh.Usage.TotalTokens)
	assert.Zero(t, fresh.Usage.MonthlySpend)
}

func TestValidateAPIKeyFormat(t *testing.T) {
	store := &fakeSettingsStore{settings: models.DefaultAISettings(time.Now().UTC())}
	svc := NewSettingsService(store, "test-secret")

	valid, message, err := svc.ValidateAPIKeyFormat(context.Background())
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, "No API key configured", message)

	key := "AIzaSyExampleKeyWithEnoughLength123"
	_, err = svc.UpdateSettings(context.Background(), models.AISettingsUpdate{APIKey: &key})
	require.NoError(t, err)

	valid, _, err = svc.ValidateAPIKeyFormat(context.Background())
	require.NoError(t, err)
	assert.True(t, valid)
}
