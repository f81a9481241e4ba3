package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"timber-cms-platform/internal/ai"
	"timber-cms-platform/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	calls    int
	lastReq  ai.GenerateRequest
	result   *ai.GenerateResult
	err      error
}

func (f *fakeProvider) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResult, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeRequestStore struct {
	requests []models.AIContentRequest
	images   []models.AIImagePrompt
	failList error
}

func (f *fakeRequestStore) Insert(ctx context.Context, req *models.AIContentRequest) error {
	f.requests = append(f.requests, *req)
	return nil
}

func (f *fakeRequestStore) Update(ctx context.Context, req *models.AIContentRequest) error {
	for i := range f.requests {
		if f.requests[i].ID == req.ID {
			f.requests[i] = *req
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRequestStore) ListByUser(ctx context.Context, userID, contentType string, since time.Time, page, limit int) ([]models.AIContentRequest, int, error) {
	if f.failList != nil {
		return nil, 0, f.failList
	}
	var out []models.AIContentRequest
	for _, r := range f.requests {
		if r.UserID != userID {
			continue
		}
		if contentType != "" && r.ContentType != contentType {
			continue
		}
		if !since.IsZero() && r.CreatedAt.Before(since) {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

func (f *fakeRequestStore) InsertImagePrompt(ctx context.Context, prompt *models.AIImagePrompt) error {
	f.images = append(f.images, *prompt)
	return nil
}

type generationFixture struct {
	svc      *GenerationService
	settings *fakeSettingsStore
	provider *fakeProvider
	store    *fakeRequestStore
}

func newGenerationFixture(t *testing.T) *generationFixture {
	t.Helper()
	settingsStore := &fakeSettingsStore{settings: models.DefaultAISettings(time.Now().UTC())}
	settingsService := NewSettingsService(settingsStore, "test-secret")
	usage := NewUsageService(settingsService, newFakeWindowCounter())
	templates := NewTemplateService(&fakeTemplateStore{})
	provider := &fakeProvider{result: &ai.GenerateResult{Content: "Generated article body", TokensUsed: 120}}
	store := &fakeRequestStore{}

	return &generationFixture{
		svc:      NewGenerationService(settingsService, usage, templates, provider, store),
		settings: settingsStore,
		provider: provider,
		store:    store,
	}
}

func TestGenerateContentSuccess(t *testing.T) {
	fx := newGenerationFixture(t)

	resp, err := fx.svc.GenerateContent(context.Background(), "user-1", ContentGenerationInput{
		Description: "benefits of teak for outdoor furniture",
		ContentType: models.CategoryBlog,
	})
	require.NoError(t, err)

	assert.Equal(t, "Generated article body", resp.Content)
	assert.Equal(t, 120, resp.Metadata.TokensUsed)
	assert.Equal(t, "gemini-pro", resp.Metadata.Model)
	assert.InDelta(t, models.TokenCost(120, "gemini-pro"), resp.Metadata.Cost, 1e-9)

	require.Len(t, fx.store.requests, 1)
	assert.Equal(t, models.StatusCompleted, fx.store.requests[0].Status)
	assert.Equal(t, "user-1", fx.store.requests[0].UserID)

	// Usage accounting recorded the attempt.
	assert.Equal(t, int64(1), fx.settings.settings.Usage.TotalRequests)
	assert.Equal(t, int64(120), fx.settings.settings.Usage.TotalTokens)
}

func TestGenerateContentValidatesInput(t *testing.T) {
	fx := newGenerationFixture(t)

	_, err := fx.svc.GenerateContent(context.Background(), "user-1", ContentGenerationInput{
		ContentType: "news",
	})

	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Len(t, ve.Violations, 2)
	assert.Zero(t, fx.provider.calls, "invalid input must not reach the provider")
}

func TestGenerateContentRejectedWhenDisabled(t *testing.T) {
	fx := newGenerationFixture(t)
	fx.settings.settings.IsEnabled = false

	_, err := fx.svc.GenerateContent(context.Background(), "user-1", ContentGenerationInput{
		Description: "anything",
		ContentType: models.CategoryBlog,
	})

	assert.True(t, errors.Is(err, ErrServiceUnavailable))
	assert.Zero(t, fx.provider.calls)
	assert.Empty(t, fx.store.requests, "no record for a gated request")
}

func TestGenerateContentRateLimited(t *testing.T) {
	fx := newGenerationFixture(t)
	fx.settings.settings.RateLimits.RequestsPerMinute = 1
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fx.svc.usage.now = func() time.Time { return fixed }

	_, err := fx.svc.GenerateContent(context.Background(), "user-1", ContentGenerationInput{
		Description: "first", ContentType: models.CategoryBlog,
	})
	require.NoError(t, err)

	_, err = fx.svc.GenerateContent(context.Background(), "user-1", ContentGenerationInput{
		Description: "second", ContentType: models.CategoryBlog,
	})

	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Equal(t, 1, fx.provider.calls)
}

func TestGenerateContentProviderOutage(t *testing.T) {
	fx := newGenerationFixture(t)
	fx.provider.err = ai.ErrUnavailable

	_, err := fx.svc.GenerateContent(context.Background(), "user-1", ContentGenerationInput{
		Description: "anything", ContentType: models.CategoryProduct,
	})

	assert.True(t, errors.Is(err, ErrServiceUnavailable))
	require.Len(t, fx.store.requests, 1)
	assert.Equal(t, models.StatusError, fx.store.requests[0].Status)
}

func TestGenerateContentWithTemplate(t *testing.T) {
	fx := newGenerationFixture(t)

	_, err := fx.svc.GenerateContent(context.Background(), "user-1", ContentGenerationInput{
		Description: "teak sourcing guide",
		ContentType: models.CategoryBlog,
		TemplateID:  "blog-timber-basics",
		Variables:   map[string]string{"topic": "teak sourcing", "location": "Bangalore"},
	})
	require.NoError(t, err)

	assert.Contains(t, fx.provider.lastReq.Prompt, "teak sourcing")
	assert.Contains(t, fx.provider.lastReq.Prompt, "Bangalore")
	assert.Equal(t, "blog-timber-basics", fx.store.requests[0].PromptTemplate)
}

func TestGenerateContentTemplateWithoutVariablesUsesDescription(t *testing.T) {
	fx := newGenerationFixture(t)

	_, err := fx.svc.GenerateContent(context.Background(), "user-1", ContentGenerationInput{
		Description: "seasoning timber before sale",
		ContentType: models.CategoryBlog,
		TemplateID:  "blog-timber-basics",
	})
	require.NoError(t, err)

	assert.Contains(t, fx.provider.lastReq.Prompt, "seasoning timber before sale",
		"description should fill the template's primary placeholder")
}

func TestGenerateContentUnknownTemplate(t *testing.T) {
	fx := newGenerationFixture(t)

	_, err := fx.svc.GenerateContent(context.Background(), "user-1", ContentGenerationInput{
		Description: "anything",
		ContentType: models.CategoryBlog,
		TemplateID:  "missing",
	})

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Zero(t, fx.provider.calls)
}

func TestGenerateImagePromptUsesVisionModel(t *testing.T) {
	fx := newGenerationFixture(t)
	fx.provider.result = &ai.GenerateResult{
		Content:    "PROMPT: a stack of seasoned teak planks\nNEGATIVE: blurry, text\nSUGGESTIONS:\n- warm lighting\n- shallow depth of field",
		TokensUsed: 40,
	}

	prompt, err := fx.svc.GenerateImagePrompt(context.Background(), "user-1", ImagePromptInput{
		Description: "teak planks in warehouse",
		ImageType:   "product",
	})
	require.NoError(t, err)

	assert.Equal(t, "gemini-pro-vision", fx.provider.lastReq.Model)
	assert.Equal(t, "a stack of seasoned teak planks", prompt.GeneratedPrompt)
	assert.Equal(t, "blurry, text", prompt.NegativePrompt)
	assert.Equal(t, []string{"warm lighting", "shallow depth of field"}, prompt.Suggestions)
	require.Len(t, fx.store.images, 1)
}

func TestGenerateImagePromptUnstructuredResponse(t *testing.T) {
	fx := newGenerationFixture(t)
	fx.provider.result = &ai.GenerateResult{Content: "just a plain prompt line", TokensUsed: 10}

	prompt, err := fx.svc.GenerateImagePrompt(context.Background(), "user-1", ImagePromptInput{
		Description: "timber yard at dawn",
		ImageType:   "hero",
	})
	require.NoError(t, err)

	assert.Equal(t, "just a plain prompt line", prompt.GeneratedPrompt)
}

func TestGetContentHistoryDegradesOnStoreError(t *testing.T) {
	fx := newGenerationFixture(t)
	fx.store.failList = errors.New("connection reset")

	history := fx.svc.GetContentHistory(context.Background(), "user-1", "", time.Time{}, 1, 20)

	require.NotNil(t, history)
	assert.Empty(t, history.Requests)
	assert.Equal(t, 1, history.Pagination.Page)
}

func TestGetContentHistoryPagination(t *testing.T) {
	fx := newGenerationFixture(t)
	for i := 0; i < 3; i++ {
		_, err := fx.svc.GenerateContent(context.Background(), "user-1", ContentGenerationInput{
			Description: "post", ContentType: models.CategoryBlog,
		})
		require.NoError(t, err)
	}

	history := fx.svc.GetContentHistory(context.Background(), "user-1", models.CategoryBlog, time.Time{}, 1, 20)

	assert.Len(t, history.Requests, 3)
	assert.Equal(t, 3, history.Pagination.Total)
	assert.Equal(t, 1, history.Pagination.Pages)
}

func TestGetContentHistoryStartDateFilter(t *testing.T) {
	fx := newGenerationFixture(t)
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	fx.store.requests = []models.AIContentRequest{
		{ID: "old", UserID: "user-1", ContentType: models.CategoryBlog, CreatedAt: cutoff.AddDate(0, 0, -7)},
		{ID: "new", UserID: "user-1", ContentType: models.CategoryBlog, CreatedAt: cutoff.AddDate(0, 0, 1)},
	}

	history := fx.svc.GetContentHistory(context.Background(), "user-1", "", cutoff, 1, 20)

	require.Len(t, history.Requests, 1)
	assert.Equal(t, "new", history.Requests[0].ID)
}
