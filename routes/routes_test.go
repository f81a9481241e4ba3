package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"timber-cms-platform/internal/ai"
	"timber-cms-platform/internal/config"
	"timber-cms-platform/middleware"
	"timber-cms-platform/models"
	"timber-cms-platform/services"
	"timber-cms-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "routes-test-secret"

type memSettingsStore struct {
	settings *models.AISettings
}

func (m *memSettingsStore) Get(ctx context.Context) (*models.AISettings, error) {
	if m.settings == nil {
		return nil, services.ErrNotFound
	}
	copied := *m.settings
	return &copied, nil
}

func (m *memSettingsStore) Insert(ctx context.Context, settings *models.AISettings) error {
	copied := *settings
	m.settings = &copied
	return nil
}

func (m *memSettingsStore) UpdateConfig(ctx context.Context, settings *models.AISettings, expectedRevision int64) error {
	if m.settings == nil || m.settings.Revision != expectedRevision {
		return services.ErrRevisionConflict
	}
	copied := *settings
	copied.Usage = m.settings.Usage
	m.settings = &copied
	return nil
}

func (m *memSettingsStore) IncrementUsage(ctx context.Context, tokens int, cost float64, at time.Time) error {
	m.settings.Usage.TotalRequests++
	m.settings.Usage.TotalTokens += int64(tokens)
	m.settings.Usage.MonthlySpend += cost
	m.settings.Usage.LastUsed = at
	return nil
}

func (m *memSettingsStore) ResetUsage(ctx context.Context, at time.Time) error {
	m.settings.Usage = models.UsageStats{LastUsed: at}
	return nil
}

type memWindowCounter struct {
	counts map[string]int64
}

func (m *memWindowCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memWindowCounter) Get(ctx context.Context, key string) (int64, error) {
	return m.counts[key], nil
}

type memTemplateStore struct {
	templates []models.PromptTemplate
	failList  error
}

func (m *memTemplateStore) List(ctx context.Context) ([]models.PromptTemplate, error) {
	if m.failList != nil {
		return nil, m.failList
	}
	return append([]models.PromptTemplate(nil), m.templates...), nil
}

func (m *memTemplateStore) Insert(ctx context.Context, t *models.PromptTemplate) error {
	m.templates = append(m.templates, *t)
	return nil
}

func (m *memTemplateStore) IncrementUsage(ctx context.Context, id string) error {
	return nil
}

type memProvider struct {
	result *ai.GenerateResult
	err    error
}

func (m *memProvider) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type memRequestStore struct {
	requests []models.AIContentRequest
	failList error
}

func (m *memRequestStore) Insert(ctx context.Context, req *models.AIContentRequest) error {
	m.requests = append(m.requests, *req)
	return nil
}

func (m *memRequestStore) Update(ctx context.Context, req *models.AIContentRequest) error {
	for i := range m.requests {
		if m.requests[i].ID == req.ID {
			m.requests[i] = *req
			return nil
		}
	}
	return services.ErrNotFound
}

func (m *memRequestStore) ListByUser(ctx context.Context, userID, contentType string, since time.Time, page, limit int) ([]models.AIContentRequest, int, error) {
	if m.failList != nil {
		return nil, 0, m.failList
	}
	var out []models.AIContentRequest
	for _, r := range m.requests {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *memRequestStore) InsertImagePrompt(ctx context.Context, prompt *models.AIImagePrompt) error {
	return nil
}

type memLegalStore struct {
	pages    map[string]*models.LegalPage
	failList error
}

func (m *memLegalStore) List(ctx context.Context) ([]models.LegalPage, error) {
	if m.failList != nil {
		return nil, m.failList
	}
	var out []models.LegalPage
	for _, p := range m.pages {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memLegalStore) GetByType(ctx context.Context, pageType string) (*models.LegalPage, error) {
	for _, p := range m.pages {
		if p.Type == pageType {
			copied := *p
			return &copied, nil
		}
	}
	return nil, services.ErrNotFound
}

func (m *memLegalStore) GetByID(ctx context.Context, id string) (*models.LegalPage, error) {
	if p, ok := m.pages[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, services.ErrNotFound
}

func (m *memLegalStore) Insert(ctx context.Context, page *models.LegalPage) error {
	copied := *page
	m.pages[page.ID] = &copied
	return nil
}

func (m *memLegalStore) Replace(ctx context.Context, page *models.LegalPage, expectedRevision int64) error {
	current, ok := m.pages[page.ID]
	if !ok || current.Revision != expectedRevision {
		return services.ErrRevisionConflict
	}
	copied := *page
	m.pages[page.ID] = &copied
	return nil
}

type memGenerator struct{}

func (m *memGenerator) GenerateForPrompt(ctx context.Context, prompt string) (string, error) {
	return strings.Repeat("Drafted legal document text. ", 20), nil
}

type memNotifier struct{}

func (m *memNotifier) NotifyLegalChange(ctx context.Context, pageID, pageType, version, reason string) error {
	return nil
}

type routerFixture struct {
	router        *gin.Engine
	settingsStore *memSettingsStore
	templateStore *memTemplateStore
	requestStore  *memRequestStore
	legalStore    *memLegalStore
	provider      *memProvider
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{JWTSecret: testJWTSecret}
	auth := middleware.NewAuthMiddleware(cfg)

	settingsStore := &memSettingsStore{settings: models.DefaultAISettings(time.Now().UTC())}
	settingsService := services.NewSettingsService(settingsStore, "routes-test-seal")
	usageService := services.NewUsageService(settingsService, &memWindowCounter{counts: map[string]int64{}})
	templateStore := &memTemplateStore{}
	templateService := services.NewTemplateService(templateStore)
	provider := &memProvider{result: &ai.GenerateResult{Content: "generated body", TokensUsed: 50}}
	requestStore := &memRequestStore{}
	generationService := services.NewGenerationService(settingsService, usageService, templateService, provider, requestStore)

	legalStore := &memLegalStore{pages: map[string]*models.LegalPage{}}
	legalService := services.NewLegalService(legalStore, &memGenerator{}, &memNotifier{})
	exportService := services.NewLegalExportService(legalService)

	router := gin.New()
	SetupAIRoutes(router, auth, settingsService, usageService, templateService, generationService)
	SetupLegalRoutes(router, auth, legalService, exportService)

	return &routerFixture{
		router:        router,
		settingsStore: settingsStore,
		templateStore: templateStore,
		requestStore:  requestStore,
		legalStore:    legalStore,
		provider:      provider,
	}
}

func (f *routerFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func mintToken(t *testing.T, role string) string {
	t.Helper()
	token, err := utils.GenerateJWT("user-1", role, testJWTSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	fx := newRouterFixture(t)

	rec := fx.do(t, http.MethodGet, "/api/ai/settings", "", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "unauthorized", body["error_code"])
}

func TestExpiredTokenIsRejected(t *testing.T) {
	fx := newRouterFixture(t)
	token, err := utils.GenerateJWT("user-1", "admin", testJWTSecret, -time.Minute)
	require.NoError(t, err)

	rec := fx.do(t, http.MethodGet, "/api/ai/settings", token, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminEndpointsRejectEditors(t *testing.T) {
	fx := newRouterFixture(t)
	token := mintToken(t, "editor")

	for _, call := range []struct{ method, path, body string }{
		{http.MethodPut, "/api/ai/settings", `{"temperature":0.5}`},
		{http.MethodPost, "/api/ai/settings/reset-usage", ""},
		{http.MethodPost, "/api/ai/prompts", `{"name":"x"}`},
		{http.MethodPost, "/api/legal/generate", `{"type":"privacy"}`},
		{http.MethodGet, "/api/legal/export", ""},
	} {
		rec := fx.do(t, call.method, call.path, token, call.body)
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", call.method, call.path)
	}
}

func TestGetSettingsMasksAPIKey(t *testing.T) {
	fx := newRouterFixture(t)
	admin := mintToken(t, "admin")

	key := "AIzaSyExampleKeyWithEnoughLength123"
	rec := fx.do(t, http.MethodPut, "/api/ai/settings", admin, `{"apiKey":"`+key+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/ai/settings", mintToken(t, "editor"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "[CONFIGURED]", body["apiKey"])
	assert.NotContains(t, rec.Body.String(), key)
}

func TestUpdateSettingsReportsAllViolations(t *testing.T) {
	fx := newRouterFixture(t)
	admin := mintToken(t, "admin")

	rec := fx.do(t, http.MethodPut, "/api/ai/settings", admin, `{"temperature":5,"maxTokens":0}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "validation_error", body["error_code"])
	details := body["details"].(map[string]any)
	assert.Len(t, details["violations"], 2)
}

func TestGenerateContentReturnsRateLimitEnvelope(t *testing.T) {
	fx := newRouterFixture(t)
	fx.settingsStore.settings.RateLimits.RequestsPerMinute = 0
	token := mintToken(t, "editor")

	rec := fx.do(t, http.MethodPost, "/api/ai/generate/content", token,
		`{"description":"teak care guide","contentType":"blog"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "rate_limit_exceeded", body["error_code"])
}

func TestGenerateContentDisabledReturns503(t *testing.T) {
	fx := newRouterFixture(t)
	fx.settingsStore.settings.IsEnabled = false
	token := mintToken(t, "editor")

	rec := fx.do(t, http.MethodPost, "/api/ai/generate/content", token,
		`{"description":"teak care guide","contentType":"blog"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTemplateListDegradesToDefaults(t *testing.T) {
	fx := newRouterFixture(t)
	fx.templateStore.failList = errors.New("connection reset")
	token := mintToken(t, "editor")

	rec := fx.do(t, http.MethodGet, "/api/ai/prompts", token, "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["templates"], len(models.DefaultPromptTemplates()))
}

func TestHistoryAlwaysReturns200(t *testing.T) {
	fx := newRouterFixture(t)
	fx.requestStore.failList = errors.New("connection reset")
	token := mintToken(t, "editor")

	rec := fx.do(t, http.MethodGet, "/api/ai/content/history?page=2&limit=5", token, "")

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHistoryRejectsMalformedStartDate(t *testing.T) {
	fx := newRouterFixture(t)
	token := mintToken(t, "editor")

	rec := fx.do(t, http.MethodGet, "/api/ai/content/history?startDate=yesterday", token, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitsEndpoint(t *testing.T) {
	fx := newRouterFixture(t)
	token := mintToken(t, "editor")

	rec := fx.do(t, http.MethodGet, "/api/ai/rate-limits", token, "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body, "requestsPerMinute")
	assert.Contains(t, body, "resetTimes")
}

func TestLegalPageLifecycleOverHTTP(t *testing.T) {
	fx := newRouterFixture(t)
	admin := mintToken(t, "admin")

	rec := fx.do(t, http.MethodPost, "/api/legal/generate", admin, `{"type":"privacy","businessName":"Acme Timber"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	pageID := created["id"].(string)
	assert.Equal(t, "1.0.0", created["version"])

	// Duplicate type conflicts.
	rec = fx.do(t, http.MethodPost, "/api/legal/generate", admin, `{"type":"privacy"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Review workflow.
	rec = fx.do(t, http.MethodPost, "/api/legal/pages/"+pageID+"/review", admin, `{"notes":"cleared"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	reviewed := decodeBody(t, rec)
	assert.Equal(t, true, reviewed["legalReviewed"])

	// Published page is readable without a token.
	rec = fx.do(t, http.MethodGet, "/api/public/legal/privacy", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/public/legal/cookie", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewStatusDegradesTo200(t *testing.T) {
	fx := newRouterFixture(t)
	fx.legalStore.failList = errors.New("connection reset")
	token := mintToken(t, "editor")

	rec := fx.do(t, http.MethodGet, "/api/legal/review-status", token, "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["totalPages"])
}

func TestLegalPagesListDegradesTo200(t *testing.T) {
	fx := newRouterFixture(t)
	fx.legalStore.failList = errors.New("connection reset")
	token := mintToken(t, "editor")

	rec := fx.do(t, http.MethodGet, "/api/legal/pages", token, "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Empty(t, body["pages"])
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	fx := newRouterFixture(t)
	admin := mintToken(t, "admin")

	rec := fx.do(t, http.MethodGet, "/api/legal/export?format=csv", admin, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportJSONStreamsAttachment(t *testing.T) {
	fx := newRouterFixture(t)
	admin := mintToken(t, "admin")

	rec := fx.do(t, http.MethodPost, "/api/legal/generate", admin, `{"type":"terms","aiGenerate":false}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/legal/export?format=json", admin, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "legal_pages_export.json")
	var export map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &export))
	assert.NotNil(t, export["summary"])
}
