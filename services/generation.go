package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"timber-cms-platform/internal/ai"
	"timber-cms-platform/internal/logger"
	"timber-cms-platform/internal/telemetry"
	"timber-cms-platform/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ContentProvider is the upstream generation backend.
type ContentProvider interface {
	Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResult, error)
}

// RequestStore persists generation attempts and image prompts.
type RequestStore interface {
	Insert(ctx context.Context, req *models.AIContentRequest) error
	Update(ctx context.Context, req *models.AIContentRequest) error
	ListByUser(ctx context.Context, userID, contentType string, since time.Time, page, limit int) ([]models.AIContentRequest, int, error)
	InsertImagePrompt(ctx context.Context, prompt *models.AIImagePrompt) error
}

// ContentGenerationInput is the request to generate a piece of content.
// Either a free-form description or a template reference drives the prompt.
type ContentGenerationInput struct {
	Description string            `json:"description"`
	ContentType string            `json:"contentType"`
	TemplateID  string            `json:"promptTemplate,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Context     GenerationContext `json:"context,omitempty"`
}

type GenerationContext struct {
	Tone          string `json:"tone,omitempty"`
	Length        string `json:"length,omitempty"`
	BusinessFocus string `json:"businessFocus,omitempty"`
}

// ImagePromptInput asks for a structured prompt for an external image
// generation service.
type ImagePromptInput struct {
	Description string `json:"description"`
	ImageType   string `json:"imageType"`
	Style       string `json:"style,omitempty"`
	Dimensions  string `json:"dimensions,omitempty"`
}

// GenerationService orchestrates content generation: it gates requests on
// the settings record and rate limits, builds the prompt, calls the
// provider, and records the attempt and its usage.
type GenerationService struct {
	settings  *SettingsService
	usage     *UsageService
	templates *TemplateService
	provider  ContentProvider
	store     RequestStore
	now       func() time.Time
}

func NewGenerationService(settings *SettingsService, usage *UsageService, templates *TemplateService, provider ContentProvider, store RequestStore) *GenerationService {
	return &GenerationService{
		settings:  settings,
		usage:     usage,
		templates: templates,
		provider:  provider,
		store:     store,
		now:       time.Now,
	}
}

// GenerateContent runs the full generation pipeline for one request. The
// gates run in a fixed order: input validation, feature enablement, rate
// limits, then the provider call. A request rejected by a gate never
// reaches the provider.
func (g *GenerationService) GenerateContent(ctx context.Context, userID string, input ContentGenerationInput) (*models.AIContentResponse, error) {
	if violations := validateGenerationInput(input); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	settings, err := g.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.IsEnabled {
		return nil, fmt.Errorf("%w: content generation is disabled", ErrServiceUnavailable)
	}

	if err := g.usage.Allow(ctx); err != nil {
		return nil, err
	}

	prompt, templateID, err := g.buildPrompt(ctx, input)
	if err != nil {
		return nil, err
	}

	now := g.now().UTC()
	record := &models.AIContentRequest{
		ID:             uuid.New().String(),
		Description:    input.Description,
		ContentType:    input.ContentType,
		PromptTemplate: templateID,
		Status:         models.StatusGenerating,
		CreatedAt:      now,
		UpdatedAt:      now,
		UserID:         userID,
	}
	if err := g.store.Insert(ctx, record); err != nil {
		return nil, err
	}

	started := g.now()
	result, err := g.provider.Generate(ctx, ai.GenerateRequest{
		Model:       settings.Model,
		Prompt:      prompt,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	})
	if err != nil {
		record.Status = models.StatusError
		record.UpdatedAt = g.now().UTC()
		if updateErr := g.store.Update(ctx, record); updateErr != nil {
			logger.Error("failed to mark generation request as errored", "request", record.ID, "error", updateErr)
		}
		telemetry.RecordGeneration(g.now().Sub(started).Seconds(), input.ContentType, models.StatusError)
		if errors.Is(err, ai.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return nil, err
	}

	elapsed := g.now().Sub(started).Milliseconds()
	cost := models.TokenCost(result.TokensUsed, settings.Model)

	record.GeneratedContent = result.Content
	record.Status = models.StatusCompleted
	record.Metadata = models.GenerationMetadata{
		Model:          settings.Model,
		TokensUsed:     result.TokensUsed,
		GenerationTime: elapsed,
		Cost:           cost,
	}
	record.UpdatedAt = g.now().UTC()
	if err := g.store.Update(ctx, record); err != nil {
		logger.Error("failed to persist completed generation", "request", record.ID, "error", err)
	}

	telemetry.RecordTokensUsed(int64(result.TokensUsed), settings.Model)
	telemetry.RecordGeneration(float64(elapsed)/1000.0, input.ContentType, models.StatusCompleted)

	g.usage.RecordUsage(ctx, result.TokensUsed, cost)
	if templateID != "" {
		g.templates.RecordTemplateUse(ctx, templateID)
	}

	return &models.AIContentResponse{
		ID:       record.ID,
		Content:  result.Content,
		Metadata: record.Metadata,
	}, nil
}

// GenerateForPrompt runs the generation gates and provider call for an
// internal caller that manages its own persistence, such as the legal page
// lifecycle. Usage is still recorded.
func (g *GenerationService) GenerateForPrompt(ctx context.Context, prompt string) (string, error) {
	settings, err := g.settings.GetSettings(ctx)
	if err != nil {
		return "", err
	}
	if !settings.IsEnabled {
		return "", fmt.Errorf("%w: content generation is disabled", ErrServiceUnavailable)
	}

	if err := g.usage.Allow(ctx); err != nil {
		return "", err
	}

	result, err := g.provider.Generate(ctx, ai.GenerateRequest{
		Model:       settings.Model,
		Prompt:      prompt,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	})
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return "", err
	}

	g.usage.RecordUsage(ctx, result.TokensUsed, models.TokenCost(result.TokensUsed, settings.Model))
	return result.Content, nil
}

// GenerateImagePrompt produces a structured prompt for an external image
// service. The vision model is always used regardless of the configured
// text model.
func (g *GenerationService) GenerateImagePrompt(ctx context.Context, userID string, input ImagePromptInput) (*models.AIImagePrompt, error) {
	var violations []string
	if strings.TrimSpace(input.Description) == "" {
		violations = append(violations, "description is required")
	}
	if strings.TrimSpace(input.ImageType) == "" {
		violations = append(violations, "imageType is required")
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	settings, err := g.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.IsEnabled {
		return nil, fmt.Errorf("%w: content generation is disabled", ErrServiceUnavailable)
	}

	if err := g.usage.Allow(ctx); err != nil {
		return nil, err
	}

	result, err := g.provider.Generate(ctx, ai.GenerateRequest{
		Model:       "gemini-pro-vision",
		Prompt:      buildImageMetaPrompt(input),
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	})
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return nil, err
	}

	prompt := &models.AIImagePrompt{
		ID:          uuid.New().String(),
		Description: input.Description,
		ImageType:   input.ImageType,
		Style:       input.Style,
		Dimensions:  input.Dimensions,
		CreatedAt:   g.now().UTC(),
		UserID:      userID,
	}
	parseImagePromptResponse(result.Content, prompt)

	if err := g.store.InsertImagePrompt(ctx, prompt); err != nil {
		logger.Error("failed to persist image prompt", "prompt", prompt.ID, "error", err)
	}

	g.usage.RecordUsage(ctx, result.TokensUsed, models.TokenCost(result.TokensUsed, "gemini-pro-vision"))
	return prompt, nil
}

// GetContentHistory lists a user's past generation requests, newest first,
// optionally bounded to requests created at or after since. A store failure
// degrades to an empty history rather than an error so the dashboard always
// renders.
func (g *GenerationService) GetContentHistory(ctx context.Context, userID, contentType string, since time.Time, page, limit int) *models.ContentHistory {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	requests, total, err := g.store.ListByUser(ctx, userID, contentType, since, page, limit)
	if err != nil {
		logger.Warn("failed to load content history", "user", userID, "error", err)
		return &models.ContentHistory{
			Requests:   []models.AIContentRequest{},
			Pagination: models.Pagination{Page: 1, Limit: limit},
		}
	}

	pages := (total + limit - 1) / limit
	if pages < 1 {
		pages = 1
	}
	return &models.ContentHistory{
		Requests: requests,
		Pagination: models.Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: pages,
		},
	}
}

func validateGenerationInput(input ContentGenerationInput) []string {
	var errs []string
	if strings.TrimSpace(input.Description) == "" {
		errs = append(errs, "description is required")
	}
	if !models.IsContentCategory(input.ContentType) {
		errs = append(errs, "contentType must be one of: blog, product, legal, marketing")
	}
	return errs
}

func (g *GenerationService) buildPrompt(ctx context.Context, input ContentGenerationInput) (prompt, templateID string, err error) {
	if input.TemplateID != "" {
		tpl, err := g.templates.FindTemplate(ctx, input.TemplateID)
		if err != nil {
			return "", "", err
		}
		return models.RenderPrompt(tpl.Prompt, templateBindings(tpl, input)), tpl.ID, nil
	}
	return defaultPrompt(input), "", nil
}

// templateBindings merges the caller's variables with the request
// description as the default for the template's primary placeholder, so a
// template-driven request still carries its subject when no variables are
// supplied.
func templateBindings(tpl *models.PromptTemplate, input ContentGenerationInput) map[string]string {
	vars := make(map[string]string, len(input.Variables)+1)
	for name, value := range input.Variables {
		vars[name] = value
	}
	if len(tpl.Variables) > 0 {
		if _, bound := vars[tpl.Variables[0]]; !bound {
			vars[tpl.Variables[0]] = input.Description
		}
	}
	return vars
}

func defaultPrompt(input ContentGenerationInput) string {
	var b strings.Builder

	switch input.ContentType {
	case models.CategoryBlog:
		b.WriteString("Write an engaging blog post for a timber and wood products business about: ")
	case models.CategoryProduct:
		b.WriteString("Write a compelling product description for a timber and wood products business for: ")
	case models.CategoryLegal:
		b.WriteString("Draft formal legal content for a timber and wood products business covering: ")
	case models.CategoryMarketing:
		b.WriteString("Write persuasive marketing copy for a timber and wood products business promoting: ")
	}
	b.WriteString(input.Description)

	if input.Context.Tone != "" {
		b.WriteString("\nTone: " + input.Context.Tone)
	}
	if input.Context.Length != "" {
		b.WriteString("\nLength: " + input.Context.Length)
	}
	if input.Context.BusinessFocus != "" {
		b.WriteString("\nBusiness focus: " + input.Context.BusinessFocus)
	}

	return b.String()
}

func buildImageMetaPrompt(input ImagePromptInput) string {
	var b strings.Builder
	b.WriteString("Create a detailed image generation prompt for: ")
	b.WriteString(input.Description)
	b.WriteString("\nImage type: " + input.ImageType)
	if input.Style != "" {
		b.WriteString("\nStyle: " + input.Style)
	}
	if input.Dimensions != "" {
		b.WriteString("\nDimensions: " + input.Dimensions)
	}
	b.WriteString("\n\nRespond with exactly these sections:\nPROMPT: <the image prompt>\nNEGATIVE: <things to avoid>\nSUGGESTIONS: <one suggestion per line>")
	return b.String()
}

// parseImagePromptResponse splits the provider response into the prompt,
// negative prompt and suggestions. Unstructured responses become the
// prompt verbatim.
func parseImagePromptResponse(content string, out *models.AIImagePrompt) {
	section := ""
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "PROMPT:"):
			section = "prompt"
			out.GeneratedPrompt = strings.TrimSpace(strings.TrimPrefix(trimmed, "PROMPT:"))
		case strings.HasPrefix(trimmed, "NEGATIVE:"):
			section = "negative"
			out.NegativePrompt = strings.TrimSpace(strings.TrimPrefix(trimmed, "NEGATIVE:"))
		case strings.HasPrefix(trimmed, "SUGGESTIONS:"):
			section = "suggestions"
			if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "SUGGESTIONS:")); rest != "" {
				out.Suggestions = append(out.Suggestions, rest)
			}
		case trimmed == "":
		default:
			switch section {
			case "prompt":
				out.GeneratedPrompt += " " + trimmed
			case "negative":
				out.NegativePrompt += " " + trimmed
			case "suggestions":
				out.Suggestions = append(out.Suggestions, strings.TrimPrefix(trimmed, "- "))
			}
		}
	}

	if out.GeneratedPrompt == "" {
		out.GeneratedPrompt = strings.TrimSpace(content)
	}
}

type mongoRequestStore struct {
	requests *mongo.Collection
	images   *mongo.Collection
}

func NewMongoRequestStore(db *mongo.Database) RequestStore {
	return &mongoRequestStore{
		requests: db.Collection("ai_content_requests"),
		images:   db.Collection("ai_image_prompts"),
	}
}

func (m *mongoRequestStore) Insert(ctx context.Context, req *models.AIContentRequest) error {
	_, err := m.requests.InsertOne(ctx, req)
	return err
}

func (m *mongoRequestStore) Update(ctx context.Context, req *models.AIContentRequest) error {
	_, err := m.requests.ReplaceOne(ctx, bson.M{"_id": req.ID}, req)
	return err
}

func (m *mongoRequestStore) ListByUser(ctx context.Context, userID, contentType string, since time.Time, page, limit int) ([]models.AIContentRequest, int, error) {
	filter := bson.M{"user_id": userID}
	if contentType != "" {
		filter["content_type"] = contentType
	}
	if !since.IsZero() {
		filter["created_at"] = bson.M{"$gte": since}
	}

	total, err := m.requests.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := m.requests.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var requests []models.AIContentRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, 0, err
	}
	return requests, int(total), nil
}

func (m *mongoRequestStore) InsertImagePrompt(ctx context.Context, prompt *models.AIImagePrompt) error {
	_, err := m.images.InsertOne(ctx, prompt)
	return err
}
