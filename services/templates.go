package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"timber-cms-platform/internal/logger"
	"timber-cms-platform/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const templateCacheTTL = 10 * time.Minute

// TemplateStore persists prompt templates.
type TemplateStore interface {
	List(ctx context.Context) ([]models.PromptTemplate, error)
	Insert(ctx context.Context, t *models.PromptTemplate) error
	IncrementUsage(ctx context.Context, id string) error
}

// TemplateService is the prompt template registry. Listing degrades to the
// built-in defaults when the store is unreachable, so the template picker
// in the admin UI keeps working through a database outage.
type TemplateService struct {
	store TemplateStore

	mu        sync.Mutex
	cached    []models.PromptTemplate
	fetchedAt time.Time
}

func NewTemplateService(store TemplateStore) *TemplateService {
	return &TemplateService{store: store}
}

// ListTemplates returns all templates, seeding the built-in defaults on
// first use. Optional category filters the result.
func (t *TemplateService) ListTemplates(ctx context.Context, category string) []models.PromptTemplate {
	templates := t.load(ctx)
	if category == "" {
		return templates
	}

	filtered := make([]models.PromptTemplate, 0, len(templates))
	for _, tpl := range templates {
		if tpl.Category == category {
			filtered = append(filtered, tpl)
		}
	}
	return filtered
}

func (t *TemplateService) load(ctx context.Context) []models.PromptTemplate {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cached != nil && time.Since(t.fetchedAt) < templateCacheTTL {
		return append([]models.PromptTemplate(nil), t.cached...)
	}

	templates, err := t.store.List(ctx)
	if err != nil {
		logger.Warn("template store unavailable, serving built-in defaults", "error", err)
		return models.DefaultPromptTemplates()
	}

	if len(templates) == 0 {
		templates = models.DefaultPromptTemplates()
		for i := range templates {
			if err := t.store.Insert(ctx, &templates[i]); err != nil {
				logger.Warn("failed to seed default template", "template", templates[i].ID, "error", err)
			}
		}
	}

	t.cached = templates
	t.fetchedAt = time.Now()
	return append([]models.PromptTemplate(nil), templates...)
}

// CreateTemplate validates and registers a custom template. A template
// with the same name and category already present is a conflict.
func (t *TemplateService) CreateTemplate(ctx context.Context, tpl models.PromptTemplate) (*models.PromptTemplate, error) {
	if violations := models.ValidatePromptTemplate(tpl); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	existing := t.load(ctx)
	for _, e := range existing {
		if strings.EqualFold(e.Name, tpl.Name) && e.Category == tpl.Category {
			return nil, &ConflictError{
				Message: fmt.Sprintf("template %q already exists in category %s", tpl.Name, tpl.Category),
			}
		}
	}

	tpl.ID = uuid.New().String()
	tpl.IsDefault = false
	tpl.UsageCount = 0

	if err := t.store.Insert(ctx, &tpl); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &ConflictError{
				Message: fmt.Sprintf("template %q already exists in category %s", tpl.Name, tpl.Category),
			}
		}
		return nil, err
	}

	t.Invalidate()
	return &tpl, nil
}

// FindTemplate resolves a template by ID.
func (t *TemplateService) FindTemplate(ctx context.Context, id string) (*models.PromptTemplate, error) {
	for _, tpl := range t.load(ctx) {
		if tpl.ID == id {
			return &tpl, nil
		}
	}
	return nil, fmt.Errorf("%w: prompt template %s", ErrNotFound, id)
}

// RecordTemplateUse bumps a template's usage counter, best-effort.
func (t *TemplateService) RecordTemplateUse(ctx context.Context, id string) {
	if err := t.store.IncrementUsage(ctx, id); err != nil {
		logger.Warn("failed to record template usage", "template", id, "error", err)
		return
	}
	t.Invalidate()
}

func (t *TemplateService) Invalidate() {
	t.mu.Lock()
	t.cached = nil
	t.mu.Unlock()
}

type mongoTemplateStore struct {
	col *mongo.Collection
}

func NewMongoTemplateStore(db *mongo.Database) TemplateStore {
	return &mongoTemplateStore{col: db.Collection("prompt_templates")}
}

func (m *mongoTemplateStore) List(ctx context.Context) ([]models.PromptTemplate, error) {
	cursor, err := m.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"name": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var templates []models.PromptTemplate
	if err := cursor.All(ctx, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func (m *mongoTemplateStore) Insert(ctx context.Context, t *models.PromptTemplate) error {
	_, err := m.col.InsertOne(ctx, t)
	return err
}

func (m *mongoTemplateStore) IncrementUsage(ctx context.Context, id string) error {
	_, err := m.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"usage_count": 1}})
	return err
}
