package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"timber-cms-platform/internal/logger"
	"timber-cms-platform/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LegalStore persists legal pages. The type field is unique: one page per
// document type.
type LegalStore interface {
	List(ctx context.Context) ([]models.LegalPage, error)
	GetByType(ctx context.Context, pageType string) (*models.LegalPage, error)
	GetByID(ctx context.Context, id string) (*models.LegalPage, error)
	Insert(ctx context.Context, page *models.LegalPage) error
	Replace(ctx context.Context, page *models.LegalPage, expectedRevision int64) error
}

// LegalContentGenerator produces document text from a prompt, running the
// same gates as user-facing content generation.
type LegalContentGenerator interface {
	GenerateForPrompt(ctx context.Context, prompt string) (string, error)
}

// Notifier dispatches a user notification about a legal page change.
type Notifier interface {
	NotifyLegalChange(ctx context.Context, pageID, pageType, version, reason string) error
}

// ReviewStatus partitions the legal pages by review state for the
// compliance dashboard.
type ReviewStatus struct {
	TotalPages    int                       `json:"totalPages"`
	NeedsReview   []models.LegalPageSummary `json:"needsReview"`
	OverdueReview []models.LegalPageSummary `json:"overdueReview"`
	UpToDate      []models.LegalPageSummary `json:"upToDate"`
}

// LegalService manages the lifecycle of the four legal documents: creation
// with optional AI drafting, versioned updates, the review workflow and
// change notifications.
type LegalService struct {
	store     LegalStore
	generator LegalContentGenerator
	notifier  Notifier
	now       func() time.Time
}

func NewLegalService(store LegalStore, generator LegalContentGenerator, notifier Notifier) *LegalService {
	return &LegalService{
		store:     store,
		generator: generator,
		notifier:  notifier,
		now:       time.Now,
	}
}

// GenerateLegalPage creates the page for a document type. AI drafting is
// the default; rate-limit and provider-outage errors propagate so the
// caller can retry, while any other generation failure falls back to the
// built-in document so the storefront always has a page to publish.
func (l *LegalService) GenerateLegalPage(ctx context.Context, req models.CreateLegalPageRequest) (*models.LegalPage, error) {
	if !models.IsLegalPageType(req.Type) {
		return nil, NewValidationError("type must be one of: privacy, terms, shipping, refund")
	}

	if existing, err := l.store.GetByType(ctx, req.Type); err == nil && existing != nil {
		return nil, &ConflictError{
			Message: fmt.Sprintf("a %s page already exists, update it instead", req.Type),
		}
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := l.now().UTC()
	page := models.DefaultLegalPage(req.Type, now)
	page.ID = uuid.New().String()

	if req.Jurisdiction != "" {
		page.Jurisdiction = req.Jurisdiction
		page.ApplicableLaws = models.ApplicableLaws(req.Type)
	}

	aiGenerate := req.AIGenerate == nil || *req.AIGenerate
	if aiGenerate {
		prompt := models.GenerateLegalPrompt(req.Type, req)
		content, err := l.generator.GenerateForPrompt(ctx, prompt)
		switch {
		case err == nil:
			page.Content = content
			page.AIGenerated = true
			page.OriginalPrompt = prompt
		case errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrRateLimited):
			return nil, err
		default:
			logger.Warn("legal page generation failed, using built-in content", "type", req.Type, "error", err)
			page.Content = models.DefaultLegalContent(req.Type)
		}
	} else {
		page.Content = models.DefaultLegalContent(req.Type)
	}

	if violations := models.ValidateLegalPage(page); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	if err := l.store.Insert(ctx, page); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &ConflictError{
				Message: fmt.Sprintf("a %s page already exists, update it instead", req.Type),
			}
		}
		return nil, err
	}

	return page, nil
}

// GetLegalPage fetches one page by document type.
func (l *LegalService) GetLegalPage(ctx context.Context, pageType string) (*models.LegalPage, error) {
	if !models.IsLegalPageType(pageType) {
		return nil, NewValidationError("type must be one of: privacy, terms, shipping, refund")
	}
	return l.store.GetByType(ctx, pageType)
}

// ListLegalPages returns summaries of all pages. A store outage degrades
// to an empty list so the admin overview always renders.
func (l *LegalService) ListLegalPages(ctx context.Context) []models.LegalPageSummary {
	pages, err := l.store.List(ctx)
	if err != nil {
		logger.Warn("failed to list legal pages", "error", err)
		return []models.LegalPageSummary{}
	}

	summaries := make([]models.LegalPageSummary, 0, len(pages))
	for i := range pages {
		summaries = append(summaries, pages[i].Summary())
	}
	return summaries
}

// ListAll returns the full page records, used by the compliance export.
func (l *LegalService) ListAll(ctx context.Context) ([]models.LegalPage, error) {
	return l.store.List(ctx)
}

// UpdateLegalPage applies a partial update. A material change without an
// explicit version bumps the patch version and archives the previous one.
// Significant changes queue a user notification, best-effort.
func (l *LegalService) UpdateLegalPage(ctx context.Context, id string, upd models.UpdateLegalPageRequest) (*models.LegalPage, error) {
	current, err := l.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	page := *current
	contentChanged := upd.Content != nil && *upd.Content != page.Content

	if upd.Title != "" {
		page.Title = upd.Title
	}
	if upd.Content != nil {
		page.Content = *upd.Content
	}
	if upd.EffectiveDate != nil {
		page.EffectiveDate = *upd.EffectiveDate
	}
	if upd.LastReviewDate != nil {
		page.LastReviewDate = *upd.LastReviewDate
	}
	if upd.Jurisdiction != nil {
		page.Jurisdiction = *upd.Jurisdiction
	}
	if upd.ApplicableLaws != nil {
		page.ApplicableLaws = upd.ApplicableLaws
	}
	if upd.SEO != nil {
		page.SEO = *upd.SEO
	}
	if upd.ChangeReason != nil {
		page.ChangeReason = *upd.ChangeReason
	}

	notify := models.ShouldNotifyUsers(current, upd)

	materialChange := contentChanged || upd.EffectiveDate != nil || upd.ChangeReason != nil
	switch {
	case upd.Version != nil:
		if *upd.Version != current.Version {
			page.PreviousVersions = append(page.PreviousVersions, current.Version)
		}
		page.Version = *upd.Version
	case materialChange:
		page.PreviousVersions = append(page.PreviousVersions, current.Version)
		page.Version = models.IncrementVersion(current.Version)
		notify = true
	}

	// Edited content needs a fresh legal review unless the caller says
	// otherwise in the same request.
	if contentChanged && upd.LegalReviewed == nil {
		page.LegalReviewed = false
	}
	if upd.LegalReviewed != nil {
		page.LegalReviewed = *upd.LegalReviewed
	}
	if upd.ReviewNotes != nil {
		page.ReviewNotes = *upd.ReviewNotes
	}

	if upd.NotificationSent != nil {
		page.NotificationSent = *upd.NotificationSent
	} else if notify {
		if err := l.notifier.NotifyLegalChange(ctx, page.ID, page.Type, page.Version, page.ChangeReason); err != nil {
			logger.Warn("failed to queue legal change notification", "page", page.ID, "error", err)
			page.NotificationSent = false
		} else {
			page.NotificationSent = true
		}
	}

	if violations := models.ValidateLegalPage(&page); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	page.Revision = current.Revision + 1
	page.UpdatedAt = l.now().UTC()

	if err := l.store.Replace(ctx, &page, current.Revision); err != nil {
		return nil, err
	}
	return &page, nil
}

// MarkReviewed records a completed legal review on a page.
func (l *LegalService) MarkReviewed(ctx context.Context, id, notes string) (*models.LegalPage, error) {
	current, err := l.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	page := *current
	page.LegalReviewed = true
	page.ReviewNotes = notes
	page.LastReviewDate = l.now().UTC()
	page.Revision = current.Revision + 1
	page.UpdatedAt = page.LastReviewDate

	if err := l.store.Replace(ctx, &page, current.Revision); err != nil {
		return nil, err
	}
	return &page, nil
}

// CheckReviewStatus partitions the pages for the compliance dashboard:
// AI-generated pages awaiting review, pages past the annual review mark,
// and everything else. Store outages degrade to an empty report.
func (l *LegalService) CheckReviewStatus(ctx context.Context) *ReviewStatus {
	pages, err := l.store.List(ctx)
	if err != nil {
		logger.Warn("failed to compute legal review status", "error", err)
		return &ReviewStatus{
			NeedsReview:   []models.LegalPageSummary{},
			OverdueReview: []models.LegalPageSummary{},
			UpToDate:      []models.LegalPageSummary{},
		}
	}

	status := &ReviewStatus{
		TotalPages:    len(pages),
		NeedsReview:   []models.LegalPageSummary{},
		OverdueReview: []models.LegalPageSummary{},
		UpToDate:      []models.LegalPageSummary{},
	}

	annualDeadline := l.now().UTC().AddDate(-1, 0, 0)
	for i := range pages {
		page := &pages[i]
		summary := page.Summary()
		switch {
		case page.AIGenerated && !page.LegalReviewed:
			status.NeedsReview = append(status.NeedsReview, summary)
		case page.LastReviewDate.Before(annualDeadline):
			status.OverdueReview = append(status.OverdueReview, summary)
		default:
			status.UpToDate = append(status.UpToDate, summary)
		}
	}
	return status
}

type mongoLegalStore struct {
	col *mongo.Collection
}

func NewMongoLegalStore(db *mongo.Database) LegalStore {
	return &mongoLegalStore{col: db.Collection("legal_pages")}
}

func (m *mongoLegalStore) List(ctx context.Context) ([]models.LegalPage, error) {
	cursor, err := m.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"type": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var pages []models.LegalPage
	if err := cursor.All(ctx, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

func (m *mongoLegalStore) GetByType(ctx context.Context, pageType string) (*models.LegalPage, error) {
	return m.findOne(ctx, bson.M{"type": pageType})
}

func (m *mongoLegalStore) GetByID(ctx context.Context, id string) (*models.LegalPage, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *mongoLegalStore) findOne(ctx context.Context, filter bson.M) (*models.LegalPage, error) {
	var page models.LegalPage
	err := m.col.FindOne(ctx, filter).Decode(&page)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (m *mongoLegalStore) Insert(ctx context.Context, page *models.LegalPage) error {
	_, err := m.col.InsertOne(ctx, page)
	return err
}

func (m *mongoLegalStore) Replace(ctx context.Context, page *models.LegalPage, expectedRevision int64) error {
	result, err := m.col.ReplaceOne(ctx, bson.M{"_id": page.ID, "revision": expectedRevision}, page)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrRevisionConflict
	}
	return nil
}
