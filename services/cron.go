package services

import (
	"context"
	"time"

	"timber-cms-platform/internal/logger"

	"github.com/go-co-op/gocron"
)

// ReviewScheduler runs the daily legal review sweep: it surfaces pages
// that need a legal review or have passed the annual review mark so they
// show up in the logs before a compliance audit does.
type ReviewScheduler struct {
	legal     *LegalService
	scheduler *gocron.Scheduler
}

func NewReviewScheduler(legal *LegalService) *ReviewScheduler {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &ReviewScheduler{
		legal:     legal,
		scheduler: s,
	}
}

// Start registers the daily sweep and starts the scheduler in the
// background.
func (r *ReviewScheduler) Start() error {
	_, err := r.scheduler.Every(1).Day().At("06:00").Tag("legal-review-sweep").Do(r.sweep)
	if err != nil {
		return err
	}

	r.scheduler.StartAsync()
	logger.Info("legal review scheduler started")
	return nil
}

func (r *ReviewScheduler) Stop() {
	r.scheduler.Stop()
}

func (r *ReviewScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	status := r.legal.CheckReviewStatus(ctx)
	if len(status.NeedsReview) == 0 && len(status.OverdueReview) == 0 {
		logger.Info("legal review sweep: all pages up to date", "total", status.TotalPages)
		return
	}

	for _, page := range status.NeedsReview {
		logger.Warn("legal page awaiting review", "type", page.Type, "version", page.Version)
	}
	for _, page := range status.OverdueReview {
		logger.Warn("legal page past annual review", "type", page.Type, "lastReview", page.LastReviewDate)
	}
}
