package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"timber-cms-platform/internal/logger"
	"timber-cms-platform/internal/telemetry"
)

const TaskLegalNotify = "legal:notify"

// LegalNotifyPayload describes one legal page change that users must be
// told about.
type LegalNotifyPayload struct {
	PageID   string `json:"page_id"`
	PageType string `json:"page_type"`
	Version  string `json:"version"`
	Reason   string `json:"reason,omitempty"`
}

func NewLegalNotifyTask(pageID, pageType, version, reason string) (*asynq.Task, error) {
	payload, err := json.Marshal(LegalNotifyPayload{
		PageID:   pageID,
		PageType: pageType,
		Version:  version,
		Reason:   reason,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskLegalNotify,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(1*time.Minute),
		asynq.Queue("default"),
	), nil
}

// Notifier enqueues legal change notifications for the worker to deliver.
// It satisfies the legal service's notifier dependency.
type Notifier struct {
	client *asynq.Client
}

func NewNotifier(client *asynq.Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) NotifyLegalChange(ctx context.Context, pageID, pageType, version, reason string) error {
	task, err := NewLegalNotifyTask(pageID, pageType, version, reason)
	if err != nil {
		return err
	}
	info, err := n.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	logger.Info("queued legal change notification", "task", info.ID, "page", pageID, "version", version)
	telemetry.RecordLegalNotification(pageType)
	return nil
}

// TaskProcessor handles queued tasks on the worker.
type TaskProcessor struct {
	db *mongo.Database
}

func NewTaskProcessor(db *mongo.Database) *TaskProcessor {
	return &TaskProcessor{db: db}
}

// HandleLegalNotify records the dispatched notification. Actual delivery
// channels (email, site banner) read from the legal_notifications
// collection.
func (p *TaskProcessor) HandleLegalNotify(ctx context.Context, t *asynq.Task) error {
	var payload LegalNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("dispatching legal change notification", "page", payload.PageID, "type", payload.PageType, "version", payload.Version)

	col := p.db.Collection("legal_notifications")
	_, err := col.InsertOne(ctx, bson.M{
		"page_id":       payload.PageID,
		"page_type":     payload.PageType,
		"version":       payload.Version,
		"reason":        payload.Reason,
		"dispatched_at": time.Now().UTC(),
	})
	return err
}
