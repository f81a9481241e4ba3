package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the application counters
type Metrics struct {
	TokensUsed         metric.Int64Counter
	GenerationDuration metric.Float64Histogram
	LegalNotifications metric.Int64Counter
}

var defaultMetrics *Metrics

// InitMetrics initializes the application metrics and installs them as the
// package default used by the record helpers.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("timber-cms-platform")

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	generationDuration, err := meter.Float64Histogram(
		"content.generation.duration",
		metric.WithDescription("Content generation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	legalNotifications, err := meter.Int64Counter(
		"legal.notifications.queued",
		metric.WithDescription("Legal change notifications queued"),
	)
	if err != nil {
		return nil, err
	}

	defaultMetrics = &Metrics{
		TokensUsed:         tokensUsed,
		GenerationDuration: generationDuration,
		LegalNotifications: legalNotifications,
	}
	return defaultMetrics, nil
}

// RecordTokensUsed records provider token usage. Safe before InitMetrics.
func RecordTokensUsed(tokens int64, model string) {
	if defaultMetrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
	}
	defaultMetrics.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

// RecordGeneration records one generation attempt. Safe before InitMetrics.
func RecordGeneration(seconds float64, contentType, status string) {
	if defaultMetrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("content.type", contentType),
		attribute.String("content.status", status),
	}
	defaultMetrics.GenerationDuration.Record(context.Background(), seconds, metric.WithAttributes(attrs...))
}

// RecordLegalNotification records a queued legal change notification.
func RecordLegalNotification(pageType string) {
	if defaultMetrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("legal.type", pageType),
	}
	defaultMetrics.LegalNotifications.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
