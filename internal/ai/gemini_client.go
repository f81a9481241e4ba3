package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"timber-cms-platform/internal/logger"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// ErrUnavailable indicates the provider cannot serve requests right now,
// either because the circuit breaker is open or the call timed out.
var ErrUnavailable = errors.New("generation provider unavailable")

// GenerateRequest carries the per-call generation parameters resolved from
// the stored settings.
type GenerateRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// GenerateResult is the provider output plus actual token consumption.
type GenerateResult struct {
	Content    string
	TokensUsed int
}

// GeminiClient wraps the Gemini API behind a circuit breaker and a local
// request rate limiter so a flapping upstream cannot stall the whole
// content pipeline.
type GeminiClient struct {
	client  *genai.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

func NewGeminiClient(apiKey string, requestsPerMinute int, timeout time.Duration) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	if requestsPerMinute < 1 {
		requestsPerMinute = 10
	}
	limiter := rate.NewLimiter(rate.Limit(float64(requestsPerMinute)*0.9/60.0), requestsPerMinute/10+1)

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &GeminiClient{
		client:  client,
		breaker: breaker,
		limiter: limiter,
		timeout: timeout,
	}, nil
}

// Generate runs one content generation call. Transient provider errors get
// a single retry; an open breaker or expired deadline surfaces as
// ErrUnavailable.
func (gc *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", req.Model),
		attribute.Int("gemini.max_tokens", req.MaxTokens),
	)

	if err := gc.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, gc.timeout)
	defer cancel()

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		resp, err := gc.call(ctx, req)
		if err != nil && ctx.Err() == nil {
			// One retry for transient provider errors.
			resp, err = gc.call(ctx, req)
		}
		return resp, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return nil, fmt.Errorf("%w: circuit breaker open", ErrUnavailable)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: request timed out", ErrUnavailable)
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	resp := result.(*genai.GenerateContentResponse)
	out := &GenerateResult{
		Content:    extractText(resp),
		TokensUsed: extractTokenUsage(resp),
	}
	span.SetAttributes(attribute.Int("gemini.actual_tokens", out.TokensUsed))

	if out.Content == "" {
		return nil, errors.New("provider returned no candidates")
	}
	return out, nil
}

func (gc *GeminiClient) call(ctx context.Context, req GenerateRequest) (*genai.GenerateContentResponse, error) {
	model := gc.client.GenerativeModel(req.Model)
	model.SetTemperature(float32(req.Temperature))
	model.SetMaxOutputTokens(int32(req.MaxTokens))
	return model.GenerateContent(ctx, genai.Text(req.Prompt))
}

func extractText(resp *genai.GenerateContentResponse) string {
	text := ""
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text += string(t)
			}
		}
	}
	return text
}

// extractTokenUsage prefers the provider's usage metadata and falls back to
// a 4-characters-per-token estimate.
func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}

	estimated := len(extractText(resp)) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

// Close releases the underlying API client.
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
