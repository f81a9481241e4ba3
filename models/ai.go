package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Content categories supported by the generation pipeline
const (
	CategoryBlog      = "blog"
	CategoryProduct   = "product"
	CategoryLegal     = "legal"
	CategoryMarketing = "marketing"
)

// AIContentRequest lifecycle states. Completed, error and cancelled are terminal.
const (
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusError      = "error"
	StatusCancelled  = "cancelled"
)

// Validation ranges for AI settings updates
const (
	TemperatureMin = 0.0
	TemperatureMax = 1.0
	MaxTokensMin   = 1
	MaxTokensMax   = 4000
	PerMinuteMin   = 1
	PerMinuteMax   = 100
	PerHourMin     = 1
	PerHourMax     = 1000
	PerDayMin      = 1
	PerDayMax      = 10000
)

var SupportedModels = []string{"gemini-pro", "gemini-pro-vision", "gemini-1.5-pro"}

type RateLimits struct {
	RequestsPerMinute int `bson:"requests_per_minute" json:"requestsPerMinute"`
	RequestsPerHour   int `bson:"requests_per_hour" json:"requestsPerHour"`
	RequestsPerDay    int `bson:"requests_per_day" json:"requestsPerDay"`
}

type UsageStats struct {
	TotalRequests int64     `bson:"total_requests" json:"totalRequests"`
	TotalTokens   int64     `bson:"total_tokens" json:"totalTokens"`
	LastUsed      time.Time `bson:"last_used" json:"lastUsed"`
	MonthlySpend  float64   `bson:"monthly_spend" json:"monthlySpend"`
}

// AISettings is the singleton configuration record for the content
// generation feature. The API key is stored sealed and is never returned
// in plaintext. Revision supports optimistic check-and-set on updates.
type AISettings struct {
	ID          string     `bson:"_id" json:"id"`
	APIKey      string     `bson:"api_key" json:"apiKey,omitempty"`
	Model       string     `bson:"model" json:"model"`
	MaxTokens   int        `bson:"max_tokens" json:"maxTokens"`
	Temperature float64    `bson:"temperature" json:"temperature"`
	IsEnabled   bool       `bson:"is_enabled" json:"isEnabled"`
	RateLimits  RateLimits `bson:"rate_limits" json:"rateLimits"`
	Usage       UsageStats `bson:"usage" json:"usage"`
	Revision    int64      `bson:"revision" json:"-"`
	CreatedAt   time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updatedAt"`
}

// AISettingsUpdate is a partial settings update. Nil fields are left unchanged.
type AISettingsUpdate struct {
	APIKey      *string           `json:"apiKey,omitempty"`
	Model       *string           `json:"model,omitempty"`
	MaxTokens   *int              `json:"maxTokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	IsEnabled   *bool             `json:"isEnabled,omitempty"`
	RateLimits  *RateLimitsUpdate `json:"rateLimits,omitempty"`
}

type RateLimitsUpdate struct {
	RequestsPerMinute *int `json:"requestsPerMinute,omitempty"`
	RequestsPerHour   *int `json:"requestsPerHour,omitempty"`
	RequestsPerDay    *int `json:"requestsPerDay,omitempty"`
}

// DefaultAISettings returns the record persisted on first access.
func DefaultAISettings(now time.Time) *AISettings {
	return &AISettings{
		ID:          "main",
		Model:       "gemini-pro",
		MaxTokens:   2000,
		Temperature: 0.7,
		IsEnabled:   true,
		RateLimits: RateLimits{
			RequestsPerMinute: 10,
			RequestsPerHour:   100,
			RequestsPerDay:    500,
		},
		Usage: UsageStats{
			LastUsed: now,
		},
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidateAISettingsUpdate returns every violated constraint, not just the
// first, so a settings form can highlight all offending fields at once.
func ValidateAISettingsUpdate(upd AISettingsUpdate) []string {
	var errs []string

	if upd.Temperature != nil && (*upd.Temperature < TemperatureMin || *upd.Temperature > TemperatureMax) {
		errs = append(errs, fmt.Sprintf("temperature must be between %g and %g", TemperatureMin, TemperatureMax))
	}

	if upd.MaxTokens != nil && (*upd.MaxTokens < MaxTokensMin || *upd.MaxTokens > MaxTokensMax) {
		errs = append(errs, fmt.Sprintf("maxTokens must be between %d and %d", MaxTokensMin, MaxTokensMax))
	}

	if upd.RateLimits != nil {
		rl := upd.RateLimits
		if rl.RequestsPerMinute != nil && (*rl.RequestsPerMinute < PerMinuteMin || *rl.RequestsPerMinute > PerMinuteMax) {
			errs = append(errs, fmt.Sprintf("requestsPerMinute must be between %d and %d", PerMinuteMin, PerMinuteMax))
		}
		if rl.RequestsPerHour != nil && (*rl.RequestsPerHour < PerHourMin || *rl.RequestsPerHour > PerHourMax) {
			errs = append(errs, fmt.Sprintf("requestsPerHour must be between %d and %d", PerHourMin, PerHourMax))
		}
		if rl.RequestsPerDay != nil && (*rl.RequestsPerDay < PerDayMin || *rl.RequestsPerDay > PerDayMax) {
			errs = append(errs, fmt.Sprintf("requestsPerDay must be between %d and %d", PerDayMin, PerDayMax))
		}
	}

	if upd.Model != nil && !IsSupportedModel(*upd.Model) {
		errs = append(errs, "model must be one of: "+strings.Join(SupportedModels, ", "))
	}

	return errs
}

func IsSupportedModel(model string) bool {
	for _, m := range SupportedModels {
		if m == model {
			return true
		}
	}
	return false
}

// PromptTemplate is a named, parameterized text pattern used to construct
// a generation request. Every {placeholder} referenced in Prompt must be
// declared in Variables.
type PromptTemplate struct {
	ID          string   `bson:"_id" json:"id"`
	Name        string   `bson:"name" json:"name"`
	Category    string   `bson:"category" json:"category"`
	Prompt      string   `bson:"prompt" json:"prompt"`
	Variables   []string `bson:"variables" json:"variables"`
	Description string   `bson:"description" json:"description"`
	IsDefault   bool     `bson:"is_default" json:"isDefault,omitempty"`
	UsageCount  int64    `bson:"usage_count" json:"usageCount"`
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z][a-zA-Z0-9_]*)\}`)

// ValidatePromptTemplate reports every constraint violation in the template
// definition, including placeholders missing from the variables list.
func ValidatePromptTemplate(t PromptTemplate) []string {
	var errs []string

	if strings.TrimSpace(t.Name) == "" {
		errs = append(errs, "name is required")
	}
	if !IsContentCategory(t.Category) {
		errs = append(errs, "category must be one of: blog, product, legal, marketing")
	}
	if strings.TrimSpace(t.Prompt) == "" {
		errs = append(errs, "prompt is required")
	}

	declared := make(map[string]bool, len(t.Variables))
	for _, v := range t.Variables {
		declared[v] = true
	}
	for _, match := range placeholderPattern.FindAllStringSubmatch(t.Prompt, -1) {
		if !declared[match[1]] {
			errs = append(errs, fmt.Sprintf("placeholder {%s} is not declared in variables", match[1]))
		}
	}

	return errs
}

// RenderPrompt substitutes every {variable} token in the template prompt.
// Placeholders without a binding render as the empty string.
func RenderPrompt(prompt string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(prompt, func(token string) string {
		name := token[1 : len(token)-1]
		return vars[name]
	})
}

func IsContentCategory(category string) bool {
	switch category {
	case CategoryBlog, CategoryProduct, CategoryLegal, CategoryMarketing:
		return true
	}
	return false
}

// DefaultPromptTemplates are seeded into the registry on first use.
func DefaultPromptTemplates() []PromptTemplate {
	return []PromptTemplate{
		{
			ID:          "blog-timber-basics",
			Name:        "Timber Basics Blog Post",
			Category:    CategoryBlog,
			Prompt:      "Write an informative blog post about {topic} for timber and wood product customers in {location}. Include practical tips, quality considerations, and local availability information. Keep it engaging and professional.",
			Variables:   []string{"topic", "location"},
			Description: "General timber and wood product information",
			IsDefault:   true,
		},
		{
			ID:          "legal-privacy-india",
			Name:        "Indian Privacy Policy",
			Category:    CategoryLegal,
			Prompt:      "Generate a comprehensive privacy policy for a {businessType} business in India, compliant with IT Act 2000 and consumer protection laws. Include sections on data collection, usage, cookies, and user rights under Indian law.",
			Variables:   []string{"businessType"},
			Description: "IT Act compliant privacy policy",
			IsDefault:   true,
		},
		{
			ID:          "product-description",
			Name:        "Product Description",
			Category:    CategoryProduct,
			Prompt:      "Create a compelling product description for {productName} including key features, benefits, specifications, and ideal use cases. Highlight quality, durability, and value proposition.",
			Variables:   []string{"productName"},
			Description: "Detailed product descriptions for e-commerce",
			IsDefault:   true,
		},
	}
}

type GenerationMetadata struct {
	Model          string  `bson:"model" json:"model"`
	TokensUsed     int     `bson:"tokens_used" json:"tokensUsed"`
	GenerationTime int64   `bson:"generation_time" json:"generationTime"` // milliseconds
	Cost           float64 `bson:"cost" json:"cost"`
}

// AIContentRequest records a single generation attempt and its outcome.
// Created in "generating"; immutable once terminal except for EditedContent.
type AIContentRequest struct {
	ID               string             `bson:"_id" json:"id"`
	Description      string             `bson:"description" json:"description"`
	ContentType      string             `bson:"content_type" json:"contentType"`
	PromptTemplate   string             `bson:"prompt_template,omitempty" json:"promptTemplate,omitempty"`
	GeneratedContent string             `bson:"generated_content" json:"generatedContent"`
	EditedContent    string             `bson:"edited_content,omitempty" json:"editedContent,omitempty"`
	Status           string             `bson:"status" json:"status"`
	Metadata         GenerationMetadata `bson:"metadata" json:"metadata"`
	CreatedAt        time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updatedAt"`
	UserID           string             `bson:"user_id" json:"userId"`
	SessionID        string             `bson:"session_id,omitempty" json:"sessionId,omitempty"`
}

type AIContentResponse struct {
	ID                  string             `json:"id"`
	Content             string             `json:"content"`
	Metadata            GenerationMetadata `json:"metadata"`
	Suggestions         []string           `json:"suggestions,omitempty"`
	AlternativeVersions []string           `json:"alternativeVersions,omitempty"`
}

// AIImagePrompt is a structured prompt for an external image generation
// service, produced by the orchestrator rather than prose content.
type AIImagePrompt struct {
	ID              string    `bson:"_id" json:"id"`
	Description     string    `bson:"description" json:"description"`
	ImageType       string    `bson:"image_type" json:"imageType"`
	Style           string    `bson:"style,omitempty" json:"style,omitempty"`
	Dimensions      string    `bson:"dimensions,omitempty" json:"dimensions,omitempty"`
	GeneratedPrompt string    `bson:"generated_prompt" json:"generatedPrompt"`
	NegativePrompt  string    `bson:"negative_prompt,omitempty" json:"negativePrompt,omitempty"`
	Suggestions     []string  `bson:"suggestions,omitempty" json:"suggestions,omitempty"`
	CreatedAt       time.Time `bson:"created_at" json:"createdAt"`
	UserID          string    `bson:"user_id" json:"userId"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type ContentHistory struct {
	Requests   []AIContentRequest `json:"requests"`
	Pagination Pagination         `json:"pagination"`
}

// Per-token pricing by model, in currency units.
var tokenRates = map[string]float64{
	"gemini-pro":        0.00025,
	"gemini-pro-vision": 0.0004,
	"gemini-1.5-pro":    0.00035,
}

// TokenCost estimates the cost of a generation. Unknown models bill at the
// gemini-pro rate.
func TokenCost(tokens int, model string) float64 {
	rate, ok := tokenRates[model]
	if !ok {
		rate = tokenRates["gemini-pro"]
	}
	return float64(tokens) * rate
}
