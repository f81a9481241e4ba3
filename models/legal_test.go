package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugForLegalType(t *testing.T) {
	assert.Equal(t, "privacy-policy", SlugForLegalType(LegalPrivacy))
	assert.Equal(t, "terms-of-service", SlugForLegalType(LegalTerms))
	assert.Equal(t, "shipping-delivery-policy", SlugForLegalType(LegalShipping))
	assert.Equal(t, "refund-return-policy", SlugForLegalType(LegalRefund))
}

func TestDefaultLegalPage(t *testing.T) {
	now := time.Now().UTC()
	page := DefaultLegalPage(LegalPrivacy, now)

	assert.Equal(t, "Privacy Policy", page.Title)
	assert.Equal(t, "privacy-policy", page.Slug)
	assert.Equal(t, "1.0.0", page.Version)
	assert.Equal(t, "Karnataka, India", page.Jurisdiction)
	assert.Contains(t, page.ApplicableLaws, "IT Act 2000")
	assert.Equal(t, now, page.EffectiveDate)
}

func TestValidateLegalPageCollectsAllViolations(t *testing.T) {
	page := &LegalPage{
		Type:    "cookie",
		Title:   strings.Repeat("x", 101),
		Content: "too short",
		Version: "v1",
		Slug:    "wrong",
	}

	violations := ValidateLegalPage(page)
	require.GreaterOrEqual(t, len(violations), 5)
}

func TestValidateLegalPageAcceptsValidPage(t *testing.T) {
	now := time.Now().UTC()
	page := DefaultLegalPage(LegalTerms, now)
	page.Content = DefaultLegalContent(LegalTerms)

	assert.Empty(t, ValidateLegalPage(page))
}

func TestValidateLegalPageContentLengthBoundary(t *testing.T) {
	now := time.Now().UTC()
	page := DefaultLegalPage(LegalPrivacy, now)

	page.Content = strings.Repeat("a", MinLegalContentLength)
	assert.Empty(t, ValidateLegalPage(page))

	page.Content = strings.Repeat("a", MinLegalContentLength-1)
	violations := ValidateLegalPage(page)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "at least 500 characters")
}

func TestIncrementVersion(t *testing.T) {
	assert.Equal(t, "1.0.1", IncrementVersion("1.0.0"))
	assert.Equal(t, "2.3.10", IncrementVersion("2.3.9"))

	// Malformed versions reset rather than error.
	assert.Equal(t, "1.0.0", IncrementVersion("v2"))
	assert.Equal(t, "1.0.0", IncrementVersion(""))
}

func TestShouldNotifyUsers(t *testing.T) {
	page := &LegalPage{Version: "1.0.0"}

	date := time.Now()
	jurisdiction := "Delhi, India"
	reason := "policy change"
	sameVersion := "1.0.0"
	newVersion := "1.1.0"
	content := "updated text"

	assert.True(t, ShouldNotifyUsers(page, UpdateLegalPageRequest{EffectiveDate: &date}))
	assert.True(t, ShouldNotifyUsers(page, UpdateLegalPageRequest{Jurisdiction: &jurisdiction}))
	assert.True(t, ShouldNotifyUsers(page, UpdateLegalPageRequest{ChangeReason: &reason}))
	assert.True(t, ShouldNotifyUsers(page, UpdateLegalPageRequest{Version: &newVersion}))

	assert.False(t, ShouldNotifyUsers(page, UpdateLegalPageRequest{Version: &sameVersion}))
	assert.False(t, ShouldNotifyUsers(page, UpdateLegalPageRequest{Content: &content}))
	assert.False(t, ShouldNotifyUsers(page, UpdateLegalPageRequest{}))
}

func TestGenerateLegalPrompt(t *testing.T) {
	prompt := GenerateLegalPrompt(LegalPrivacy, CreateLegalPageRequest{
		Type:                 LegalPrivacy,
		BusinessName:         "Acme Timber",
		Jurisdiction:         "Karnataka, India",
		ContactEmail:         "hello@acmetimber.in",
		SpecificRequirements: []string{"cookie banner"},
	})

	assert.Contains(t, prompt, "Privacy Policy")
	assert.Contains(t, prompt, "Acme Timber")
	assert.Contains(t, prompt, "Information We Collect")
	assert.Contains(t, prompt, "IT Act 2000")
	assert.Contains(t, prompt, "cookie banner")
}

func TestDefaultLegalContentMeetsMinimumLength(t *testing.T) {
	for _, pageType := range []string{LegalPrivacy, LegalTerms, LegalShipping, LegalRefund} {
		content := DefaultLegalContent(pageType)
		assert.GreaterOrEqual(t, len(content), MinLegalContentLength, "type %s", pageType)
	}
	assert.Empty(t, DefaultLegalContent("cookie"))
}
