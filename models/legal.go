package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Legal page types. One canonical slug per type.
const (
	LegalPrivacy  = "privacy"
	LegalTerms    = "terms"
	LegalShipping = "shipping"
	LegalRefund   = "refund"
)

const (
	MinLegalContentLength = 500
	MaxLegalTitleLength   = 100
)

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

var legalSlugs = map[string]string{
	LegalPrivacy:  "privacy-policy",
	LegalTerms:    "terms-of-service",
	LegalShipping: "shipping-delivery-policy",
	LegalRefund:   "refund-return-policy",
}

type LegalSEO struct {
	MetaTitle       string `bson:"meta_title" json:"metaTitle"`
	MetaDescription string `bson:"meta_description" json:"metaDescription"`
	NoIndex         bool   `bson:"no_index" json:"noIndex"`
}

// LegalPage is a versioned, jurisdiction-tagged legal document with a
// review workflow. Revision supports optimistic check-and-set on updates;
// Version is the user-facing semantic document version.
type LegalPage struct {
	ID             string    `bson:"_id" json:"id"`
	Type           string    `bson:"type" json:"type"`
	Title          string    `bson:"title" json:"title"`
	Slug           string    `bson:"slug" json:"slug"`
	Content        string    `bson:"content" json:"content"`
	Version        string    `bson:"version" json:"version"`
	EffectiveDate  time.Time `bson:"effective_date" json:"effectiveDate"`
	LastReviewDate time.Time `bson:"last_review_date" json:"lastReviewDate"`

	AIGenerated    bool   `bson:"ai_generated" json:"aiGenerated"`
	OriginalPrompt string `bson:"original_prompt,omitempty" json:"originalPrompt,omitempty"`
	LegalReviewed  bool   `bson:"legal_reviewed" json:"legalReviewed"`
	ReviewNotes    string `bson:"review_notes,omitempty" json:"reviewNotes,omitempty"`

	Jurisdiction   string   `bson:"jurisdiction" json:"jurisdiction"`
	ApplicableLaws []string `bson:"applicable_laws" json:"applicableLaws"`

	SEO LegalSEO `bson:"seo" json:"seo"`

	PreviousVersions []string `bson:"previous_versions" json:"previousVersions"`
	ChangeReason     string   `bson:"change_reason,omitempty" json:"changeReason,omitempty"`
	NotificationSent bool     `bson:"notification_sent" json:"notificationSent"`

	Revision  int64     `bson:"revision" json:"-"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

type LegalPageSummary struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Slug           string    `json:"slug"`
	Version        string    `json:"version"`
	EffectiveDate  time.Time `json:"effectiveDate"`
	LastReviewDate time.Time `json:"lastReviewDate"`
	AIGenerated    bool      `json:"aiGenerated"`
	LegalReviewed  bool      `json:"legalReviewed"`
	Jurisdiction   string    `json:"jurisdiction"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (p *LegalPage) Summary() LegalPageSummary {
	return LegalPageSummary{
		ID:             p.ID,
		Type:           p.Type,
		Title:          p.Title,
		Slug:           p.Slug,
		Version:        p.Version,
		EffectiveDate:  p.EffectiveDate,
		LastReviewDate: p.LastReviewDate,
		AIGenerated:    p.AIGenerated,
		LegalReviewed:  p.LegalReviewed,
		Jurisdiction:   p.Jurisdiction,
		UpdatedAt:      p.UpdatedAt,
	}
}

type CreateLegalPageRequest struct {
	Type                 string   `json:"type" binding:"required"`
	BusinessName         string   `json:"businessName,omitempty"`
	Jurisdiction         string   `json:"jurisdiction,omitempty"`
	ContactEmail         string   `json:"contactEmail,omitempty"`
	WebsiteURL           string   `json:"websiteUrl,omitempty"`
	SpecificRequirements []string `json:"specificRequirements,omitempty"`
	AIGenerate           *bool    `json:"aiGenerate,omitempty"` // defaults to true
}

// UpdateLegalPageRequest is a partial update. Nil fields are left unchanged.
type UpdateLegalPageRequest struct {
	Title            string     `json:"title,omitempty"`
	Content          *string    `json:"content,omitempty"`
	Version          *string    `json:"version,omitempty"`
	EffectiveDate    *time.Time `json:"effectiveDate,omitempty"`
	LastReviewDate   *time.Time `json:"lastReviewDate,omitempty"`
	LegalReviewed    *bool      `json:"legalReviewed,omitempty"`
	ReviewNotes      *string    `json:"reviewNotes,omitempty"`
	Jurisdiction     *string    `json:"jurisdiction,omitempty"`
	ApplicableLaws   []string   `json:"applicableLaws,omitempty"`
	SEO              *LegalSEO  `json:"seo,omitempty"`
	ChangeReason     *string    `json:"changeReason,omitempty"`
	NotificationSent *bool      `json:"notificationSent,omitempty"`
}

// legalTemplate carries the per-type document skeleton: required sections
// for the generation prompt and the Indian compliance law list.
type legalTemplate struct {
	Title            string
	RequiredSections []string
	Compliance       []string
}

var legalTemplates = map[string]legalTemplate{
	LegalPrivacy: {
		Title: "Privacy Policy",
		RequiredSections: []string{
			"Information We Collect",
			"How We Use Your Information",
			"Information Sharing",
			"Data Security",
			"Your Rights",
			"Contact Information",
		},
		Compliance: []string{
			"IT Act 2000",
			"Information Technology (Reasonable Security Practices and Procedures and Sensitive Personal Data or Information) Rules, 2011",
			"Consumer Protection Act 2019",
		},
	},
	LegalTerms: {
		Title: "Terms of Service",
		RequiredSections: []string{
			"Acceptance of Terms",
			"Description of Service",
			"User Obligations",
			"Intellectual Property",
			"Limitation of Liability",
			"Governing Law",
			"Contact Information",
		},
		Compliance: []string{
			"Indian Contract Act 1872",
			"Information Technology Act 2000",
			"Consumer Protection Act 2019",
		},
	},
	LegalShipping: {
		Title: "Shipping & Delivery Policy",
		RequiredSections: []string{
			"Shipping Areas",
			"Delivery Timeframes",
			"Shipping Costs",
			"Order Tracking",
			"Damaged Items",
			"Contact Information",
		},
		Compliance: []string{
			"Consumer Protection Act 2019",
			"Sale of Goods Act",
		},
	},
	LegalRefund: {
		Title: "Refund & Return Policy",
		RequiredSections: []string{
			"Return Conditions",
			"Refund Process",
			"Exclusions",
			"Refund Timeframe",
			"Contact Information",
		},
		Compliance: []string{
			"Consumer Protection Act 2019",
			"E-commerce Rules 2020",
		},
	},
}

func IsLegalPageType(t string) bool {
	_, ok := legalTemplates[t]
	return ok
}

// SlugForLegalType returns the canonical slug for a page type.
func SlugForLegalType(t string) string {
	return legalSlugs[t]
}

// DefaultLegalPage returns a new page skeleton for the given type at
// version 1.0.0. Content is left empty for the caller to fill.
func DefaultLegalPage(t string, now time.Time) *LegalPage {
	tpl := legalTemplates[t]
	return &LegalPage{
		Type:           t,
		Title:          tpl.Title,
		Slug:           legalSlugs[t],
		Version:        "1.0.0",
		EffectiveDate:  now,
		LastReviewDate: now,
		Jurisdiction:   "Karnataka, India",
		ApplicableLaws: append([]string{}, tpl.Compliance...),
		SEO: LegalSEO{
			MetaTitle:       tpl.Title,
			MetaDescription: fmt.Sprintf("Read our %s for our timber and wood products services.", strings.ToLower(tpl.Title)),
		},
		PreviousVersions: []string{},
		Revision:         1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ApplicableLaws returns the base IT Act plus the type-specific laws,
// used when a jurisdiction override replaces the template defaults.
func ApplicableLaws(t string) []string {
	laws := []string{"Information Technology Act 2000"}
	tpl, ok := legalTemplates[t]
	if !ok {
		return laws
	}
	for _, law := range tpl.Compliance {
		if law != "Information Technology Act 2000" {
			laws = append(laws, law)
		}
	}
	return laws
}

// GenerateLegalPrompt builds the structured generation prompt from business
// metadata, the type's required-sections checklist and its compliance laws.
func GenerateLegalPrompt(t string, req CreateLegalPageRequest) string {
	tpl := legalTemplates[t]

	var business []string
	if req.BusinessName != "" {
		business = append(business, "Business name: "+req.BusinessName)
	}
	if req.Jurisdiction != "" {
		business = append(business, "Jurisdiction: "+req.Jurisdiction)
	}
	if req.ContactEmail != "" {
		business = append(business, "Contact email: "+req.ContactEmail)
	}
	if req.WebsiteURL != "" {
		business = append(business, "Website: "+req.WebsiteURL)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate a comprehensive %s for a timber and wood products business", tpl.Title)
	if len(business) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(business, ". "))
	}
	b.WriteString(".\n\n")
	fmt.Fprintf(&b, "Required sections: %s\n\n", strings.Join(tpl.RequiredSections, ", "))
	fmt.Fprintf(&b, "Indian legal compliance requirements: %s\n\n", strings.Join(tpl.Compliance, ", "))
	if len(req.SpecificRequirements) > 0 {
		fmt.Fprintf(&b, "Additional specific requirements: %s\n\n", strings.Join(req.SpecificRequirements, ", "))
	}
	b.WriteString("The policy should be professional, legally sound, and tailored for the Indian timber industry context. Include specific contact information and jurisdiction details where appropriate.")

	return b.String()
}

// ValidateLegalPage returns every violated constraint on the page.
func ValidateLegalPage(p *LegalPage) []string {
	var errs []string

	if !IsLegalPageType(p.Type) {
		errs = append(errs, "type must be one of: privacy, terms, shipping, refund")
	}
	if len(p.Title) > MaxLegalTitleLength {
		errs = append(errs, fmt.Sprintf("title must be %d characters or less", MaxLegalTitleLength))
	}
	if len(p.Content) < MinLegalContentLength {
		errs = append(errs, fmt.Sprintf("content must be at least %d characters", MinLegalContentLength))
	}
	if !versionPattern.MatchString(p.Version) {
		errs = append(errs, "version must follow semantic versioning format (e.g. 1.0.0)")
	}
	if expected, ok := legalSlugs[p.Type]; ok && p.Slug != expected {
		errs = append(errs, fmt.Sprintf("slug for %s must be %q", p.Type, expected))
	}
	if p.EffectiveDate.IsZero() {
		errs = append(errs, "effective date is required")
	}
	if p.LastReviewDate.IsZero() {
		errs = append(errs, "last review date is required")
	}

	return errs
}

// IncrementVersion bumps the patch component. A malformed version resets to
// 1.0.0, matching the original recovery behavior for legacy records.
func IncrementVersion(version string) string {
	if !versionPattern.MatchString(version) {
		return "1.0.0"
	}
	parts := strings.Split(version, ".")
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return "1.0.0"
	}
	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1)
}

// ShouldNotifyUsers reports whether an update is significant enough to
// require informing end users: a change to the effective date, jurisdiction
// or version, or an explicit change reason.
func ShouldNotifyUsers(page *LegalPage, changes UpdateLegalPageRequest) bool {
	if changes.EffectiveDate != nil || changes.Jurisdiction != nil || changes.ChangeReason != nil {
		return true
	}
	if changes.Version != nil && *changes.Version != page.Version {
		return true
	}
	return false
}

// DefaultLegalContent is the manual-authoring fallback used when AI
// generation is disabled or the provider cannot produce content.
func DefaultLegalContent(t string) string {
	switch t {
	case LegalPrivacy:
		return `# Privacy Policy

## Information We Collect

We collect information you provide directly to us, such as when you request a bulk order quote, create an account, or contact us for support. This may include your name, contact details, delivery address and order preferences.

## How We Use Your Information

We use the information we collect to provide, maintain, and improve our services, process orders and quotations, arrange delivery of timber products, and communicate with you about your orders.

## Information Sharing

We do not sell your personal information. We share it only with delivery partners and payment processors as needed to fulfil your orders, and where required by applicable law.

## Data Security

We take reasonable security measures consistent with the IT Act 2000 and associated rules to protect your personal information against unauthorised access, alteration or disclosure.

## Your Rights

You may request access to, correction of, or deletion of your personal information by contacting us using the details below.

## Contact Information

If you have any questions about this Privacy Policy, please contact us at privacy@example.com.`
	case LegalTerms:
		return `# Terms of Service

## Acceptance of Terms

By accessing and using this website, you accept and agree to be bound by the terms and provisions of this agreement.

## Description of Service

We operate an online storefront for timber and wood products, including product catalogues, bulk order requests and related content.

## User Obligations

You agree to provide accurate information when placing orders or requesting quotations, and to use the website only for lawful purposes.

## Intellectual Property

Permission is granted to temporarily access the materials on our website for personal, non-commercial transitory viewing only. All content remains our property.

## Limitation of Liability

To the extent permitted by applicable law, we are not liable for indirect or consequential losses arising from use of the website.

## Governing Law

These terms are governed by the laws of India, and disputes are subject to the jurisdiction of the courts of Karnataka.

## Contact Information

For any questions regarding these terms, please contact legal@example.com.`
	case LegalShipping:
		return `# Shipping & Delivery Policy

## Shipping Areas

We currently deliver to select locations in and around Bangalore, Karnataka. Please contact us for specific delivery area information before placing a bulk order.

## Delivery Timeframes

Orders are typically processed within 1-2 business days. Delivery timeframes vary by location, product availability and order volume; bulk timber orders may require additional lead time.

## Shipping Costs

Delivery charges depend on distance, order weight and vehicle requirements, and are quoted at the time of order confirmation.

## Order Tracking

Once dispatched, we will share the transporter's contact details so you can track your consignment.

## Damaged Items

Please inspect goods on delivery and report visible damage within 48 hours so we can arrange replacement or credit.

## Contact Information

For shipping inquiries, please contact us at shipping@example.com.`
	case LegalRefund:
		return `# Refund & Return Policy

## Return Conditions

Items must be returned in their original, uncut and unused condition within 30 days of purchase. Custom-cut or made-to-order timber is not returnable unless defective.

## Refund Process

Once we receive and inspect your return, we will process your refund to the original payment method within 5-7 business days.

## Exclusions

Custom-milled products, treated timber cut to order, and items damaged after delivery are excluded from refunds except where required by the Consumer Protection Act 2019.

## Refund Timeframe

Refunds are normally credited within 5-7 business days of approval, depending on your bank or payment provider.

## Contact Information

For refund inquiries, please contact us at refunds@example.com.`
	}
	return ""
}
