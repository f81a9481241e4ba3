package routes

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"timber-cms-platform/middleware"
	"timber-cms-platform/models"
	"timber-cms-platform/services"
	"timber-cms-platform/utils"

	"github.com/gin-gonic/gin"
)

// respondServiceError maps service layer errors onto the standard error
// envelope. Validation failures list every violation in details.
func respondServiceError(c *gin.Context, err error) {
	if ve, ok := services.AsValidationError(err); ok {
		utils.RespondWithBadRequest(c, "Validation failed", gin.H{"violations": ve.Violations})
		return
	}
	if ce, ok := services.AsConflictError(err); ok {
		utils.RespondWithConflict(c, ce.Message)
		return
	}
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.RespondWithNotFound(c, err.Error())
	case errors.Is(err, services.ErrRateLimited):
		utils.RespondWithRateLimited(c, err.Error())
	case errors.Is(err, services.ErrServiceUnavailable):
		utils.RespondWithServiceUnavailable(c, err.Error())
	case errors.Is(err, services.ErrRevisionConflict):
		utils.RespondWithConflict(c, "The record was modified by another request, retry with fresh data")
	default:
		utils.RespondWithInternalError(c, "Internal server error", nil)
	}
}

// SetupAIRoutes registers the AI settings, template and generation
// endpoints.
func SetupAIRoutes(
	router *gin.Engine,
	auth *middleware.AuthMiddleware,
	settingsService *services.SettingsService,
	usageService *services.UsageService,
	templateService *services.TemplateService,
	generationService *services.GenerationService,
) {
	ai := router.Group("/api/ai")
	ai.Use(auth.RequireAuth())

	// GET /api/ai/settings - current configuration with the key masked
	ai.GET("/settings", func(c *gin.Context) {
		settings, err := settingsService.GetSettings(c.Request.Context())
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, settingsService.Masked(settings))
	})

	// PUT /api/ai/settings - partial update, admin only
	ai.PUT("/settings", auth.RequireAdmin(), func(c *gin.Context) {
		var upd models.AISettingsUpdate
		if err := c.ShouldBindJSON(&upd); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", gin.H{"error": err.Error()})
			return
		}

		settings, err := settingsService.UpdateSettings(c.Request.Context(), upd)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, settings)
	})

	// POST /api/ai/settings/reset-usage - zero the usage counters, admin only
	ai.POST("/settings/reset-usage", auth.RequireAdmin(), func(c *gin.Context) {
		if err := settingsService.ResetUsage(c.Request.Context()); err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Usage statistics reset"})
	})

	// GET /api/ai/validate-key - key shape check, never fails the page that
	// calls it
	ai.GET("/validate-key", func(c *gin.Context) {
		valid, message, err := settingsService.ValidateAPIKeyFormat(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"valid": false, "message": "Unable to check API key right now"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": valid, "message": message})
	})

	// GET /api/ai/usage - accumulated usage plus live rate limit windows
	ai.GET("/usage", func(c *gin.Context) {
		stats, err := usageService.Statistics(c.Request.Context())
		if err != nil {
			respondServiceError(c, err)
			return
		}

		response := gin.H{"usage": stats}
		if status, err := usageService.Status(c.Request.Context()); err == nil {
			response["rateLimits"] = status
		}
		c.JSON(http.StatusOK, response)
	})

	// GET /api/ai/rate-limits - live window counters and reset times
	ai.GET("/rate-limits", func(c *gin.Context) {
		status, err := usageService.Status(c.Request.Context())
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	// GET /api/ai/prompts - template registry listing, optionally by category
	ai.GET("/prompts", func(c *gin.Context) {
		templates := templateService.ListTemplates(c.Request.Context(), c.Query("category"))
		c.JSON(http.StatusOK, gin.H{"templates": templates})
	})

	// POST /api/ai/prompts - register a custom template, admin only
	ai.POST("/prompts", auth.RequireAdmin(), func(c *gin.Context) {
		var tpl models.PromptTemplate
		if err := c.ShouldBindJSON(&tpl); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", gin.H{"error": err.Error()})
			return
		}

		created, err := templateService.CreateTemplate(c.Request.Context(), tpl)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	// POST /api/ai/generate/content - run the content generation pipeline
	ai.POST("/generate/content", func(c *gin.Context) {
		var input services.ContentGenerationInput
		if err := c.ShouldBindJSON(&input); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", gin.H{"error": err.Error()})
			return
		}

		response, err := generationService.GenerateContent(c.Request.Context(), middleware.GetUserID(c), input)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response)
	})

	// POST /api/ai/generate/image-prompt - structured image prompt
	ai.POST("/generate/image-prompt", func(c *gin.Context) {
		var input services.ImagePromptInput
		if err := c.ShouldBindJSON(&input); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", gin.H{"error": err.Error()})
			return
		}

		prompt, err := generationService.GenerateImagePrompt(c.Request.Context(), middleware.GetUserID(c), input)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, prompt)
	})

	// GET /api/ai/content/history - the caller's generation history, always 200
	ai.GET("/content/history", func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		var since time.Time
		if raw := c.Query("startDate"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				parsed, err = time.Parse("2006-01-02", raw)
			}
			if err != nil {
				utils.RespondWithBadRequest(c, "startDate must be RFC 3339 or YYYY-MM-DD", nil)
				return
			}
			since = parsed
		}

		history := generationService.GetContentHistory(
			c.Request.Context(),
			middleware.GetUserID(c),
			c.Query("contentType"),
			since,
			page,
			limit,
		)
		c.JSON(http.StatusOK, history)
	})
}
