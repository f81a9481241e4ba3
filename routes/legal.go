package routes

import (
	"net/http"

	"timber-cms-platform/middleware"
	"timber-cms-platform/models"
	"timber-cms-platform/services"
	"timber-cms-platform/utils"

	"github.com/gin-gonic/gin"
)

// SetupLegalRoutes registers the legal page lifecycle endpoints. Published
// pages are also readable without authentication for the storefront.
func SetupLegalRoutes(
	router *gin.Engine,
	auth *middleware.AuthMiddleware,
	legalService *services.LegalService,
	exportService *services.LegalExportService,
) {
	// Public storefront access to published legal documents
	router.GET("/api/public/legal/:type", func(c *gin.Context) {
		page, err := legalService.GetLegalPage(c.Request.Context(), c.Param("type"))
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	})

	legal := router.Group("/api/legal")
	legal.Use(auth.RequireAuth())

	// GET /api/legal/pages - summaries for the admin overview, always 200
	legal.GET("/pages", func(c *gin.Context) {
		pages := legalService.ListLegalPages(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"pages": pages})
	})

	// GET /api/legal/pages/:type - one document with full content
	legal.GET("/pages/:type", func(c *gin.Context) {
		page, err := legalService.GetLegalPage(c.Request.Context(), c.Param("type"))
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	})

	// POST /api/legal/generate - create a page, AI-drafted by default, admin only
	legal.POST("/generate", auth.RequireAdmin(), func(c *gin.Context) {
		var req models.CreateLegalPageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", gin.H{"error": err.Error()})
			return
		}

		page, err := legalService.GenerateLegalPage(c.Request.Context(), req)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusCreated, page)
	})

	// PUT /api/legal/pages/:id - versioned partial update, admin only
	legal.PUT("/pages/:id", auth.RequireAdmin(), func(c *gin.Context) {
		var upd models.UpdateLegalPageRequest
		if err := c.ShouldBindJSON(&upd); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", gin.H{"error": err.Error()})
			return
		}

		page, err := legalService.UpdateLegalPage(c.Request.Context(), c.Param("id"), upd)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	})

	// POST /api/legal/pages/:id/review - record a completed legal review
	legal.POST("/pages/:id/review", auth.RequireAdmin(), func(c *gin.Context) {
		var body struct {
			Notes string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", gin.H{"error": err.Error()})
			return
		}

		page, err := legalService.MarkReviewed(c.Request.Context(), c.Param("id"), body.Notes)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	})

	// GET /api/legal/review-status - compliance dashboard, always 200
	legal.GET("/review-status", func(c *gin.Context) {
		c.JSON(http.StatusOK, legalService.CheckReviewStatus(c.Request.Context()))
	})

	// GET /api/legal/export - compliance export download, admin only
	legal.GET("/export", auth.RequireAdmin(), func(c *gin.Context) {
		req := &services.LegalExportRequest{
			Format:         c.DefaultQuery("format", "excel"),
			IncludeContent: c.Query("include_content") == "true",
		}
		if req.Format != "json" && req.Format != "excel" {
			utils.RespondWithBadRequest(c, "format must be json or excel", nil)
			return
		}

		data, err := exportService.BuildExport(c.Request.Context(), req)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		if err := exportService.StreamExport(c, data, req.Format); err != nil {
			utils.RespondWithInternalError(c, "Failed to stream export", nil)
		}
	})
}
