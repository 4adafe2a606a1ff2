package router

import (
	"context"
	"errors"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"match-engine-go/internal/api/handler"
	"match-engine-go/internal/evaluation"
	"match-engine-go/internal/extractor"
	"match-engine-go/internal/logger"
)

// Handlers bundles everything the routes need.
type Handlers struct {
	CV         *handler.CVHandler
	Job        *handler.JobHandler
	Evaluation *handler.EvaluationHandler
}

// RegisterRoutes wires the HTTP surface. Health and metrics stay outside the
// authenticated group so probes and scrapers need no key.
func RegisterRoutes(h *server.Hertz, handlers *Handlers, apiKeys []string) {
	h.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		report := handlers.Evaluation.HandleHealth(c)
		status := consts.StatusOK
		if report.Status != "healthy" {
			status = consts.StatusServiceUnavailable
		}
		ctx.JSON(status, report)
	})

	h.GET("/metrics", func(c context.Context, ctx *app.RequestContext) {
		req, err := adaptor.GetCompatRequest(&ctx.Request)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		promhttp.Handler().ServeHTTP(adaptor.GetCompatResponseWriter(&ctx.Response), req)
	})

	api := h.Group("/api/v1")
	if len(apiKeys) > 0 {
		api.Use(apiKeyMiddleware(apiKeys))
	}

	api.POST("/cv/upload", func(c context.Context, ctx *app.RequestContext) {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "file not found in form data"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "failed to open uploaded file"})
			return
		}
		defer file.Close()

		contentType := fileHeader.Header.Get("Content-Type")
		resp, err := handlers.CV.HandleCVUpload(c, file, fileHeader.Filename, contentType)
		if err != nil {
			var unsupported *extractor.ErrUnsupportedContentType
			if errors.As(err, &unsupported) {
				ctx.JSON(consts.StatusUnsupportedMediaType, utils.H{"error": err.Error()})
				return
			}
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusAccepted, resp)
	})

	api.GET("/cv/:cv_id/status", func(c context.Context, ctx *app.RequestContext) {
		cvID := ctx.Param("cv_id")
		doc, err := handlers.CV.GetCVStatus(c, cvID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				ctx.JSON(consts.StatusNotFound, utils.H{"error": "cv not found"})
				return
			}
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{
			"cv_id":             doc.CVID,
			"processing_status": doc.ProcessingStatus,
			"candidate_id":      doc.CandidateID,
			"parser_version":    doc.ParserVersion,
			"uploaded_at":       doc.UploadedAt,
		})
	})

	api.POST("/jobs", func(c context.Context, ctx *app.RequestContext) {
		var req handler.CreateJobRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "invalid request body"})
			return
		}
		resp, err := handlers.Job.HandleCreateJob(c, req)
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusCreated, resp)
	})

	api.GET("/jobs/:job_id", func(c context.Context, ctx *app.RequestContext) {
		job, err := handlers.Job.HandleGetJob(c, ctx.Param("job_id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				ctx.JSON(consts.StatusNotFound, utils.H{"error": "job not found"})
				return
			}
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, job)
	})

	api.POST("/jobs/:job_id/evaluate", func(c context.Context, ctx *app.RequestContext) {
		var req handler.EvaluateRequest
		if len(ctx.Request.Body()) > 0 {
			if err := ctx.BindJSON(&req); err != nil {
				ctx.JSON(consts.StatusBadRequest, utils.H{"error": "invalid request body"})
				return
			}
		}
		resp, err := handlers.Evaluation.HandleEvaluate(c, ctx.Param("job_id"), req)
		if err != nil {
			if errors.Is(err, evaluation.ErrJobNotFound) {
				ctx.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
				return
			}
			logger.Error().Err(err).Str("job_id", ctx.Param("job_id")).Msg("Evaluation run failed")
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.GET("/jobs/:job_id/evaluations/latest", func(c context.Context, ctx *app.RequestContext) {
		resp, err := handlers.Evaluation.HandleLatest(c, ctx.Param("job_id"))
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		if resp == nil {
			ctx.JSON(consts.StatusNotFound, utils.H{"error": "job has no evaluations"})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.GET("/jobs/:job_id/evaluations", func(c context.Context, ctx *app.RequestContext) {
		limit := 0
		if raw := ctx.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				ctx.JSON(consts.StatusBadRequest, utils.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = parsed
		}
		summaries, err := handlers.Evaluation.HandleHistory(c, ctx.Param("job_id"), limit)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"evaluations": summaries})
	})
}

// apiKeyMiddleware validates the X-API-Key header against the configured set.
func apiKeyMiddleware(apiKeys []string) app.HandlerFunc {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		allowed[k] = struct{}{}
	}
	return keyauth.New(
		keyauth.WithKeyLookUp("header:X-API-Key", ""),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
			_, ok := allowed[key]
			return ok, nil
		}),
	)
}
