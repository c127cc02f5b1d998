package api

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"soapscribe/internal/logging"
	"soapscribe/internal/models"
	"soapscribe/internal/pipeline"
	"soapscribe/internal/tracing"
	"soapscribe/internal/uploads"
)

const (
	fileField = "file"
	// multipartOverhead is the body allowance on top of max upload bytes for form framing.
	multipartOverhead int64 = 1 << 20
)

// Pipeline runs the document pipeline for one upload.
type Pipeline interface {
	Run(ctx context.Context, file *models.UploadedFile) (*models.PipelineResult, error)
}

// UploadStore persists request uploads until the pipeline releases them.
type UploadStore interface {
	Save(ctx context.Context, fh *multipart.FileHeader) (*models.UploadedFile, error)
}

// RunLister exposes recent run metadata; optional.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]models.PipelineRun, error)
}

// Handler wires HTTP routes to the document pipeline.
type Handler struct {
	pipeline      Pipeline
	uploads       UploadStore
	runs          RunLister
	maxBytes      int64
	allowedOrigin string
	logger        *zap.Logger
}

// NewHandler constructs a Handler instance. runs may be nil.
func NewHandler(p Pipeline, store UploadStore, runs RunLister, maxBytes int64, allowedOrigin string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		pipeline:      p,
		uploads:       store,
		runs:          runs,
		maxBytes:      maxBytes,
		allowedOrigin: strings.TrimSpace(allowedOrigin),
		logger:        logger,
	}
}

// RegisterRoutes attaches middleware and all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(
		gin.CustomRecovery(h.recovered),
		requestID(),
		tracing.Middleware(),
		logging.Middleware(h.logger),
		cors.New(h.corsConfig()),
	)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/generate", h.generate)
	if h.runs != nil {
		api.GET("/runs", h.listRuns)
	}
}

func (h *Handler) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "X-Request-Id"},
		MaxAge:       12 * time.Hour,
	}
	if h.allowedOrigin == "" || h.allowedOrigin == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = strings.Split(h.allowedOrigin, ",")
		for i, o := range cfg.AllowOrigins {
			cfg.AllowOrigins[i] = strings.TrimSpace(o)
		}
	}
	return cfg
}

func (h *Handler) generate(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	}
	fh, err := h.attachedFile(c)
	if form := c.Request.MultipartForm; form != nil {
		defer form.RemoveAll()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var file *models.UploadedFile
	if fh != nil {
		file, err = h.uploads.Save(c.Request.Context(), fh)
		if err != nil {
			if errors.Is(err, uploads.ErrTooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
				return
			}
			h.logger.Error("save upload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": errorMessage(pipeline.KindUnexpected, err)})
			return
		}
	}

	result, err := h.pipeline.Run(c.Request.Context(), file)
	if err != nil {
		kind := pipeline.Classify(err)
		c.JSON(statusFor(kind), gin.H{"error": errorMessage(kind, err)})
		return
	}
	c.JSON(http.StatusOK, result)
}

// attachedFile returns the single upload of the request, nil when none was attached.
func (h *Handler) attachedFile(c *gin.Context) (*multipart.FileHeader, error) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, errors.New("invalid multipart form")
	}
	form := c.Request.MultipartForm
	if form == nil || len(form.File[fileField]) == 0 {
		return nil, nil
	}
	if len(form.File[fileField]) > 1 {
		return nil, errors.New("exactly one file must be attached")
	}
	return form.File[fileField][0], nil
}

func (h *Handler) listRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	runs, err := h.runs.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = make([]models.PipelineRun, 0)
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *Handler) recovered(c *gin.Context, rec any) {
	h.logger.Error("handler panic", zap.Any("panic", rec), zap.String("path", c.Request.URL.Path))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errorMessage(pipeline.KindUnexpected, nil)})
}

func statusFor(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindMissingFile, pipeline.KindUnsupportedFileKind:
		return http.StatusBadRequest
	case pipeline.KindGenerationService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage keeps client errors descriptive and server errors generic.
func errorMessage(kind pipeline.Kind, err error) string {
	switch kind {
	case pipeline.KindMissingFile:
		return "file is required"
	case pipeline.KindUnsupportedFileKind:
		return err.Error()
	case pipeline.KindGenerationService:
		return "document generation failed"
	default:
		return "something went wrong"
	}
}
