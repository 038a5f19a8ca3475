// Package server wires the HTTP API: submission, progress, result
// retrieval, usage, and the admin analytics surface.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"streamscribe/internal/orchestrator"
	"streamscribe/internal/progress"
	"streamscribe/internal/store"
	"streamscribe/internal/types"
)

// Pipeline is the submission flow the handlers drive. Satisfied by
// *orchestrator.Orchestrator.
type Pipeline interface {
	Check(ctx context.Context, user *types.User, rawURL string) (*orchestrator.Outcome, string, error)
	Run(ctx context.Context, user *types.User, rawURL, videoID, jobID string) (*types.TranscriptionRecord, error)
}

// ResultCache is the slice of the cache the delete handler needs.
type ResultCache interface {
	Invalidate(ctx context.Context, userID, normalizedURL string) error
}

type Server struct {
	Pipeline       Pipeline
	Progress       progress.Tracker
	Transcriptions store.Transcriptions
	Ledger         store.Ledger
	Credits        store.Credits
	Users          store.Users
	Cache          ResultCache

	// JobCtx is the parent context for background transcription runs so
	// they outlive the submitting request. Defaults to context.Background.
	JobCtx context.Context
}

func (s *Server) jobContext() context.Context {
	if s.JobCtx != nil {
		return s.JobCtx
	}
	return context.Background()
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", s.authRequired())
	{
		api.POST("/transcriptions", s.submitTranscription)
		api.GET("/transcriptions", s.listTranscriptions)
		api.GET("/transcriptions/:id", s.getTranscription)
		api.DELETE("/transcriptions/:id", s.deleteTranscription)
		api.GET("/jobs/:id/progress", s.jobProgress)
		api.GET("/usage", s.usage)

		admin := api.Group("/admin", s.adminOnly())
		{
			admin.GET("/analytics", s.adminAnalytics)
			admin.GET("/analytics/export", s.adminAnalyticsExport)
		}
	}

	return r
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidSourceURL):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrDuplicateVideo), errors.Is(err, types.ErrStorageConflict):
		return http.StatusConflict
	case errors.Is(err, types.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrTranscriptionTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, types.ErrUpstreamTranscription), errors.Is(err, types.ErrAudioExtraction):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
