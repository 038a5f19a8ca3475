package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"streamscribe/internal/analytics"
	"streamscribe/internal/extract"
	"streamscribe/internal/logger"
)

type submitRequest struct {
	URL string `json:"url" binding:"required"`
}

// submitTranscription answers a cached or previously processed video with
// the stored record immediately. Everything else starts a background run
// and returns the job id to poll.
func (s *Server) submitTranscription(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	user := currentUser(c)
	outcome, videoID, err := s.Pipeline.Check(c.Request.Context(), user, req.URL)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if outcome != nil {
		c.JSON(http.StatusOK, gin.H{"cached": true, "record": outcome.Record})
		return
	}

	jobID, err := s.Progress.Begin(c.Request.Context(), user.ID.Hex(), req.URL)
	if err != nil {
		abortWithError(c, err)
		return
	}

	// The run outlives this request; progress is observable via the job id.
	go func() {
		if _, err := s.Pipeline.Run(s.jobContext(), user, req.URL, videoID, jobID); err != nil {
			logger.New().WithJob(jobID).WithError(err).Error("transcription run failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
}

func (s *Server) jobProgress(c *gin.Context) {
	snap, err := s.Progress.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	// jobs read like records: only the submitting user sees them
	if snap.UserID != currentUser(c).ID.Hex() {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) listTranscriptions(c *gin.Context) {
	user := currentUser(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	recs, err := s.Transcriptions.ListRecent(c.Request.Context(), user.ID, page, pageSize)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": page, "transcriptions": recs})
}

func (s *Server) getTranscription(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transcription id"})
		return
	}

	rec, err := s.Transcriptions.FindByID(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// deleteTranscription removes the record and releases the dedup claim and
// cache entry so the same video can be submitted again.
func (s *Server) deleteTranscription(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transcription id"})
		return
	}

	ctx := c.Request.Context()
	user := currentUser(c)
	rec, err := s.Transcriptions.Delete(ctx, user.ID, id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	log := logger.New().WithField("video_id", rec.VideoID)
	if err := s.Ledger.Forget(ctx, user.ID, rec.VideoID); err != nil {
		log.WithError(err).Warn("ledger entry not released")
	}
	if err := s.Cache.Invalidate(ctx, user.ID.Hex(), extract.NormalizeURL(rec.SourceURL)); err != nil {
		log.WithError(err).Warn("cache entry not invalidated")
	}

	c.JSON(http.StatusOK, gin.H{"deleted": rec.ID.Hex()})
}

func (s *Server) usage(c *gin.Context) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	stats, err := s.Credits.UserStats(c.Request.Context(), currentUser(c).ID, monthStart)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// analyticsWindow parses the from/to query range, defaulting to the last
// 30 days. from is inclusive, to exclusive.
func analyticsWindow(c *gin.Context) (time.Time, time.Time, error) {
	const layout = "2006-01-02"
	to := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	from := to.AddDate(0, 0, -30)

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(layout, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q", v)
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(layout, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q", v)
		}
		to = t.Add(24 * time.Hour)
	}
	return from, to, nil
}

func (s *Server) adminAnalytics(c *gin.Context) {
	from, to, err := analyticsWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := s.Credits.ListWindow(c.Request.Context(), from, to)
	if err != nil {
		abortWithError(c, err)
		return
	}

	period := c.DefaultQuery("groupBy", analytics.PeriodDay)
	switch period {
	case analytics.PeriodDay, analytics.PeriodWeek, analytics.PeriodMonth:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "groupBy must be day, week, or month"})
		return
	}
	topN, _ := strconv.Atoi(c.DefaultQuery("topN", "10"))

	users, err := s.Users.ListAll(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from":       from.Format("2006-01-02"),
		"to":         to.Format("2006-01-02"),
		"totals":     analytics.Summarize(records),
		"byTier":     analytics.GroupByTier(records),
		"byPeriod":   analytics.GroupByPeriod(records, period),
		"topUsers":   analytics.TopUsersByCost(records, topN),
		"engagement": analytics.EngagementReport(users),
	})
}

func (s *Server) adminAnalyticsExport(c *gin.Context) {
	from, to, err := analyticsWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := s.Credits.ListWindow(c.Request.Context(), from, to)
	if err != nil {
		abortWithError(c, err)
		return
	}
	topN, _ := strconv.Atoi(c.DefaultQuery("topN", "10"))

	rep := analytics.BuildReport(from.Format("2006-01-02"), to.Format("2006-01-02"), records, topN)
	var buf bytes.Buffer
	if err := analytics.WriteXLSX(&buf, rep); err != nil {
		abortWithError(c, err)
		return
	}

	name := fmt.Sprintf("analytics-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
