package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/wapuda/ytbatch/internal/jobs"
	"github.com/wapuda/ytbatch/internal/logx"
	"github.com/wapuda/ytbatch/internal/orchestrator"
	"github.com/wapuda/ytbatch/internal/resolver"
	"github.com/wapuda/ytbatch/internal/sanitize"
	"github.com/wapuda/ytbatch/internal/ytdlp"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, jobs.ErrJobExists):
		return http.StatusConflict
	case errors.Is(err, resolver.ErrMissingKey):
		return http.StatusServiceUnavailable
	case errors.Is(err, resolver.ErrUnrecognized):
		return http.StatusBadRequest
	}
	switch jobs.KindOf(err) {
	case jobs.KindInput:
		return http.StatusBadRequest
	case jobs.KindResolver:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (s *Server) handleHealth(c *gin.Context) {
	deps := ytdlp.DependencyStatus(s.cfg.YtDlpBin)
	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"ytApi":  s.resolver != nil && s.resolver.Configured(),
		"ytDlp":  deps.YTDLPFound,
		"ffmpeg": deps.FFmpegFound,
	})
}

func (s *Server) handleParse(c *gin.Context) {
	var req jobs.ParseRequest
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		badRequest(c, "url is required")
		return
	}
	res, err := s.resolver.Resolve(c.Request.Context(), req.URL)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if res.Items == nil {
		res.Items = []jobs.Item{}
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleJobStatus(c *gin.Context) {
	id := strings.TrimSpace(c.Query("jobId"))
	if id == "" {
		badRequest(c, "jobId is required")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": s.orch.Jobs().Status(id)})
}

func (s *Server) handleDownloadOne(c *gin.Context) {
	var p jobs.SinglePayload
	if err := c.ShouldBind(&p); err != nil {
		badRequest(c, "invalid parameters")
		return
	}
	mode, err := jobs.ParseMode(p.Mode)
	if err != nil || strings.TrimSpace(p.URL) == "" {
		badRequest(c, "invalid parameters")
		return
	}

	ctx := c.Request.Context()
	art, err := s.orch.Fetch(ctx, orchestrator.SingleRequest{URL: p.URL, Mode: mode, Title: p.Title})
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer art.Close()

	f, err := art.Open()
	if err != nil {
		abortWithError(c, jobs.Wrap(jobs.KindRetrieval, "open output", err))
		return
	}
	defer f.Close()

	h := c.Writer.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Length", strconv.FormatInt(art.Size, 10))
	h.Set("Content-Disposition", sanitize.ContentDisposition(art.Name))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, f); err != nil {
		l := logx.FromCtx(ctx)
		l.Warn().Err(err).Str("file", art.SafeName).Msg("sending file failed")
	}
}

// batchPayload reads the batch body either as JSON or from the "payload"
// form field holding the same JSON.
func batchPayload(c *gin.Context) (jobs.BatchPayload, error) {
	var p jobs.BatchPayload
	if c.ContentType() == binding.MIMEJSON {
		err := c.ShouldBindJSON(&p)
		return p, err
	}
	raw := c.PostForm("payload")
	if raw == "" {
		return p, errors.New("payload is required")
	}
	err := binding.JSON.BindBody([]byte(raw), &p)
	return p, err
}

func (s *Server) handleDownloadAll(c *gin.Context) {
	p, err := batchPayload(c)
	if err != nil {
		badRequest(c, "invalid payload")
		return
	}
	mode, err := jobs.ParseMode(p.Mode)
	if err != nil || len(p.Items) == 0 {
		badRequest(c, "invalid parameters")
		return
	}

	ctx := c.Request.Context()
	b, err := s.orch.Begin(ctx, orchestrator.BatchRequest{JobID: p.JobID, Mode: mode, Items: p.Items})
	if err != nil {
		abortWithError(c, err)
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "application/zip")
	h.Set("Content-Disposition", sanitize.ContentDisposition(orchestrator.ArchiveName))
	h.Set("X-Job-Id", b.ID())
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	rep, err := b.Stream(ctx, c.Writer)
	l := logx.FromCtx(logx.WithJob(ctx, b.ID()))
	if err != nil {
		l.Info().Err(err).Int("archived", rep.Archived).Msg("batch stream ended early")
		return
	}
	l.Debug().Int("archived", rep.Archived).Int("failed", rep.Failed).Msg("batch stream complete")
}
