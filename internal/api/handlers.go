// Package api implements the broker's three-endpoint HTTP facade over the
// registry, plus the ambient /healthz and /metrics routes.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kestrelstream/broker/internal/apperror"
	"github.com/kestrelstream/broker/internal/config"
	"github.com/kestrelstream/broker/internal/logging"
	"github.com/kestrelstream/broker/internal/metrics"
	"github.com/kestrelstream/broker/internal/origin"
	"github.com/kestrelstream/broker/internal/registry"
	"github.com/kestrelstream/broker/pkg/models"
)

const probeDeadline = 10 * time.Second

// Facade holds the dependencies shared by every handler.
type Facade struct {
	registry *registry.Registry
	prober   origin.Prober
	cfg      *config.Config
	logger   *logging.Logger
}

func NewFacade(r *registry.Registry, p origin.Prober, cfg *config.Config, logger *logging.Logger) *Facade {
	return &Facade{registry: r, prober: p, cfg: cfg, logger: logger}
}

// ListStreams handles GET /api/streams: the configured catalog annotated
// with whether each name currently has an active session.
func (f *Facade) ListStreams(c *gin.Context) {
	active := make(map[string]bool)
	for _, s := range f.registry.List() {
		active[s.Name] = true
	}

	entries := make([]models.StreamListEntry, 0, len(f.cfg.Streams))
	for _, s := range f.cfg.Streams {
		entries = append(entries, models.StreamListEntry{
			Name: s.Name,
			URL:  s.URL,
			Live: active[s.Name],
		})
	}

	c.JSON(http.StatusOK, entries)
}

// Play handles POST /api/play.
func (f *Facade) Play(c *gin.Context) {
	var req models.PlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperror.New(apperror.BadRequest, "malformed request body"))
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeError(c, apperror.New(apperror.BadRequest, "name is required"))
		return
	}

	configuredURL := ""
	if s, ok := f.cfg.FindStream(req.Name); ok {
		configuredURL = s.URL
	} else if req.URL == "" {
		writeError(c, apperror.New(apperror.BadRequest, "unknown stream name with no url override"))
		return
	}

	if req.URL != "" && !strings.HasPrefix(req.URL, "rtsp://") {
		writeError(c, apperror.New(apperror.BadRequest, "url must use the rtsp:// scheme"))
		return
	}

	snap, err := f.registry.EnsureRunning(c.Request.Context(), req.Name, req.URL, configuredURL)
	if err != nil {
		writeError(c, apperror.Wrap(apperror.SpawnFailed, "failed to start transcoder", err))
		return
	}

	probeStart := time.Now()
	live := f.prober.WaitUntilLive(c.Request.Context(), snap.StreamKey, probeStart.Add(probeDeadline))
	duration := time.Since(probeStart)
	metrics.RecordProbe(live, duration.Seconds())
	f.logger.LogProbeResult(snap.StreamKey, live, duration)

	if !live {
		writeError(c, apperror.New(apperror.ProbeTimeout, "origin did not report the stream live in time"))
		return
	}

	playbackURL := strings.ReplaceAll(f.cfg.SRS.PlaybackURLTemplate, "{stream_name}", snap.StreamKey)
	c.JSON(http.StatusOK, models.PlayResponse{PlaybackURL: playbackURL})
}

// Heartbeat handles POST /api/heartbeat.
func (f *Facade) Heartbeat(c *gin.Context) {
	var req models.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperror.New(apperror.BadRequest, "malformed request body"))
		return
	}

	if f.registry.Touch(req.Name) == registry.NotFound {
		writeError(c, apperror.New(apperror.UnknownStream, "no active session for name"))
		return
	}

	c.Status(http.StatusOK)
}

// Healthz handles GET /healthz: unauthenticated process liveness.
func (f *Facade) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps an apperror.Error to its HTTP status, matched via
// errors.As rather than string comparison.
func writeError(c *gin.Context, err error) {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		c.JSON(appErr.Status(), gin.H{"error": appErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
