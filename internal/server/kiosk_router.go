package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/analytics"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/events"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/feedback"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/kiosk"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingFeedbackService = errors.New("feedback service dependency required")
	errMissingConnectivity    = errors.New("connectivity dependency required")
	errMissingKioskAgent      = errors.New("kiosk agent dependency required")
	errMissingEventSource     = errors.New("event source dependency required")
)

// FeedbackService is the tap pipeline the kiosk screen drives.
type FeedbackService interface {
	Submit(ctx context.Context, grade feedback.Grade, clickTime time.Time) (feedback.Result, error)
	PendingCount(ctx context.Context) int
	Notice() (feedback.Notice, bool)
}

type ConnectivityController interface {
	Online() bool
	Set(online bool) bool
}

type KioskAgent interface {
	Sync(ctx context.Context) (feedback.FlushReport, error)
	Summary() (analytics.Summary, bool)
}

type KioskDependencies struct {
	Feedback     FeedbackService
	Connectivity ConnectivityController
	Agent        KioskAgent
	Events       EventSource
	Clock        func() time.Time
	Logger       *zap.Logger
}

// NewKioskHandler serves the local API the kiosk screen talks to.
func NewKioskHandler(deps KioskDependencies) (http.Handler, error) {
	if deps.Feedback == nil {
		return nil, errMissingFeedbackService
	}
	if deps.Connectivity == nil {
		return nil, errMissingConnectivity
	}
	if deps.Agent == nil {
		return nil, errMissingKioskAgent
	}
	if deps.Events == nil {
		return nil, errMissingEventSource
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	handler := &kioskHandler{
		feedback:     deps.Feedback,
		connectivity: deps.Connectivity,
		agent:        deps.Agent,
		events:       deps.Events,
		clock:        clock,
		logger:       logger,
	}

	router := newEngine(logger)
	api := router.Group("/api")
	api.POST("/feedback", handler.handleSubmit)
	api.GET("/status", handler.handleStatus)
	api.POST("/connectivity", handler.handleConnectivity)
	api.POST("/sync", handler.handleSync)
	api.GET("/summary", handler.handleSummary)
	api.GET("/events", handler.handleEvents)

	return router, nil
}

type kioskHandler struct {
	feedback     FeedbackService
	connectivity ConnectivityController
	agent        KioskAgent
	events       EventSource
	clock        func() time.Time
	logger       *zap.Logger
}

type submitRequestPayload struct {
	Grade string `json:"grade"`
}

type submitResponsePayload struct {
	Outcome feedback.Outcome    `json:"outcome"`
	Message string              `json:"message"`
	Kind    feedback.NoticeKind `json:"kind"`
	Event   feedback.Event      `json:"event"`
}

type statusResponsePayload struct {
	Online  bool             `json:"online"`
	Pending int              `json:"pending"`
	Label   string           `json:"label"`
	Notice  *feedback.Notice `json:"notice,omitempty"`
}

type connectivityRequestPayload struct {
	Online *bool `json:"online"`
}

func (h *kioskHandler) handleSubmit(c *gin.Context) {
	clickTime := h.clock()

	var request submitRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	grade, err := feedback.ParseGrade(request.Grade)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grade"})
		return
	}

	result, err := h.feedback.Submit(c.Request.Context(), grade, clickTime)
	switch {
	case errors.Is(err, feedback.ErrSubmissionInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "submission_in_flight"})
		return
	case err != nil:
		h.logger.Error("feedback submission failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "submission_failed"})
		return
	}

	c.JSON(http.StatusOK, submitResponsePayload{
		Outcome: result.Outcome,
		Message: result.Notice.Text,
		Kind:    result.Notice.Kind,
		Event:   result.Event,
	})
}

func (h *kioskHandler) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.status(c.Request.Context()))
}

func (h *kioskHandler) handleConnectivity(c *gin.Context) {
	var request connectivityRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Online == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.connectivity.Set(*request.Online)
	c.JSON(http.StatusOK, h.status(c.Request.Context()))
}

func (h *kioskHandler) handleSync(c *gin.Context) {
	report, err := h.agent.Sync(c.Request.Context())
	if err != nil {
		h.logger.Error("manual sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *kioskHandler) handleSummary(c *gin.Context) {
	summary, ok := h.agent.Summary()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "summary_unavailable"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *kioskHandler) handleEvents(c *gin.Context) {
	streamEvents(c, h.events, heartbeatInterval,
		events.TopicPendingCount,
		events.TopicConnectivity,
		events.TopicNotice,
		events.TopicSummary,
	)
}

func (h *kioskHandler) status(ctx context.Context) statusResponsePayload {
	online := h.connectivity.Online()
	pending := h.feedback.PendingCount(ctx)
	payload := statusResponsePayload{
		Online:  online,
		Pending: pending,
		Label:   kiosk.StatusLabel(online, pending),
	}
	if notice, ok := h.feedback.Notice(); ok {
		payload.Notice = &notice
	}
	return payload
}
