package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/analytics"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/auth"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/feedback"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/remote"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const adminEmailContextKey = "admin_email"

var (
	errMissingAnalytics     = errors.New("analytics dependency required")
	errMissingAuthenticator = errors.New("authenticator dependency required")
)

// Analytics is the read side the dashboard exposes.
type Analytics interface {
	PublicSummary(ctx context.Context) (analytics.Summary, error)
	TotalsAllTime(ctx context.Context) (analytics.Counts, error)
	TotalsForDay(ctx context.Context, date string) (analytics.Counts, error)
	TotalsForRange(ctx context.Context, startDate, endDate, grade string) (int64, error)
	ComparePeriods(ctx context.Context, p1Start, p1End, p2Start, p2End string) (analytics.Comparison, error)
	RecentFeedback(ctx context.Context, limit int) ([]remote.Row, error)
	LastFeedback(ctx context.Context) (remote.Row, bool, error)
	FeedbackByID(ctx context.Context, docID string) (remote.Row, bool, error)
	AvailableDates(ctx context.Context, maxScan int) ([]string, error)
	TVSnapshot(ctx context.Context) (analytics.TVSnapshot, error)
}

type DashboardDependencies struct {
	Analytics     Analytics
	Authenticator *auth.Authenticator
	AllowOrigins  []string
	SecureCookies bool
	Logger        *zap.Logger
}

// NewDashboardHandler serves admin login and the protected reporting API.
func NewDashboardHandler(deps DashboardDependencies) (http.Handler, error) {
	if deps.Analytics == nil {
		return nil, errMissingAnalytics
	}
	if deps.Authenticator == nil {
		return nil, errMissingAuthenticator
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := &dashboardHandler{
		analytics:     deps.Analytics,
		authenticator: deps.Authenticator,
		secureCookies: deps.SecureCookies,
		logger:        logger,
	}

	router := newEngine(logger)
	router.Use(corsMiddleware(deps.AllowOrigins))

	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)

	admin := router.Group("/api/admin")
	admin.Use(handler.authorizeSession)
	admin.GET("/summary", handler.handleSummary)
	admin.GET("/totals", handler.handleTotals)
	admin.GET("/totals/day", handler.handleTotalsForDay)
	admin.GET("/totals/range", handler.handleTotalsForRange)
	admin.GET("/compare", handler.handleCompare)
	admin.GET("/recent", handler.handleRecent)
	admin.GET("/dates", handler.handleDates)
	admin.GET("/feedback/last", handler.handleLastFeedback)
	admin.GET("/feedback/:id", handler.handleFeedbackByID)
	admin.GET("/tv", handler.handleTV)

	return router, nil
}

type dashboardHandler struct {
	analytics     Analytics
	authenticator *auth.Authenticator
	secureCookies bool
	logger        *zap.Logger
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type feedbackRowPayload struct {
	remote.Row
	DocID string `json:"docId"`
}

func newFeedbackRowPayload(row remote.Row) feedbackRowPayload {
	return feedbackRowPayload{Row: row, DocID: row.DocID()}
}

func (h *dashboardHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	session, err := h.authenticator.Login(c.Request.Context(), request.Email, request.Password)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	case errors.Is(err, auth.ErrNotAdmin):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_admin"})
		return
	case err != nil:
		h.logger.Error("admin login failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "login_unavailable"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName(), session.Token, int(session.ExpiresIn), "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, session)
}

func (h *dashboardHandler) handleLogout(c *gin.Context) {
	if claims, err := h.authenticator.Issuer().ValidateRequest(c.Request); err == nil {
		h.authenticator.Logout(claims.Email)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName(), "", -1, "/", "", h.secureCookies, true)
	c.Status(http.StatusNoContent)
}

// authorizeSession accepts the session cookie or a bearer token carrying the same JWT.
func (h *dashboardHandler) authorizeSession(c *gin.Context) {
	token := ""
	if cookie, err := c.Cookie(h.cookieName()); err == nil {
		token = cookie
	}
	if header := c.GetHeader("Authorization"); token == "" && strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	claims, err := h.authenticator.Authorize(token)
	switch {
	case errors.Is(err, auth.ErrNotAdmin):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not_admin"})
		return
	case err != nil:
		h.logger.Warn("session validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(adminEmailContextKey, claims.Email)
	c.Next()
}

func (h *dashboardHandler) handleSummary(c *gin.Context) {
	summary, err := h.analytics.PublicSummary(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *dashboardHandler) handleTotals(c *gin.Context) {
	totals, err := h.analytics.TotalsAllTime(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

func (h *dashboardHandler) handleTotalsForDay(c *gin.Context) {
	totals, err := h.analytics.TotalsForDay(c.Request.Context(), c.Query("date"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

func (h *dashboardHandler) handleTotalsForRange(c *gin.Context) {
	total, err := h.analytics.TotalsForRange(c.Request.Context(), c.Query("start"), c.Query("end"), c.Query("grade"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total})
}

func (h *dashboardHandler) handleCompare(c *gin.Context) {
	comparison, err := h.analytics.ComparePeriods(c.Request.Context(),
		c.Query("p1_start"), c.Query("p1_end"), c.Query("p2_start"), c.Query("p2_end"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comparison)
}

func (h *dashboardHandler) handleRecent(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	rows, err := h.analytics.RecentFeedback(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]feedbackRowPayload, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, newFeedbackRowPayload(row))
	}
	c.JSON(http.StatusOK, gin.H{"rows": payload})
}

func (h *dashboardHandler) handleDates(c *gin.Context) {
	maxScan, ok := queryInt(c, "max_scan")
	if !ok {
		return
	}
	dates, err := h.analytics.AvailableDates(c.Request.Context(), maxScan)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dates": dates})
}

func (h *dashboardHandler) handleLastFeedback(c *gin.Context) {
	row, found, err := h.analytics.LastFeedback(c.Request.Context())
	h.respondRow(c, row, found, err)
}

func (h *dashboardHandler) handleFeedbackByID(c *gin.Context) {
	row, found, err := h.analytics.FeedbackByID(c.Request.Context(), c.Param("id"))
	h.respondRow(c, row, found, err)
}

func (h *dashboardHandler) handleTV(c *gin.Context) {
	snapshot, err := h.analytics.TVSnapshot(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *dashboardHandler) respondRow(c *gin.Context, row remote.Row, found bool, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, newFeedbackRowPayload(row))
}

func (h *dashboardHandler) respondError(c *gin.Context, err error) {
	if errors.Is(err, analytics.ErrInvalidDate) || errors.Is(err, feedback.ErrInvalidGrade) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusBadGateway, gin.H{"error": "query_failed"})
}

func (h *dashboardHandler) cookieName() string {
	return h.authenticator.Issuer().CookieName()
}

// queryInt reads an optional non-negative integer parameter. It writes a 400 and
// returns false when the value is malformed.
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_" + name})
		return 0, false
	}
	return value, true
}
