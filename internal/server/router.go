package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sunridgelabs/fieldops/backend/internal/auth"
	"github.com/sunridgelabs/fieldops/backend/internal/leaderboard"
	"github.com/sunridgelabs/fieldops/backend/internal/metrics"
	"github.com/sunridgelabs/fieldops/backend/internal/realtime"
	"github.com/sunridgelabs/fieldops/backend/internal/syncer"
	"go.uber.org/zap"
)

const callerContextKey = "fieldops_caller"

var (
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingScheduler    = errors.New("scheduler dependency required")
	errMissingOrchestrator = errors.New("orchestrator dependency required")
	errMissingLeaderboard  = errors.New("leaderboard service dependency required")
	errMissingRegistry     = errors.New("connection registry dependency required")
	errMissingHub          = errors.New("broadcast hub dependency required")
	errInvalidAuth         = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates the backend's bearer tokens.
type TokenManager interface {
	IssueToken(ctx context.Context, caller auth.Caller) (string, int64, error)
	ValidateToken(token string) (auth.Caller, error)
}

// Dependencies collects the collaborators wired into the HTTP handler.
type Dependencies struct {
	TokenManager TokenManager
	Scheduler    *syncer.Scheduler
	Orchestrator *syncer.Orchestrator
	Leaderboard  *leaderboard.Service
	Registry     *realtime.Registry
	Hub          *realtime.Hub
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	Clock        func() time.Time
}

// NewHTTPHandler builds the gin router serving the API surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Scheduler == nil {
		return nil, errMissingScheduler
	}
	if deps.Orchestrator == nil {
		return nil, errMissingOrchestrator
	}
	if deps.Leaderboard == nil {
		return nil, errMissingLeaderboard
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.Hub == nil {
		return nil, errMissingHub
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:       deps.TokenManager,
		scheduler:    deps.Scheduler,
		orchestrator: deps.Orchestrator,
		leaderboard:  deps.Leaderboard,
		registry:     deps.Registry,
		hub:          deps.Hub,
		metrics:      deps.Metrics,
		logger:       logger,
		clock:        clock,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.POST("/auth/token", handler.handleIssueToken)
	router.GET("/ws", handler.handleWebsocket)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/sync/manual", handler.handleManualSync)
	protected.POST("/sync/signups", handler.handleSignupSync)
	protected.GET("/sync/status", handler.handleSyncStatus)
	protected.GET("/sync/runs", handler.handleSyncRuns)

	contests := protected.Group("/leaderboard")
	contests.GET("/competitions", handler.handleListCompetitions)
	contests.POST("/competitions", handler.handleCreateCompetition)
	contests.GET("/competitions/:id", handler.handleGetCompetition)
	contests.POST("/competitions/:id/join", handler.handleJoinCompetition)
	contests.GET("/competitions/:id/standings", handler.handleStandings)
	contests.GET("/competitions/:id/status", handler.handleCompetitionStatus)
	contests.GET("/bonus-tiers", handler.handleListBonusTiers)
	contests.POST("/bonus-tiers", handler.handleCreateBonusTier)

	return router, nil
}

type httpHandler struct {
	tokens       TokenManager
	scheduler    *syncer.Scheduler
	orchestrator *syncer.Orchestrator
	leaderboard  *leaderboard.Service
	registry     *realtime.Registry
	hub          *realtime.Hub
	metrics      *metrics.Metrics
	logger       *zap.Logger
	clock        func() time.Time
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type tokenRequestPayload struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
	Role    string `json:"role"`
}

func (h *httpHandler) handleIssueToken(c *gin.Context) {
	var request tokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Subject) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	role := request.Role
	if role == "" {
		role = auth.RoleEmployee
	}
	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), auth.Caller{
		Subject: strings.TrimSpace(request.Subject),
		Name:    request.Name,
		Role:    role,
	})
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"expires_in":   expiresIn,
		"token_type":   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuth.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuth.Error()})
		return
	}
	caller, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(callerContextKey, caller)
	c.Next()
}

func (h *httpHandler) currentCaller(c *gin.Context) auth.Caller {
	value, ok := c.Get(callerContextKey)
	if !ok {
		return auth.Caller{}
	}
	caller, _ := value.(auth.Caller)
	return caller
}
