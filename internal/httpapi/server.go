// Package httpapi exposes event pages, profiles and payment webhooks over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/eventcreation"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/eventpage"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/payment"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey        = "auth_claims"
	signatureHeader         = "X-Webhook-Signature"
	recentTransactionsLimit = 10
	unmatchedRoute          = "unmatched"
	defaultRequestTimeout   = 5 * time.Second
	maxWebhookBodyBytes     = 1 << 20
)

var ErrInvalidServerConfig = errors.New("invalid http server config")

// Ledger is the subset of ledger.Service used by the HTTP handlers.
type Ledger interface {
	EnsureProfile(ctx context.Context, userID ledger.UserID, email string) (ledger.UserProfile, error)
	ListTransactions(ctx context.Context, userID ledger.UserID, limit int) ([]ledger.Transaction, error)
}

// EventService is the subset of eventpage.Service used by the HTTP handlers.
type EventService interface {
	Get(ctx context.Context, eventID string, userID string) (eventpage.Event, error)
	GetBySlug(ctx context.Context, slug string) (eventpage.Event, error)
	List(ctx context.Context, userID string) ([]eventpage.Event, error)
	Update(ctx context.Context, eventID string, userID string, input eventpage.Input) (eventpage.Event, error)
	Delete(ctx context.Context, eventID string, userID string) error
}

// EventCreator creates an event and charges for it.
type EventCreator interface {
	CreateEventWithCredit(ctx context.Context, userID ledger.UserID, email string, input eventpage.Input) (eventpage.Event, error)
}

// PaymentCompleter applies verified payments.
type PaymentCompleter interface {
	Complete(ctx context.Context, completion payment.Completion) (payment.Result, error)
}

// RequestObserver records per-request metrics.
type RequestObserver interface {
	ObserveRequest(method string, route string, status int, elapsed time.Duration)
}

// Config carries the HTTP-level settings.
type Config struct {
	AllowedOrigins []string
	WebhookSecret  string
	RequestTimeout time.Duration
}

// Dependencies are the collaborators the router dispatches to.
type Dependencies struct {
	Ledger           Ledger
	Events           EventService
	Creator          EventCreator
	Payments         PaymentCompleter
	SessionValidator *sessionvalidator.Validator
	RequestObserver  RequestObserver
	MetricsHandler   http.Handler
	Logger           *zap.Logger
}

type httpHandler struct {
	cfg      Config
	ledger   Ledger
	events   EventService
	creator  EventCreator
	payments PaymentCompleter
	logger   *zap.Logger
}

// NewRouter builds the gin engine serving every route.
func NewRouter(cfg Config, deps Dependencies) (*gin.Engine, error) {
	if deps.Ledger == nil || deps.Events == nil || deps.Creator == nil || deps.Payments == nil {
		return nil, fmt.Errorf("%w: ledger, events, creator and payments are required", ErrInvalidServerConfig)
	}
	if deps.SessionValidator == nil {
		return nil, fmt.Errorf("%w: session validator is required", ErrInvalidServerConfig)
	}
	if len(cfg.WebhookSecret) == 0 {
		return nil, fmt.Errorf("%w: webhook secret is required", ErrInvalidServerConfig)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{
		cfg:      cfg,
		ledger:   deps.Ledger,
		events:   deps.Events,
		creator:  deps.Creator,
		payments: deps.Payments,
		logger:   logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestMetrics(deps.RequestObserver))
	router.Use(requestTimeout(cfg.RequestTimeout))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	public := router.Group("/api")
	public.GET("/templates", handler.handleTemplates)
	public.GET("/plans", handler.handlePlans)
	public.GET("/public/events/:slug", handler.handlePublicEvent)

	api := router.Group("/api")
	api.Use(deps.SessionValidator.GinMiddleware(claimsContextKey))
	api.GET("/profile", handler.handleProfile)
	api.GET("/events", handler.handleListEvents)
	api.POST("/events", handler.handleCreateEvent)
	api.GET("/events/:id", handler.handleGetEvent)
	api.PUT("/events/:id", handler.handleUpdateEvent)
	api.DELETE("/events/:id", handler.handleDeleteEvent)

	webhooks := router.Group("/webhooks")
	webhooks.Use(verifySignature(cfg.WebhookSecret))
	webhooks.POST("/identity", handler.handleIdentityWebhook)
	webhooks.POST("/payment", handler.handlePaymentWebhook)

	return router, nil
}

func requestMetrics(observer RequestObserver) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if observer == nil {
			ctx.Next()
			return
		}
		started := time.Now()
		ctx.Next()
		route := ctx.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		observer.ObserveRequest(ctx.Request.Method, route, ctx.Writer.Status(), time.Since(started))
	}
}

func requestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), timeout)
		defer cancel()
		ctx.Request = ctx.Request.WithContext(requestCtx)
		ctx.Next()
	}
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

// sessionUser resolves the authenticated user or writes a 401.
func (handler *httpHandler) sessionUser(ctx *gin.Context) (ledger.UserID, string, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return ledger.UserID{}, "", false
	}
	userID, err := ledger.NewUserID(claims.GetUserID())
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "session has no user"))
		return ledger.UserID{}, "", false
	}
	return userID, claims.GetUserEmail(), true
}

// respondError maps domain errors onto status codes. Unknown errors never leak their text.
func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, eventcreation.ErrCompensationFailed):
		handler.logger.Error("request failed", zap.String("operation", operation), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "request failed"))
	case errors.Is(err, ledger.ErrInsufficientCredits):
		ctx.JSON(http.StatusPaymentRequired, errorResponse("insufficient_credits", "not enough event credits"))
	case errors.Is(err, eventpage.ErrEventNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", "event not found"))
	case isValidationError(err):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", err.Error()))
	default:
		fields := []zap.Field{zap.String("operation", operation), zap.Error(err)}
		if claims := getClaims(ctx); claims != nil {
			fields = append(fields, zap.String("user_id", claims.GetUserID()))
		}
		handler.logger.Error("request failed", fields...)
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "request failed"))
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		eventpage.ErrInvalidTitle,
		eventpage.ErrUnknownTemplate,
		eventpage.ErrInvalidDateRange,
		eventpage.ErrInvalidCustomStyles,
		eventpage.ErrInvalidOwner,
		ledger.ErrInvalidUserID,
		ledger.ErrInvalidCredits,
		payment.ErrInvalidCompletion,
		payment.ErrUnknownPlan,
		payment.ErrPlanMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
