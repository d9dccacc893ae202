package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/healthylife/internal/auth"
	"github.com/MarcoPoloResearchLab/healthylife/internal/metrics"
	"github.com/MarcoPoloResearchLab/healthylife/internal/notes"
	"github.com/MarcoPoloResearchLab/healthylife/internal/progress"
	"github.com/MarcoPoloResearchLab/healthylife/internal/routines"
	"github.com/MarcoPoloResearchLab/healthylife/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDContextKey = "healthylife_user_id"

var (
	errMissingUsersService    = errors.New("users service dependency required")
	errMissingRoutinesService = errors.New("routines service dependency required")
	errMissingNotesService    = errors.New("notes service dependency required")
	errMissingProgressService = errors.New("progress service dependency required")
	errMissingTokenIssuer     = errors.New("token issuer dependency required")
	errMissingSessionChecker  = errors.New("session validator dependency required")
)

// SessionValidator authenticates requests carrying a session token.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

// SessionIssuer mints session tokens after login or registration.
type SessionIssuer interface {
	Issue(user auth.SessionUser) (string, time.Time, error)
}

// RateLimitConfig bounds requests per client IP. A zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type Dependencies struct {
	Users          *users.Service
	Routines       *routines.Service
	Notes          *notes.Service
	Progress       *progress.Service
	Tokens         SessionIssuer
	Sessions       SessionValidator
	Realtime       *RealtimeDispatcher
	Metrics        *metrics.Recorder
	Logger         *zap.Logger
	AllowedOrigins []string
	RateLimit      RateLimitConfig
	SecureCookie   bool
	Clock          func() time.Time
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Users == nil:
		return nil, errMissingUsersService
	case deps.Routines == nil:
		return nil, errMissingRoutinesService
	case deps.Notes == nil:
		return nil, errMissingNotesService
	case deps.Progress == nil:
		return nil, errMissingProgressService
	case deps.Tokens == nil:
		return nil, errMissingTokenIssuer
	case deps.Sessions == nil:
		return nil, errMissingSessionChecker
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}
	if len(deps.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(deps.AllowedOrigins))
	}
	if deps.RateLimit.RPS > 0 {
		router.Use(newIPRateLimiter(deps.RateLimit, clock).middleware())
	}

	handler := &httpHandler{
		users:        deps.Users,
		routines:     deps.Routines,
		notes:        deps.Notes,
		progress:     deps.Progress,
		tokens:       deps.Tokens,
		sessions:     deps.Sessions,
		realtime:     realtime,
		metrics:      deps.Metrics,
		logger:       logger,
		secureCookie: deps.SecureCookie,
		clock:        clock,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.POST("/register", handler.handleRegister)
	router.POST("/login", handler.handleLogin)
	router.GET("/logout", handler.handleLogout)
	router.POST("/logout", handler.handleLogout)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.POST("/rutina/guardar", handler.handleRoutineCreate)
	protected.GET("/historial-rutinas-data", handler.handleRoutineList)
	protected.GET("/rutina/:id", handler.handleRoutineGet)
	protected.POST("/historial/eliminar/:id", handler.handleRoutineDelete)
	protected.POST("/rutina/completar/:id", handler.handleRoutineComplete)

	protected.GET("/notas/listar", handler.handleNoteList)
	protected.POST("/notas/crear", handler.handleNoteCreate)
	protected.GET("/notas/obtener/:id", handler.handleNoteGet)
	protected.PUT("/notas/editar/:id", handler.handleNoteUpdate)
	protected.DELETE("/notas/eliminar/:id", handler.handleNoteDelete)

	protected.GET("/perfil/datos", handler.handleProfile)
	protected.POST("/perfil/editar", handler.handleProfileUpdate)

	protected.GET("/racha/datos", handler.handleStreak)
	protected.POST("/racha/marcar-dia", handler.handleMarkDay)
	protected.GET("/racha/stream", handler.handleStreakStream)

	protected.DELETE("/eliminar-cuenta", handler.handleAccountDelete)

	return router, nil
}

type httpHandler struct {
	users        *users.Service
	routines     *routines.Service
	notes        *notes.Service
	progress     *progress.Service
	tokens       SessionIssuer
	sessions     SessionValidator
	realtime     *RealtimeDispatcher
	metrics      *metrics.Recorder
	logger       *zap.Logger
	secureCookie bool
	clock        func() time.Time
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// corsMiddleware allows credentialed requests only from an explicit origin
// list. A "*" entry opens the API to every origin without credentials.
func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			config.AllowAllOrigins = true
			return cors.New(config)
		}
	}
	config.AllowOrigins = origins
	config.AllowCredentials = true
	return cors.New(config)
}
