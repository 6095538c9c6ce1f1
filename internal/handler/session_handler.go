package handler

import (
	"strconv"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/application"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/auth"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/middleware"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/response"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/surface"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionHandler handles HTTP and websocket requests for map sessions.
type SessionHandler struct {
	service  *application.SessionService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(service *application.SessionService, allowedOrigins []string, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		service:  service,
		upgrader: surface.NewUpgrader(allowedOrigins),
		logger:   logger,
	}
}

// RegisterRoutes registers all session routes on the given router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)

	sessions := r.Group("/api/v1/sessions")
	sessions.Use(authMW)
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id", h.GetSession)
		sessions.POST("/:id/destination", h.SelectDestination)
		sessions.POST("/:id/origin", h.SetOrigin)
		sessions.POST("/:id/route", h.BuildRoute)
		sessions.POST("/:id/locate", h.RetryLocation)
		sessions.DELETE("/:id", h.CloseSession)
		sessions.GET("/:id/ws", h.ServeMap)
	}
}

// CreateSession handles POST /api/v1/sessions.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req application.CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	result, err := h.service.CreateSession(c.Request.Context(), ownerID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// GetSession handles GET /api/v1/sessions/:id.
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	result, err := h.service.GetSession(c.Request.Context(), sessionID, ownerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// SelectDestination handles POST /api/v1/sessions/:id/destination.
func (h *SessionHandler) SelectDestination(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	var req application.CoordinateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.SelectDestination(c.Request.Context(), sessionID, ownerID(c), req.Coordinate())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// SetOrigin handles POST /api/v1/sessions/:id/origin.
func (h *SessionHandler) SetOrigin(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	var req application.CoordinateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.SetOrigin(c.Request.Context(), sessionID, ownerID(c), req.Coordinate())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// BuildRoute handles POST /api/v1/sessions/:id/route.
func (h *SessionHandler) BuildRoute(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	result, err := h.service.BuildRoute(c.Request.Context(), sessionID, ownerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// RetryLocation handles POST /api/v1/sessions/:id/locate.
func (h *SessionHandler) RetryLocation(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	result, err := h.service.RetryLocation(c.Request.Context(), sessionID, ownerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// CloseSession handles DELETE /api/v1/sessions/:id.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	if err := h.service.CloseSession(c.Request.Context(), sessionID, ownerID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ServeMap handles GET /api/v1/sessions/:id/ws. The connection becomes the
// session's map surface until it closes.
func (h *SessionHandler) ServeMap(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	owner := ownerID(c)

	if _, err := h.service.GetSession(c.Request.Context(), sessionID, owner); err != nil {
		response.Error(c, err)
		return
	}

	zoom := h.service.DefaultZoom()
	if v := c.Query("zoom"); v != "" {
		z, err := strconv.Atoi(v)
		if err != nil || z < 0 {
			response.BadRequest(c, "invalid zoom")
			return
		}
		zoom = z
	}
	geolocation := c.Query("geolocation") != "false"

	client, err := surface.Upgrade(h.upgrader, c.Writer, c.Request, zoom, h.logger)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
		return
	}

	if err := h.service.AttachClient(c.Request.Context(), sessionID, owner, client, geolocation); err != nil {
		h.logger.Warn("failed to attach map client",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
		client.Close()
		return
	}

	client.Serve()
	h.service.DetachClient(sessionID, client)
}

func ownerID(c *gin.Context) uuid.UUID {
	if id, ok := middleware.GetUserID(c); ok {
		return id
	}
	return uuid.Nil
}

func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}
