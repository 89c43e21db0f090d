package insight

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"freightline/api_compass/internal/compass"
	"freightline/api_compass/pkg/auth"
	"freightline/api_compass/pkg/logging"
)

// Handler exposes the engine over HTTP.
type Handler struct {
	engine *Engine
	logger logging.Logger
}

func NewHandler(engine *Engine, logger logging.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Register mounts the query endpoint behind JWT auth.
func (h *Handler) Register(router *gin.Engine, jwtSecret []byte) {
	api := router.Group("/api/compass")
	api.Use(auth.JWTAuthMiddleware(jwtSecret))
	api.POST("/query", h.Query)
}

// Query handles POST /api/compass/query. The response is always 200 with a
// well-formed body; degraded runs report success=false so the dashboard can
// render them, not retry them.
func (h *Handler) Query(c *gin.Context) {
	var q Question
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		// The token decides the tenant; the body may not widen it.
		q.TenantID = identity.TenantID
		if q.UserID == "" {
			q.UserID = identity.UserID
		}
		ctx = compass.WithRole(ctx, identity.Role)
	}

	resp := h.engine.Answer(ctx, q)
	if !resp.Success && resp.Error != "" {
		h.logger.WithFields(logging.Fields{
			"tenant_id": q.TenantID,
			"mode":      resp.Metadata.Mode,
			"error":     resp.Error,
		}).Info("Query returned degraded response")
	}
	c.JSON(http.StatusOK, resp)
}
