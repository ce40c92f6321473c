package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"auth-service/internal/auth"
	"auth-service/internal/service"
)

const requestIDHeader = "X-Request-ID"

// Handler wires HTTP routes to domain services.
type Handler struct {
	users   service.UserService
	exports service.ExportService
	tokens  *auth.TokenIssuer
	log     logrus.FieldLogger
}

func NewHandler(users service.UserService, exports service.ExportService, tokens *auth.TokenIssuer, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		users:   users,
		exports: exports,
		tokens:  tokens,
		log:     log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestIDMiddleware(), h.loggingMiddleware(), corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})

		api.POST("/auth/login", h.login)
		api.POST("/users", h.createUser)

		session := api.Group("", h.requireSession())
		session.GET("/auth/me", h.me)
		session.POST("/auth/logout", h.logout)

		session.GET("/users", h.listUsers)
		session.GET("/users/:userName", h.getUserByName)

		owner := session.Group("/users/:userName", h.requireOwnerOrAdmin())
		owner.PATCH("", h.updateUser)
		owner.DELETE("", h.deleteUser)
		owner.POST("/recover", h.recoverPassword)
		owner.PUT("/password", h.changePassword)
		owner.PUT("/jwt", h.updateJWT)

		admin := session.Group("/exports", h.requireAdmin())
		admin.POST("", h.createExport)
		admin.GET("", h.listExports)
		admin.GET("/url", h.exportURL)
		admin.DELETE("", h.purgeExports)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, "+requestIDHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", requestIDHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

func (h *Handler) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := h.log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"request_id": c.GetString("request_id"),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}
