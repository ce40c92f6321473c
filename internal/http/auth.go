package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"auth-service/internal/auth"
	"auth-service/internal/domain"
	"auth-service/internal/service"
)

const (
	msgAuthSucceeded = "Authentication successful"
	msgAuthFailed    = "Authentication failed"

	claimsKey = "claims"

	msgForbidden = "not allowed to act on this user"
)

type loginRequest struct {
	UserName string `json:"user_name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is the tri-state login outcome. Error is empty on success.
type LoginResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Error   string        `json:"error"`
	Token   string        `json:"token,omitempty"`
	User    *UserResponse `json:"user,omitempty"`
}

func loginFailure(reason string) LoginResponse {
	return LoginResponse{Success: false, Message: msgAuthFailed, Error: reason}
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, loginFailure("invalid request"))
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.Validate(ctx, req.UserName, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, loginFailure(service.ErrInvalidCredentials.Error()))
			return
		}
		h.log.WithError(err).Error("validate credentials")
		c.JSON(http.StatusInternalServerError, loginFailure("internal error"))
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.log.WithError(err).Error("issue token")
		c.JSON(http.StatusInternalServerError, loginFailure("internal error"))
		return
	}
	if _, err := h.users.UpdateJWT(ctx, user.UserName, token); err != nil {
		h.log.WithError(err).Error("store session token")
		c.JSON(http.StatusInternalServerError, loginFailure("internal error"))
		return
	}

	h.log.WithField("user", user.UserName).Info("login succeeded")
	resp := userToResponse(*user)
	c.JSON(http.StatusOK, LoginResponse{
		Success: true,
		Message: msgAuthSucceeded,
		Token:   token,
		User:    &resp,
	})
}

func (h *Handler) me(c *gin.Context) {
	claims := c.MustGet(claimsKey).(*auth.Claims)
	user, err := h.users.FindByUserName(c.Request.Context(), claims.UserName)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}
	c.JSON(http.StatusOK, userToResponse(*user))
}

func (h *Handler) logout(c *gin.Context) {
	claims := c.MustGet(claimsKey).(*auth.Claims)
	if _, err := h.users.UpdateJWT(c.Request.Context(), claims.UserName, ""); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// requireSession accepts a bearer token only while it is the one stored for its user.
func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := h.tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		stored, err := h.users.SessionToken(c.Request.Context(), claims.UserName)
		if err != nil && !errors.Is(err, service.ErrNotFound) {
			h.writeError(c, err)
			c.Abort()
			return
		}
		if err != nil || subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(raw))) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// requireOwnerOrAdmin lets a session act on :userName only when it belongs to
// that user or carries the ADMIN role. Must run after requireSession.
func (h *Handler) requireOwnerOrAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := c.MustGet(claimsKey).(*auth.Claims)
		if claims.UserName != c.Param("userName") && !isAdmin(claims) {
			h.log.WithField("user", claims.UserName).WithField("target", c.Param("userName")).Warn("cross-user request denied")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msgForbidden})
			return
		}
		c.Next()
	}
}

func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c.MustGet(claimsKey).(*auth.Claims)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func isAdmin(claims *auth.Claims) bool {
	return claims.Role == domain.RoleAdmin
}
