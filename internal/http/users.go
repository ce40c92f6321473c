package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"auth-service/internal/auth"
	"auth-service/internal/domain"
	"auth-service/internal/service"
)

type createUserRequest struct {
	UserName string `json:"user_name" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
	LastName string `json:"last_name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	LastName *string `json:"last_name"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

type updateJWTRequest struct {
	Token string `json:"token"`
}

// UserResponse is the public shape of a user. It never carries secrets.
type UserResponse struct {
	ID        int64     `json:"id"`
	UserName  string    `json:"user_name"`
	Name      string    `json:"name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func userToResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		UserName:  u.UserName,
		Name:      u.Name,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role.String(),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (h *Handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// self-registration always yields the default role
	if role := domain.Role(req.Role); role != "" && role != domain.DefaultRole {
		c.JSON(http.StatusForbidden, gin.H{"error": "only an admin can assign roles"})
		return
	}

	user, err := h.users.Create(c.Request.Context(), service.CreateUserInput{
		UserName: req.UserName,
		Password: req.Password,
		Name:     req.Name,
		LastName: req.LastName,
		Email:    req.Email,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, userToResponse(*user))
}

// listUsers returns every user, or a single one when ?id= is given.
func (h *Handler) listUsers(c *gin.Context) {
	if idStr, ok := c.GetQuery("id"); ok {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		user, err := h.users.FindOne(c.Request.Context(), id)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, userToResponse(*user))
		return
	}

	users, err := h.users.FindAll(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]UserResponse, len(users))
	for i := range users {
		resp[i] = userToResponse(users[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getUserByName(c *gin.Context) {
	user, err := h.users.FindByUserName(c.Request.Context(), c.Param("userName"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": service.ErrNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, userToResponse(*user))
}

func (h *Handler) updateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := service.UpdateUserInput{
		Name:     req.Name,
		LastName: req.LastName,
		Email:    req.Email,
	}
	if req.Role != nil {
		if !isAdmin(c.MustGet(claimsKey).(*auth.Claims)) {
			c.JSON(http.StatusForbidden, gin.H{"error": "only an admin can assign roles"})
			return
		}
		role := domain.Role(*req.Role)
		in.Role = &role
	}

	user, err := h.users.Update(c.Request.Context(), c.Param("userName"), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userToResponse(*user))
}

func (h *Handler) deleteUser(c *gin.Context) {
	user, err := h.users.Delete(c.Request.Context(), c.Param("userName"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userToResponse(*user))
}

func (h *Handler) recoverPassword(c *gin.Context) {
	userName := c.Param("userName")
	secret, err := h.users.RecoverPassword(c.Request.Context(), userName)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"user_name": userName, "password": secret})
}

func (h *Handler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.users.ChangePassword(c.Request.Context(), c.Param("userName"), req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) updateJWT(c *gin.Context) {
	var req updateJWTRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.UpdateJWT(c.Request.Context(), c.Param("userName"), req.Token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userToResponse(*user))
}
