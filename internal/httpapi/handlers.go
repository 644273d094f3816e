package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rfol/finauth"
	"github.com/rfol/finauth/middleware"
)

type createUserRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password" binding:"required"`
}

type tokenRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordRequest struct {
	Token           string `json:"token" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

type profileResponse struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func toProfileResponse(p finauth.Profile) profileResponse {
	return profileResponse{
		ID:        p.ID,
		UUID:      p.UUID,
		Username:  p.Username,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
	}
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *handlers) health(c *gin.Context) {
	latency, err := h.auth.Ping(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "redis_latency_ms": latency.Milliseconds()})
}

func (h *handlers) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, finauth.ErrInvalidInput)
		return
	}

	p, err := h.auth.Register(c.Request.Context(), finauth.RegisterRequest{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProfileResponse(p))
}

func (h *handlers) me(c *gin.Context) {
	p, err := h.auth.Profile(c.Request.Context(), identity(c).Username)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProfileResponse(p))
}

func (h *handlers) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, finauth.ErrInvalidInput)
		return
	}

	err := h.auth.ChangePassword(c.Request.Context(), identity(c).Username,
		req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		abortWithError(c, err)
		return
	}
	detail(c, http.StatusOK, "Password updated successfully")
}

// token accepts the OAuth2 password form or JSON.
func (h *handlers) token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		abortWithError(c, finauth.ErrInvalidInput)
		return
	}

	res, err := h.auth.Login(c.Request.Context(), finauth.LoginRequest{
		Identifier: req.Username,
		Password:   req.Password,
		Mode:       finauth.AuthModeBearer,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: res.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   res.ExpiresAt,
	})
}

func (h *handlers) createSession(c *gin.Context) {
	token, _ := middleware.BearerToken(c.GetHeader("Authorization"))
	sid, err := h.auth.EstablishSession(c.Request.Context(), token)
	if err != nil {
		abortWithError(c, err)
		return
	}
	http.SetCookie(c.Writer, finauth.SessionCookie(sid, h.auth.SessionConfig()))
	detail(c, http.StatusOK, "Session created")
}

// logout is idempotent; a missing cookie still clears the client side.
func (h *handlers) logout(c *gin.Context) {
	cfg := h.auth.SessionConfig()
	if sid, err := c.Cookie(cfg.CookieName); err == nil && sid != "" {
		if err := h.auth.Logout(c.Request.Context(), sid); err != nil {
			abortWithError(c, err)
			return
		}
	}
	http.SetCookie(c.Writer, finauth.ClearSessionCookie(cfg))
	detail(c, http.StatusOK, "Logged out")
}

func (h *handlers) logoutAll(c *gin.Context) {
	n, err := h.auth.LogoutAll(c.Request.Context(), identity(c).Username)
	if err != nil {
		abortWithError(c, err)
		return
	}
	http.SetCookie(c.Writer, finauth.ClearSessionCookie(h.auth.SessionConfig()))
	c.JSON(http.StatusOK, gin.H{"detail": "Logged out everywhere", "sessions": n})
}

func (h *handlers) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, finauth.ErrInvalidInput)
		return
	}

	msg, err := h.auth.RequestPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		abortWithError(c, err)
		return
	}
	detail(c, http.StatusOK, msg)
}

func (h *handlers) validateResetToken(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		abortWithError(c, finauth.ErrInvalidOrExpiredResetToken)
		return
	}

	info, err := h.auth.ValidatePasswordResetToken(c.Request.Context(), token)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "email": info.Email})
}

func (h *handlers) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, finauth.ErrInvalidInput)
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Token, req.NewPassword, req.ConfirmPassword); err != nil {
		abortWithError(c, err)
		return
	}
	detail(c, http.StatusOK, "Password has been reset successfully")
}
