package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "pomodoro/sessions/internal/errors"
	"pomodoro/sessions/internal/service"
)

// AuthHandler exchanges credentials for the bearer token the session routes require.
type AuthHandler struct {
	auth *service.AuthService
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type credentialFlow func(ctx context.Context, email, password string) (*service.AuthResult, *apperrors.APIError)

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

func (h *AuthHandler) Register(c *gin.Context) {
	h.exchange(c, http.StatusCreated, h.auth.Register)
}

func (h *AuthHandler) Login(c *gin.Context) {
	h.exchange(c, http.StatusOK, h.auth.Login)
}

func (h *AuthHandler) exchange(c *gin.Context, status int, flow credentialFlow) {
	var creds credentials
	if !bindJSON(c, &creds, false) {
		return
	}
	result, apiErr := flow(c.Request.Context(), creds.Email, creds.Password)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(status, result)
}
