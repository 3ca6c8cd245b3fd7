package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"beeper/backend/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

type tokenRequest struct {
	Secret  string `json:"secret"`
	Subject string `json:"subject"`
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "invalid_json",
				"message": "invalid request body",
			},
		})
		return
	}
	if req.Subject == "" {
		req.Subject = c.ClientIP()
	}

	result, apiErr := h.authService.Exchange(req.Secret, req.Subject)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusCreated, result)
}
