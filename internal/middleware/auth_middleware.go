package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "beeper/backend/internal/errors"
	"beeper/backend/internal/service"
)

const (
	SubjectContextKey = "subject"

	// AccessTokenParam carries the token for GET requests from clients that
	// cannot set headers, such as a browser EventSource.
	AccessTokenParam = "access_token"
)

// Auth admits requests with a valid bearer token. When allowedSubjects is
// non-empty the token subject must be one of them.
func Auth(authService *service.AuthService, allowedSubjects []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedSubjects))
	for _, subject := range allowedSubjects {
		if subject = strings.TrimSpace(subject); subject != "" {
			allowed[subject] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		token, apiErr := requestToken(c)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		subject, apiErr := authService.ParseToken(token)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}
		if len(allowed) > 0 {
			if _, ok := allowed[subject]; !ok {
				writeError(c, apperrors.Forbidden("subject_not_allowed", "token subject may not control this scheduler"))
				return
			}
		}

		c.Set(SubjectContextKey, subject)
		c.Next()
	}
}

func requestToken(c *gin.Context) (string, *apperrors.APIError) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if c.Request.Method == http.MethodGet {
			if token := strings.TrimSpace(c.Query(AccessTokenParam)); token != "" {
				return token, nil
			}
		}
		return "", apperrors.Unauthorized("missing authorization header")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", apperrors.Unauthorized("invalid authorization format")
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", apperrors.Unauthorized("invalid authorization format")
	}
	return token, nil
}

// Subject returns the token subject of an authenticated request.
func Subject(c *gin.Context) string {
	return c.GetString(SubjectContextKey)
}

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	c.AbortWithStatusJSON(apiErr.Status, gin.H{
		"error": gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
			"details": apiErr.Details,
		},
	})
}
