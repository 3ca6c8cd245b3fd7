package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "beeper/backend/internal/errors"
)

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	if apiErr == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "internal_error",
				"message": "internal server error",
			},
		})
		return
	}

	errorBody := gin.H{
		"code":    apiErr.Code,
		"message": apiErr.Message,
	}
	if apiErr.Details != nil {
		errorBody["details"] = apiErr.Details
	}

	c.JSON(apiErr.Status, gin.H{
		"error": errorBody,
	})
}

// writeServiceError maps an error from the scheduler to the error envelope.
// Errors that are not API errors are logged and reported as internal.
func writeServiceError(c *gin.Context, err error) {
	apiErr := apperrors.From(err)
	if apiErr.Status == http.StatusInternalServerError {
		log.Printf("[http] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	writeError(c, apiErr)
}
