package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ridelink/rideshare-backend/internal/apperrors"
)

// respondError writes a service error as JSON with the status code its
// kind maps to. Unknown error types surface as a plain 500 without
// leaking internals.
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus(), gin.H{
			"error":   string(appErr.Kind),
			"message": appErr.Message,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal",
		"message": "Internal server error",
	})
}
