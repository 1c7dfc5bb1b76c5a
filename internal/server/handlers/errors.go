package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
)

const (
	actorHeader = "X-Actor"
	roleHeader  = "X-Role"
	adminRole   = "admin"
	actorKey    = "actor"
)

// statusFor maps a domain error onto an HTTP status and a user-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, models.ErrInvalidBill), errors.Is(err, models.ErrInvalidFood):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, models.ErrUnknownChannel):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrMutationLocked):
		return http.StatusConflict, "a print job is still in progress for this bill"
	case errors.Is(err, models.ErrRevisionConflict):
		return http.StatusConflict, "the bill was changed by someone else, reload and try again"
	case errors.Is(err, models.ErrConfirmationRequired):
		return http.StatusPreconditionRequired, "confirm the print with ?confirm=true"
	case errors.Is(err, models.ErrWriteFailed):
		return http.StatusBadGateway, "the change could not be saved, please retry"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// RequireActor rejects requests that do not identify the acting user.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetHeader(actorHeader)
		if actor == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + actorHeader + " header"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireAdmin rejects requests whose role is not admin.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(roleHeader) != adminRole {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) string {
	return c.GetString(actorKey)
}
