package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coursehub/internal/apperr"
	"coursehub/internal/logger"
)

const genericErrorMessage = "Internal server error"

// StatusFor maps an error kind to its HTTP status. Conflicts are reported as
// 400 so clients treat them as user-actionable.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindConflict, apperr.KindVerification:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindPermission:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as {error, code}. Storage and internal failures
// are logged and, in release mode, replaced by a generic message.
func RespondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	code := apperr.CodeOf(err)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"kind", kind.String(),
			"error", err,
		)
		if gin.Mode() == gin.ReleaseMode {
			msg = genericErrorMessage
		}
	} else if e := (*apperr.Error)(nil); errors.As(err, &e) {
		msg = e.Message
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

func RespondBadRequest(c *gin.Context, code, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: code})
}

// IDParam parses a positive integer path parameter.
func IDParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		RespondBadRequest(c, "invalid_id", "Invalid "+name)
		return 0, false
	}
	return id, true
}
