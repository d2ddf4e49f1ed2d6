package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/prisma/models"
)

// respondError writes err as an ErrorResponse with the status matching its code.
func respondError(c *gin.Context, err error) {
	code := models.CodeOf(err)
	msg := err.Error()
	if e, ok := err.(*models.Error); ok {
		msg = e.Message
	}
	c.JSON(mapErrorToStatus(code), models.ErrorResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: code, Message: models.Truncate(msg, models.MaxErrorLength)},
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(code string) int {
	switch code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeNetwork:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput, models.ErrCodeNoContent:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeContextOverflow:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeDependencyMissing, models.ErrCodeWeightsMissing, models.ErrCodeModelNotLoaded:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
