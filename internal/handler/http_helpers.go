package handler

import (
	"errors"
	"net/http"

	"github.com/contentgate/internal/db"
	"github.com/contentgate/internal/gateway"
	"github.com/contentgate/internal/service"
	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// errorStatus maps service, store and gateway errors onto HTTP status codes
// and a message safe to show to the caller.
func errorStatus(err error, fallback string) (int, string) {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Message
	case errors.Is(err, service.ErrInvalidCredential):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, service.ErrContentNotFound):
		return http.StatusNotFound, "content not found"
	case errors.Is(err, service.ErrAttemptNotFound):
		return http.StatusNotFound, "verification expired, please start again"
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, "verification is not at this step"
	case errors.Is(err, db.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "storage is unavailable, please retry"
	case errors.Is(err, service.ErrChannelResolution):
		// 频道策略配置有误，需要管理员处理，而不是 YouTube 不可用
		return http.StatusInternalServerError, "channel verification is misconfigured, please contact the site owner"
	case errors.Is(err, gateway.ErrChannelNotFound):
		return http.StatusNotFound, "no YouTube channel matches this URL"
	case errors.Is(err, gateway.ErrChannelLookup),
		errors.Is(err, gateway.ErrAuthExchange),
		errors.Is(err, gateway.ErrProfileFetch),
		errors.Is(err, gateway.ErrSubscriptionQuery):
		return http.StatusBadGateway, "YouTube could not be reached, please retry"
	default:
		return http.StatusInternalServerError, fallback
	}
}

func respondServiceError(c *gin.Context, err error, fallback string) {
	status, message := errorStatus(err, fallback)
	if status >= http.StatusInternalServerError {
		c.Error(err)
	}
	respondError(c, status, message)
}
