package middleware

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/internal/repository"
	"go.uber.org/zap"
)

const (
	ctxSchoolID  = "school_id"
	ctxSchoolRPS = "school_rps"
)

// SchoolIDFromCtx extracts the tenant set by APIKeyMiddleware.
func SchoolIDFromCtx(c echo.Context) (int64, bool) {
	id, ok := c.Get(ctxSchoolID).(int64)
	return id, ok && id > 0
}

// APIKeyMiddleware authenticates a school by its X-API-Key header. Suspended
// schools are rejected like unknown keys.
func APIKeyMiddleware(schools repository.SchoolsRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			s, err := schools.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				logger.Log.Error("api key lookup failed", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if s == nil || s.Status != "active" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set(ctxSchoolID, s.ID)
			if s.RateLimitRPS != nil {
				c.Set(ctxSchoolRPS, *s.RateLimitRPS)
			}
			return next(c)
		}
	}
}
