package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuitora/tuitora-gateway/internal/model"
)

type fakeSchools map[string]*model.School

func (f fakeSchools) GetByAPIKey(_ context.Context, key string) (*model.School, error) {
	if key == "explode" {
		return nil, errors.New("db down")
	}
	return f[key], nil
}

func runAPIKey(t *testing.T, key string) (*httptest.ResponseRecorder, echo.Context, bool) {
	t.Helper()
	rps := 5
	schools := fakeSchools{
		"good":      {ID: 3, Status: "active", RateLimitRPS: &rps},
		"suspended": {ID: 4, Status: "suspended"},
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/x", nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	err := APIKeyMiddleware(schools)(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})(c)
	require.NoError(t, err)
	return rec, c, called
}

func TestAPIKeyMiddleware(t *testing.T) {
	rec, c, called := runAPIKey(t, "good")
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	id, ok := SchoolIDFromCtx(c)
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)
	assert.Equal(t, 5, c.Get(ctxSchoolRPS))

	for key, code := range map[string]int{
		"":          http.StatusUnauthorized,
		"unknown":   http.StatusUnauthorized,
		"suspended": http.StatusUnauthorized,
		"explode":   http.StatusInternalServerError,
	} {
		rec, _, called := runAPIKey(t, key)
		assert.False(t, called, "key %q", key)
		assert.Equal(t, code, rec.Code, "key %q", key)
	}
}

func TestRateLimitMiddleware_NoRedisPassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.Set(ctxSchoolID, int64(1))

	called := false
	err := RateLimitMiddleware(RateLimitConfig{DefaultRPS: 1})(func(echo.Context) error {
		called = true
		return nil
	})(c)
	require.NoError(t, err)
	assert.True(t, called)
}
