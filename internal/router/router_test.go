package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/academy-api/internal/handler"
	"github.com/jwalitptl/academy-api/internal/middleware"
	"github.com/jwalitptl/academy-api/pkg/auth"
	"github.com/jwalitptl/academy-api/pkg/logger"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, middleware.StaffID(c).String())
	})
}

func newTestRouter(t *testing.T, dbErr error) (*gin.Engine, auth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	jwtSvc := auth.NewJWTService("secret", "academy-api", time.Hour)
	checks := map[string]handler.Pinger{
		"database": handler.PingerFunc(func(context.Context) error { return dbErr }),
	}
	r := NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		handler.NewHandler(checks, reg),
		[]Handler{pingHandler{}},
		logger.NewNop(),
		RouterConfig{
			RateLimitEnabled: true,
			RateLimit:        100,
			RateBurst:        100,
			CORSOrigins:      []string{"*"},
			Timeout:          5 * time.Second,
			MetricsPrefix:    "test",
			Registerer:       reg,
		},
	)
	r.Setup()
	return r.Engine(), jwtSvc
}

func do(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	engine, _ := newTestRouter(t, nil)
	assert.Equal(t, http.StatusOK, do(engine, httptest.NewRequest(http.MethodGet, "/health/live", nil)).Code)
	assert.Equal(t, http.StatusOK, do(engine, httptest.NewRequest(http.MethodGet, "/health/ready", nil)).Code)

	engine, _ = newTestRouter(t, errors.New("connection refused"))
	w := do(engine, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestRouter_ProtectedRoutes(t *testing.T) {
	engine, jwtSvc := newTestRouter(t, nil)

	w := do(engine, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	staffID := uuid.New()
	token, err := jwtSvc.GenerateAccessToken(staffID, auth.RoleStaff)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = do(engine, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, staffID.String(), w.Body.String())
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))

	guest, err := jwtSvc.GenerateAccessToken(staffID, "parent")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer "+guest)
	assert.Equal(t, http.StatusForbidden, do(engine, req).Code)
}

func TestRouter_Metrics(t *testing.T) {
	engine, _ := newTestRouter(t, nil)
	do(engine, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	w := do(engine, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `test_http_requests_total{method="GET",path="/health/live",status="200"} 1`))
}
