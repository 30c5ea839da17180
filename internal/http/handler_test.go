//go:build !integration

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/guttosm/rental-manager/internal/cache"
	"github.com/guttosm/rental-manager/internal/domain/dto"
	"github.com/guttosm/rental-manager/internal/middleware"
	"github.com/guttosm/rental-manager/internal/monitor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockAdmin struct {
	mock.Mock
}

func (m *mockAdmin) Stats(ctx context.Context) dto.StatsResponse {
	return m.Called(ctx).Get(0).(dto.StatsResponse)
}

func (m *mockAdmin) InvalidateKey(key string) bool {
	return m.Called(key).Bool(0)
}

func (m *mockAdmin) InvalidatePrefix(prefix string) int {
	return m.Called(prefix).Int(0)
}

func (m *mockAdmin) Cleanup(ctx context.Context) (monitor.Sample, int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(monitor.Sample), args.Get(1).(int64), args.Error(2)
}

func setupRouter(t *testing.T, cfg RouterConfig) (*gin.Engine, *mockAdmin) {
	t.Helper()
	admin := new(mockAdmin)
	t.Cleanup(func() { admin.AssertExpectations(t) })
	return NewRouter(NewHandler(admin, nil), NewHealthHandler(), cfg), admin
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, into interface{}) dto.SuccessResponse {
	t.Helper()
	var resp dto.SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, into))
	return resp
}

func TestHandler_Stats(t *testing.T) {
	router, admin := setupRouter(t, DefaultRouterConfig())
	admin.On("Stats", mock.Anything).Return(dto.StatsResponse{
		QueryCache: cache.Metrics{Hits: 3, Misses: 1, Size: 1, Capacity: 100},
		Memory:     monitor.Stats{State: "running", Cleanups: 2},
		Extractor:  dto.LoaderStatus{Name: "extractor", Loaded: true},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats dto.StatsResponse
	resp := decodeData(t, w, &stats)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, int64(3), stats.QueryCache.Hits)
	assert.Equal(t, "running", stats.Memory.State)
	assert.True(t, stats.Extractor.Loaded)

	names := make([]string, 0, len(stats.ObjectPools))
	for _, p := range stats.ObjectPools {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "http_success_responses")
}

func TestHandler_InvalidateCache(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setup          func(*mockAdmin)
		expectedStatus int
		removed        int
	}{
		{
			name:           "by key",
			body:           `{"key":"sql:reservas:abc"}`,
			setup:          func(m *mockAdmin) { m.On("InvalidateKey", "sql:reservas:abc").Return(true) },
			expectedStatus: http.StatusOK,
			removed:        1,
		},
		{
			name:           "missing key",
			body:           `{"key":"sql:reservas:gone"}`,
			setup:          func(m *mockAdmin) { m.On("InvalidateKey", "sql:reservas:gone").Return(false) },
			expectedStatus: http.StatusOK,
			removed:        0,
		},
		{
			name:           "by prefix",
			body:           `{"prefix":"sql:reservas:"}`,
			setup:          func(m *mockAdmin) { m.On("InvalidatePrefix", "sql:reservas:").Return(4) },
			expectedStatus: http.StatusOK,
			removed:        4,
		},
		{
			name:           "both key and prefix",
			body:           `{"key":"a","prefix":"b"}`,
			setup:          func(*mockAdmin) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty body",
			body:           `{}`,
			setup:          func(*mockAdmin) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed json",
			body:           `{"key":`,
			setup:          func(*mockAdmin) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, admin := setupRouter(t, DefaultRouterConfig())
			tt.setup(admin)

			req := httptest.NewRequest(http.MethodPost, "/api/cache/invalidate", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus != http.StatusOK {
				var errResp dto.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
				assert.Equal(t, dto.ErrCodeInvalidRequest, errResp.Error)
				return
			}
			var got dto.InvalidateResponse
			decodeData(t, w, &got)
			assert.Equal(t, tt.removed, got.Removed)
		})
	}
}

func TestHandler_Cleanup(t *testing.T) {
	after := monitor.Sample{Timestamp: time.Now(), ResidentBytes: 100, LimitBytes: 1000, Usage: 0.1, Threshold: 0.8}

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{name: "runs cleanup", expectedStatus: http.StatusOK},
		{name: "monitor disabled", err: ErrUnavailable, expectedStatus: http.StatusServiceUnavailable, expectedCode: dto.ErrCodeUnavailable},
		{name: "timed out", err: context.DeadlineExceeded, expectedStatus: http.StatusGatewayTimeout, expectedCode: dto.ErrCodeTimeout},
		{name: "sampler failure", err: errors.New("read /proc: denied"), expectedStatus: http.StatusInternalServerError, expectedCode: dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, admin := setupRouter(t, DefaultRouterConfig())
			admin.On("Cleanup", mock.Anything).Return(after, int64(3), tt.err)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/memory/cleanup", nil))
			require.Equal(t, tt.expectedStatus, w.Code)

			if tt.err != nil {
				var errResp dto.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
				assert.Equal(t, tt.expectedCode, errResp.Error)
				return
			}
			var got dto.CleanupResponse
			decodeData(t, w, &got)
			assert.Equal(t, int64(3), got.Cleanups)
			assert.Equal(t, uint64(100), got.After.ResidentBytes)
		})
	}
}

func TestHandler_CleanupHonorsRequestTimeout(t *testing.T) {
	cfg := DefaultRouterConfig()
	cfg.RequestTimeout = 10 * time.Millisecond
	router, admin := setupRouter(t, cfg)
	admin.On("Cleanup", mock.Anything).
		Return(monitor.Sample{}, int64(0), context.DeadlineExceeded).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, ok := ctx.Deadline()
			assert.True(t, ok)
		})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/memory/cleanup", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestRouter_AuthProtectsAPIOnly(t *testing.T) {
	secret := []byte("admin-secret")
	cfg := DefaultRouterConfig()
	cfg.Auth = middleware.AuthConfig{Enabled: true, APIKeys: map[string]bool{"k1": true}, JWTSecret: secret}
	router, admin := setupRouter(t, cfg)
	admin.On("Stats", mock.Anything).Return(dto.StatsResponse{})

	token, err := middleware.IssueToken(secret, "ops", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name           string
		path           string
		header         string
		value          string
		expectedStatus int
	}{
		{name: "healthz is public", path: "/healthz", expectedStatus: http.StatusOK},
		{name: "readyz is public", path: "/readyz", expectedStatus: http.StatusOK},
		{name: "metrics is public", path: "/metrics", expectedStatus: http.StatusOK},
		{name: "stats without credentials", path: "/api/stats", expectedStatus: http.StatusUnauthorized},
		{name: "stats with api key", path: "/api/stats", header: middleware.APIKeyHeader, value: "k1", expectedStatus: http.StatusOK},
		{name: "stats with bearer token", path: "/api/stats", header: "Authorization", value: "Bearer " + token, expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestRouter_WithoutHandlerServesHealthOnly(t *testing.T) {
	router := NewRouter(nil, NewHealthHandler(), DefaultRouterConfig())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResponsePools_ReuseEnvelopes(t *testing.T) {
	pools := NewResponsePools(4)
	router := gin.New()
	router.GET("/ok", func(c *gin.Context) { NewResponseBuilder(c, pools).SuccessOK(gin.H{"n": 1}) })
	router.GET("/bad", func(c *gin.Context) { NewResponseBuilder(c, pools).Error(http.StatusBadRequest, "bad", nil) })

	for i := 0; i < 3; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Contains(t, w.Body.String(), `"message":"bad"`)

	stats := pools.Stats()
	assert.Equal(t, int64(1), stats[0].Created)
	assert.Equal(t, int64(2), stats[0].Reused)
	assert.Equal(t, 1, stats[1].Idle)

	assert.Equal(t, 2, pools.Drain())
	assert.Zero(t, pools.Stats()[0].Idle)
}
