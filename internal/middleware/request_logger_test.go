package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buffer bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buffer)
	t.Cleanup(func() { log.Logger = previous })
	return &buffer
}

func TestRequestLoggerRecordsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buffer := captureLogs(t)

	engine := gin.New()
	engine.Use(RequestLogger())
	engine.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &line))
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, "/health", line["path"])
	assert.EqualValues(t, 200, line["status"])
	assert.EqualValues(t, 2, line["bytes"])
	assert.Equal(t, "req-123", line["request_id"])
	assert.Contains(t, line, "latency")
	assert.Equal(t, "info", line["level"])
}

func TestRequestLoggerGeneratesIDAndWarnsOnClientErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buffer := captureLogs(t)

	engine := gin.New()
	engine.Use(RequestLogger())
	engine.GET("/missing", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.EqualValues(t, 404, line["status"])
}

func TestBearerTokenSources(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name    string
		header  string
		query   string
		want    string
		wantErr bool
	}{
		{name: "header", header: "Bearer abc", want: "abc"},
		{name: "query fallback", query: "?access_token=xyz", want: "xyz"},
		{name: "header wins", header: "Bearer abc", query: "?access_token=xyz", want: "abc"},
		{name: "missing", wantErr: true},
		{name: "wrong scheme", header: "Basic abc", wantErr: true},
		{name: "empty bearer", header: "Bearer   ", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/api/events"+tc.query, nil)
			if tc.header != "" {
				c.Request.Header.Set("Authorization", tc.header)
			}

			token, apiErr := bearerToken(c)
			if tc.wantErr {
				require.NotNil(t, apiErr)
				assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
				return
			}
			require.Nil(t, apiErr)
			assert.Equal(t, tc.want, token)
		})
	}
}
