package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"userbus/pkg/logging"
	"userbus/pkg/models"
)

type logLine struct {
	level      zapcore.Level
	msg        string
	invocation string
}

type recordingLogger struct {
	lines []logLine
}

func (l *recordingLogger) LogwCtx(ctx context.Context, level zapcore.Level, msg string, _ ...interface{}) {
	l.lines = append(l.lines, logLine{level: level, msg: msg, invocation: logging.GetInvocationID(ctx)})
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		header string
	}{
		{name: "uses caller id", header: "caller-123"},
		{name: "generates uuid", header: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen, fromCtx string
			router := gin.New()
			router.Use(RequestIDMiddleware())
			router.GET("/", func(c *gin.Context) {
				seen = RequestID(c)
				fromCtx = logging.GetInvocationID(c.Request.Context())
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, seen, fromCtx)
			assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
			if tt.header != "" {
				assert.Equal(t, tt.header, seen)
			} else {
				_, err := uuid.Parse(seen)
				assert.NoError(t, err)
			}
		})
	}
}

func TestRecoveryMiddleware_ReturnsAPIResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	log := &recordingLogger{}
	router.Use(RequestIDMiddleware(), RecoveryMiddleware(log))
	router.GET("/", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var resp models.APIResponse
	require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.NewAPIResponse(http.StatusInternalServerError, "req-1", models.MessageInternalServerError), resp)
	require.Len(t, log.lines, 1)
	assert.Equal(t, "req-1", log.lines[0].invocation)
}

func TestLoggerMiddleware_Levels(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		path      string
		status    int
		wantLines int
		wantLevel zapcore.Level
	}{
		{name: "accepted", path: "/submit", status: http.StatusAccepted, wantLines: 1, wantLevel: zapcore.InfoLevel},
		{name: "bad request", path: "/submit", status: http.StatusBadRequest, wantLines: 1, wantLevel: zapcore.WarnLevel},
		{name: "internal error", path: "/submit", status: http.StatusInternalServerError, wantLines: 1, wantLevel: zapcore.ErrorLevel},
		{name: "health probe is quiet", path: "/health", status: http.StatusOK, wantLines: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordingLogger{}
			router := gin.New()
			router.Use(RequestIDMiddleware(), LoggerMiddleware(log))
			router.GET(tt.path, func(c *gin.Context) { c.Status(tt.status) })

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set(RequestIDHeader, "inv-9")
			router.ServeHTTP(httptest.NewRecorder(), req)

			require.Len(t, log.lines, tt.wantLines)
			if tt.wantLines == 0 {
				return
			}
			assert.Equal(t, "HTTP Request", log.lines[0].msg)
			assert.Equal(t, tt.wantLevel, log.lines[0].level)
			assert.Equal(t, "inv-9", log.lines[0].invocation)
		})
	}
}
