package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerRegistry_Check(t *testing.T) {
	ok := NewCheckerFunc("ok", func(context.Context) error { return nil })
	broken := NewCheckerFunc("broken", func(context.Context) error { return errors.New("down") })
	open := NewBreakerChecker("breaker", func() bool { return true })

	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{name: "no checkers", want: StatusHealthy},
		{name: "all healthy", checkers: []Checker{ok}, want: StatusHealthy},
		{name: "degraded", checkers: []Checker{ok, open}, want: StatusDegraded},
		{name: "unhealthy wins", checkers: []Checker{open, broken}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			for _, c := range tt.checkers {
				r.Register(c)
			}
			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, len(tt.checkers))
		})
	}
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewRedisChecker(client)
	require.NoError(t, checker.Check(context.Background()))

	mr.Close()
	assert.Error(t, checker.Check(context.Background()))
}

func TestKafkaChecker_NoBrokers(t *testing.T) {
	err := NewKafkaChecker(nil).Check(context.Background())
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		checker Checker
		want    int
	}{
		{name: "healthy", checker: NewCheckerFunc("ok", func(context.Context) error { return nil }), want: http.StatusOK},
		{name: "degraded still serves", checker: NewBreakerChecker("cb", func() bool { return true }), want: http.StatusOK},
		{name: "unhealthy", checker: NewCheckerFunc("db", func(context.Context) error { return errors.New("down") }), want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			r.Register(tt.checker)
			router := gin.New()
			router.GET("/health", Handler(r))

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
