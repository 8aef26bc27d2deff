package publisher

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userbus/internal/archive"
	"userbus/internal/constants"
	"userbus/internal/logger"
	"userbus/pkg/middleware"
	"userbus/pkg/models"
)

func newTestRouter(producer *fakeProducer, maxBody int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(producer, archive.Nop())
	h := NewHandler(svc, logger.NopLogger(), "", maxBody)

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	h.RegisterRoutes(router)
	return router
}

func TestSubmitBatch(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		maxBody      int64
		requestID    string
		wantStatus   int
		wantMessage  string
		wantEnqueued int
	}{
		{
			name:         "two units accepted",
			body:         twoUnitBatch,
			requestID:    "req-1",
			wantStatus:   http.StatusAccepted,
			wantMessage:  models.MessageAccepted,
			wantEnqueued: 2,
		},
		{
			name:        "empty data rejected",
			body:        `{"id":"B1","data":[]}`,
			requestID:   "req-2",
			wantStatus:  http.StatusBadRequest,
			wantMessage: models.MessageInvalidRequestBody,
		},
		{
			name:        "repeated entity id rejected",
			body:        `{"id":"B1","data":[{"entityId":1},{"entityId":1}]}`,
			requestID:   "req-3",
			wantStatus:  http.StatusBadRequest,
			wantMessage: models.MessageInvalidRequestBody,
		},
		{
			name:        "malformed json rejected",
			body:        `{"id":`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: models.MessageInvalidRequestBody,
		},
		{
			name:        "body over limit",
			body:        twoUnitBatch,
			maxBody:     16,
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantMessage: models.MessageInvalidRequestBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer := &fakeProducer{}
			router := newTestRouter(producer, tt.maxBody)

			req := httptest.NewRequest(http.MethodPost, constants.DefaultSubmissionRoute, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.requestID != "" {
				req.Header.Set(middleware.RequestIDHeader, tt.requestID)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)

			var resp models.APIResponse
			require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantMessage, resp.Message)
			if tt.requestID != "" {
				assert.Equal(t, tt.requestID, resp.ActivityID)
			} else {
				_, err := uuid.Parse(resp.ActivityID)
				assert.NoError(t, err)
			}
			assert.Len(t, producer.messages, tt.wantEnqueued)
		})
	}
}
