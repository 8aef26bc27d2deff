package publisher

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"userbus/internal/constants"
	"userbus/internal/logger"
	apperrors "userbus/pkg/errors"
	"userbus/pkg/middleware"
)

type Handler struct {
	Service      *Service
	Logger       logger.Logger
	Route        string
	MaxBodyBytes int64
}

func NewHandler(service *Service, log logger.Logger, route string, maxBodyBytes int64) *Handler {
	if route == "" {
		route = constants.DefaultSubmissionRoute
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = constants.DefaultMaxBodyBytes
	}
	return &Handler{
		Service:      service,
		Logger:       log,
		Route:        route,
		MaxBodyBytes: maxBodyBytes,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRoutes) {
	router.POST(h.Route, h.SubmitBatch)
}

// SubmitBatch godoc
// @Summary      Submit a batch of user update events
// @Description  Archives the raw body, validates it and enqueues one message per unit event
// @Tags         userupdated
// @Accept       json
// @Produce      json
// @Param        X-Request-ID  header    string               false  "Invocation id"
// @Param        batch         body      models.BatchEnvelope true   "Batch envelope"
// @Success      202           {object}  models.APIResponse
// @Failure      400           {object}  models.APIResponse
// @Failure      413           {object}  models.APIResponse
// @Failure      500           {object}  models.APIResponse
// @Router       /api/v1/userupdated [post]
func (h *Handler) SubmitBatch(c *gin.Context) {
	invocationID := middleware.RequestID(c)
	if invocationID == "" {
		invocationID = uuid.NewString()
		c.Header(middleware.RequestIDHeader, invocationID)
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = apperrors.ErrPayloadTooLarge.WithCause(err)
		} else {
			err = apperrors.ErrValidation.WithCause(err)
		}
		h.Logger.WarnwCtx(c.Request.Context(), "Failed to read request body", "error", err)
		resp := apperrors.ToAPIResponse(err, invocationID)
		c.JSON(resp.StatusCode, resp)
		return
	}

	resp, err := h.Service.Publish(c.Request.Context(), body, invocationID)
	if err != nil {
		_ = c.Error(err)
	}
	c.JSON(resp.StatusCode, resp)
}
