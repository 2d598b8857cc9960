package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/catscratch/catbot/internal/scheduler"
	"github.com/catscratch/catbot/pkg/response"
)

type SchedulerHandler struct {
	engine *scheduler.Engine
}

func NewSchedulerHandler(engine *scheduler.Engine) *SchedulerHandler {
	return &SchedulerHandler{engine: engine}
}

// GetStatus godoc
// @Summary Get schedule engine status
// @Description Returns live timer count and delivery counters
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-catbot-key header string true "API key for scheduler"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/scheduler/status [get]
func (h *SchedulerHandler) GetStatus(c echo.Context) error {
	return response.Ok(c, h.engine.Status())
}

// Rehydrate godoc
// @Summary Rebuild timers from the store
// @Description Re-registers a timer for every active record, replacing any live ones; one-time records whose instant has passed are marked failed
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-catbot-key header string true "API key for scheduler"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/rehydrate [post]
func (h *SchedulerHandler) Rehydrate(c echo.Context) error {
	registered, err := h.engine.RehydrateAll(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Rehydration completed", map[string]any{
		"registered": registered,
	})
}
