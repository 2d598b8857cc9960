package handlers

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/catscratch/catbot/internal/domain"
	"github.com/catscratch/catbot/internal/service"
	"github.com/catscratch/catbot/pkg/response"
	"github.com/catscratch/catbot/pkg/validator"
)

// InteractionHandler receives the chat platform's button and selection
// events and routes them into the service.
type InteractionHandler struct {
	service *service.MessageService
}

func NewInteractionHandler(service *service.MessageService) *InteractionHandler {
	return &InteractionHandler{service: service}
}

type interactionRequest struct {
	Kind       string `json:"kind" validate:"required,oneof=vote submit delete select"`
	ActorID    string `json:"actorId" validate:"required"`
	PayloadRef string `json:"payloadRef"`
	Selection  int    `json:"selection" validate:"min=0"`
}

// HandleInteraction godoc
// @Summary Handle a platform interaction event
// @Description Routes vote toggles, form submits, deletes and selections to the scheduling core
// @Tags interactions
// @Accept json
// @Produce json
// @Param x-catbot-key header string true "API key for events"
// @Param event body interactionRequest true "Interaction event"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/interactions [post]
func (h *InteractionHandler) HandleInteraction(c echo.Context) error {
	var req interactionRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	ev := domain.InteractionEvent{
		Kind:       domain.InteractionKind(req.Kind),
		ActorID:    req.ActorID,
		PayloadRef: req.PayloadRef,
		Selection:  req.Selection,
	}

	if err := h.service.HandleInteraction(c.Request().Context(), ev); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidOption):
			// Already surfaced to the user as an ephemeral notice.
			return response.BadRequest(c, err)
		case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrPastSchedule):
			return response.UnprocessableEntity(c, err)
		default:
			return response.InternalServerError(c, err)
		}
	}

	return response.Ok(c, nil)
}
