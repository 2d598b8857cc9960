package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/catscratch/catbot/internal/domain"
	"github.com/catscratch/catbot/internal/service"
	"github.com/catscratch/catbot/pkg/response"
	"github.com/catscratch/catbot/pkg/validator"
)

type MessageHandler struct {
	service *service.MessageService
}

func NewMessageHandler(service *service.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

// CreateMessage godoc
// @Summary Schedule a message
// @Description Creates a scheduled message (poll, capacity check, help button or announcement) and installs its timer
// @Tags messages
// @Accept json
// @Produce json
// @Param x-catbot-key header string true "API key for messages"
// @Param message body service.CreateMessageRequest true "Message to schedule"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages [post]
func (h *MessageHandler) CreateMessage(c echo.Context) error {
	var req service.CreateMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	message, err := h.service.CreateScheduled(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrPastSchedule) {
			return response.UnprocessableEntity(c, err)
		}
		return response.InternalServerError(c, err)
	}

	return response.Created(c, "Message scheduled successfully", message)
}

// GetAllMessages godoc
// @Summary List scheduled messages
// @Description Retrieves a paginated list of scheduled messages with optional status or channel filter
// @Tags messages
// @Accept json
// @Produce json
// @Param x-catbot-key header string true "API key for messages"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Param status query string false "Filter by status (active, done, failed)"
// @Param channel query string false "Filter by target channel"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages [get]
func (h *MessageHandler) GetAllMessages(c echo.Context) error {
	if channel := c.QueryParam("channel"); channel != "" {
		messages, err := h.service.ListByChannel(c.Request().Context(), channel)
		if err != nil {
			return response.InternalServerError(c, err)
		}
		return response.Ok(c, messages)
	}

	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	statusStr := c.QueryParam("status")

	// Convert status string to pointer (optional filter).
	var status *domain.MessageStatus
	if statusStr != "" {
		parsedStatus := domain.MessageStatus(statusStr)
		status = &parsedStatus
	}

	messages, totalCount, err := h.service.ListMessages(c.Request().Context(), status, page, pageSize)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Paginated(c, messages, page, pageSize, totalCount)
}

// GetMessage godoc
// @Summary Get one scheduled message
// @Tags messages
// @Accept json
// @Produce json
// @Param x-catbot-key header string true "API key for messages"
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/{id} [get]
func (h *MessageHandler) GetMessage(c echo.Context) error {
	message, err := h.service.GetMessage(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return response.NotFound(c, "Scheduled message not found")
		}
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, message)
}

// UpdateMessage godoc
// @Summary Update a scheduled message
// @Description Replaces the record's content and schedule; the previous timer is atomically swapped out
// @Tags messages
// @Accept json
// @Produce json
// @Param x-catbot-key header string true "API key for messages"
// @Param id path string true "Schedule ID"
// @Param message body service.CreateMessageRequest true "New content and schedule"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/{id} [put]
func (h *MessageHandler) UpdateMessage(c echo.Context) error {
	var req service.CreateMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	message, err := h.service.UpdateScheduled(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return response.NotFound(c, "Scheduled message not found")
		case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrPastSchedule):
			return response.UnprocessableEntity(c, err)
		default:
			return response.InternalServerError(c, err)
		}
	}

	return response.OkWithMessage(c, "Message updated successfully", message)
}

// DeleteMessage godoc
// @Summary Delete a scheduled message
// @Description Cancels the timer, drops poll votes and removes the record
// @Tags messages
// @Accept json
// @Produce json
// @Param x-catbot-key header string true "API key for messages"
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/{id} [delete]
func (h *MessageHandler) DeleteMessage(c echo.Context) error {
	if err := h.service.DeleteScheduled(c.Request().Context(), c.Param("id")); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Message deleted", nil)
}

// SendMessageNow godoc
// @Summary Deliver a scheduled message immediately
// @Description Sends the record to its channel right away, outside its schedule (preview-to-channel)
// @Tags messages
// @Accept json
// @Produce json
// @Param x-catbot-key header string true "API key for messages"
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/{id}/send [post]
func (h *MessageHandler) SendMessageNow(c echo.Context) error {
	result, err := h.service.SendNow(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return response.NotFound(c, "Scheduled message not found")
		}
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Message delivered", map[string]any{
		"messageRef": result.MessageRef,
		"sentAt":     result.SentAt,
	})
}

// GetTally godoc
// @Summary Get poll results
// @Description Returns per-option vote counts and voter identities for a poll-like record
// @Tags messages
// @Accept json
// @Produce json
// @Param x-catbot-key header string true "API key for messages"
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/messages/{id}/tally [get]
func (h *MessageHandler) GetTally(c echo.Context) error {
	tallies, err := h.service.Tally(c.Request().Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return response.NotFound(c, "Scheduled message not found")
		case errors.Is(err, domain.ErrInvalidOption):
			return response.BadRequest(c, err)
		default:
			return response.InternalServerError(c, err)
		}
	}

	return response.Ok(c, tallies)
}

// GetStats godoc
// @Summary Get schedule statistics
// @Description Returns count of scheduled messages by status
// @Tags messages
// @Accept json
// @Produce json
// @Param x-catbot-key header string true "API key for messages"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/stats [get]
func (h *MessageHandler) GetStats(c echo.Context) error {
	active, done, failed, err := h.service.Stats(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, map[string]any{
		"active": active,
		"done":   done,
		"failed": failed,
		"total":  active + done + failed,
	})
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	pageStr := c.QueryParam("page")
	pageSizeStr := c.QueryParam("pageSize")

	// Page
	page := defaultPage
	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	// Page size
	pageSize := defaultPageSize
	if pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}

		pageSize = ps
	}

	return page, pageSize, nil
}
