package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jlk1997/n-dog-b/internal/models"
)

// listPlots возвращает активные сюжетные линии со статусом пользователя.
func (h *StoryHandler) listPlots(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		h.logger.Error("Failed to get userID from context", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
	}

	plots, err := h.playerService.ListPlots(c.Request().Context(), userID)
	if err != nil {
		h.logger.Error("Error listing plots", zap.Stringer("userID", userID), zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, plots)
}

// listChapters возвращает главы линии со статусом и доступностью.
func (h *StoryHandler) listChapters(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		h.logger.Error("Failed to get userID from context", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
	}
	plotID, err := parseIDParam(c, "plotId")
	if err != nil {
		return handleServiceError(c, err)
	}

	result, err := h.playerService.ListChapters(c.Request().Context(), userID, plotID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			h.logger.Error("Error listing chapters",
				zap.Stringer("userID", userID), zap.String("plotID", plotID.String()), zap.Error(err))
		}
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// startPlot запускает, возобновляет или перезапускает прохождение линии.
func (h *StoryHandler) startPlot(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		h.logger.Error("Failed to get userID from context", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
	}
	plotID, err := parseIDParam(c, "plotId")
	if err != nil {
		return handleServiceError(c, err)
	}
	restart := c.QueryParam("restart") == "true"

	result, err := h.playerService.StartPlot(c.Request().Context(), userID, plotID, restart)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			h.logger.Error("Error starting plot",
				zap.Stringer("userID", userID), zap.String("plotID", plotID.String()), zap.Error(err))
		}
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// getCurrentEvent возвращает текущее событие пользователя в линии.
func (h *StoryHandler) getCurrentEvent(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		h.logger.Error("Failed to get userID from context", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
	}
	plotID, err := parseIDParam(c, "plotId")
	if err != nil {
		return handleServiceError(c, err)
	}

	result, err := h.playerService.GetCurrentEvent(c.Request().Context(), userID, plotID)
	if err != nil {
		if !errors.Is(err, models.ErrNotStarted) && !errors.Is(err, models.ErrNotFound) {
			h.logger.Error("Error getting current event",
				zap.Stringer("userID", userID), zap.String("plotID", plotID.String()), zap.Error(err))
		}
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// completeEvent завершает текущее событие и возвращает исход перехода.
func (h *StoryHandler) completeEvent(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		h.logger.Error("Failed to get userID from context", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
	}

	var req completeEventRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	result, err := h.playerService.CompleteEvent(c.Request().Context(), userID, req.PlotID, req.EventID, req.ChoiceIndex)
	if err != nil {
		if !errors.Is(err, models.ErrInvalidState) && !errors.Is(err, models.ErrNotStarted) {
			h.logger.Error("Error completing event",
				zap.Stringer("userID", userID),
				zap.String("plotID", req.PlotID.String()),
				zap.String("eventID", req.EventID.String()),
				zap.Error(err))
		}
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
