package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jlk1997/n-dog-b/internal/models"
	"github.com/jlk1997/n-dog-b/internal/service"
)

// --- Plots --- //

func (h *StoryHandler) adminListPlots(c echo.Context) error {
	plots, err := h.adminService.GetAllPlots(c.Request().Context())
	if err != nil {
		h.logger.Error("Error listing plots for admin", zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, plots)
}

func (h *StoryHandler) adminCreatePlot(c echo.Context) error {
	var req createPlotRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	plot, err := h.adminService.CreatePlot(c.Request().Context(), service.CreatePlotInput{
		Title:       req.Title,
		Description: req.Description,
		CoverImage:  req.CoverImage,
		IsMainStory: req.IsMainStory,
		SortOrder:   req.SortOrder,
		Requirement: req.Requirement,
		Reward:      req.Reward,
	})
	if err != nil {
		h.logger.Error("Error creating plot", zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, plot)
}

func (h *StoryHandler) adminGetPlot(c echo.Context) error {
	plotID, err := parseIDParam(c, "plotId")
	if err != nil {
		return handleServiceError(c, err)
	}

	detail, err := h.adminService.GetPlotDetail(c.Request().Context(), plotID)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *StoryHandler) adminUpdatePlot(c echo.Context) error {
	plotID, err := parseIDParam(c, "plotId")
	if err != nil {
		return handleServiceError(c, err)
	}

	var req updatePlotRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
	}

	plot, err := h.adminService.UpdatePlot(c.Request().Context(), plotID, service.UpdatePlotInput{
		Title:       req.Title,
		Description: req.Description,
		CoverImage:  req.CoverImage,
		IsActive:    req.IsActive,
		IsMainStory: req.IsMainStory,
		SortOrder:   req.SortOrder,
		Requirement: req.Requirement,
		Reward:      req.Reward,
	})
	if err != nil {
		h.logger.Error("Error updating plot", zap.String("plotID", plotID.String()), zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, plot)
}

func (h *StoryHandler) adminDeletePlot(c echo.Context) error {
	plotID, err := parseIDParam(c, "plotId")
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := h.adminService.DeletePlot(c.Request().Context(), plotID); err != nil {
		h.logger.Error("Error deleting plot", zap.String("plotID", plotID.String()), zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Chapters --- //

func (h *StoryHandler) adminCreateChapter(c echo.Context) error {
	var req createChapterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	chapter, err := h.adminService.CreateChapter(c.Request().Context(), service.CreateChapterInput{
		PlotID:      req.PlotID,
		Title:       req.Title,
		Description: req.Description,
		SortOrder:   req.SortOrder,
		IsActive:    req.IsActive,
		Requirement: req.Requirement,
		Reward:      req.Reward,
	})
	if err != nil {
		h.logger.Error("Error creating chapter", zap.String("plotID", req.PlotID.String()), zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, chapter)
}

func (h *StoryHandler) adminGetChapter(c echo.Context) error {
	chapterID, err := parseIDParam(c, "chapterId")
	if err != nil {
		return handleServiceError(c, err)
	}

	detail, err := h.adminService.GetChapterDetail(c.Request().Context(), chapterID)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *StoryHandler) adminUpdateChapter(c echo.Context) error {
	chapterID, err := parseIDParam(c, "chapterId")
	if err != nil {
		return handleServiceError(c, err)
	}

	var req updateChapterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
	}

	chapter, err := h.adminService.UpdateChapter(c.Request().Context(), chapterID, service.UpdateChapterInput{
		Title:       req.Title,
		Description: req.Description,
		SortOrder:   req.SortOrder,
		IsActive:    req.IsActive,
		Requirement: req.Requirement,
		Reward:      req.Reward,
	})
	if err != nil {
		h.logger.Error("Error updating chapter", zap.String("chapterID", chapterID.String()), zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, chapter)
}

func (h *StoryHandler) adminDeleteChapter(c echo.Context) error {
	chapterID, err := parseIDParam(c, "chapterId")
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := h.adminService.DeleteChapter(c.Request().Context(), chapterID); err != nil {
		h.logger.Error("Error deleting chapter", zap.String("chapterID", chapterID.String()), zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Events --- //

func (h *StoryHandler) adminCreateEvent(c echo.Context) error {
	var req createEventRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.EventType != "" && !req.EventType.IsValid() {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid event type"})
	}

	event, err := h.adminService.CreateEvent(c.Request().Context(), service.CreateEventInput{
		ChapterID:        req.ChapterID,
		Title:            req.Title,
		EventType:        req.EventType,
		Content:          req.Content,
		TriggerCondition: req.TriggerCondition,
		NextEventID:      req.NextEventID,
		IsActive:         req.IsActive,
		SortOrder:        req.SortOrder,
	})
	if err != nil {
		h.logger.Error("Error creating event", zap.String("chapterID", req.ChapterID.String()), zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, event)
}

func (h *StoryHandler) adminGetEvent(c echo.Context) error {
	eventID, err := parseIDParam(c, "eventId")
	if err != nil {
		return handleServiceError(c, err)
	}

	event, err := h.adminService.GetEventDetail(c.Request().Context(), eventID)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, event)
}

func (h *StoryHandler) adminUpdateEvent(c echo.Context) error {
	eventID, err := parseIDParam(c, "eventId")
	if err != nil {
		return handleServiceError(c, err)
	}

	var req updateEventRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
	}
	if req.EventType != nil && !req.EventType.IsValid() {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid event type"})
	}

	event, err := h.adminService.UpdateEvent(c.Request().Context(), eventID, service.UpdateEventInput{
		Title:            req.Title,
		EventType:        req.EventType,
		Content:          req.Content,
		TriggerCondition: req.TriggerCondition,
		NextEventSet:     req.nextEventSet,
		NextEventID:      req.NextEventID,
		IsActive:         req.IsActive,
		SortOrder:        req.SortOrder,
	})
	if err != nil {
		h.logger.Error("Error updating event", zap.String("eventID", eventID.String()), zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, event)
}

func (h *StoryHandler) adminDeleteEvent(c echo.Context) error {
	eventID, err := parseIDParam(c, "eventId")
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := h.adminService.DeleteEvent(c.Request().Context(), eventID); err != nil {
		h.logger.Error("Error deleting event", zap.String("eventID", eventID.String()), zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Transfer / Stats --- //

func (h *StoryHandler) adminExportPlot(c echo.Context) error {
	plotID, err := parseIDParam(c, "plotId")
	if err != nil {
		return handleServiceError(c, err)
	}

	snapshot, err := h.adminService.ExportPlot(c.Request().Context(), plotID)
	if err != nil {
		h.logger.Error("Error exporting plot", zap.String("plotID", plotID.String()), zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (h *StoryHandler) adminImportPlot(c echo.Context) error {
	var snapshot models.StorySnapshot
	if err := c.Bind(&snapshot); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid snapshot body"})
	}

	newPlotID, err := h.adminService.ImportPlot(c.Request().Context(), snapshot)
	if err != nil {
		h.logger.Error("Error importing plot", zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"plotId": newPlotID.String()})
}

func (h *StoryHandler) adminProgressStats(c echo.Context) error {
	stats, err := h.adminService.GetProgressStats(c.Request().Context())
	if err != nil {
		h.logger.Error("Error building progress stats", zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
