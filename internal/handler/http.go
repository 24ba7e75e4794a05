package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jlk1997/n-dog-b/internal/auth"
	"github.com/jlk1997/n-dog-b/internal/middleware"
	"github.com/jlk1997/n-dog-b/internal/models"
	"github.com/jlk1997/n-dog-b/internal/service"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

// CustomValidator подключает go-playground/validator как echo.Validator.
type CustomValidator struct {
	validator *validator.Validate
}

// NewCustomValidator создает валидатор для echo.
func NewCustomValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements echo.Validator.
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// StoryHandler обрабатывает HTTP запросы сюжетного сервиса: плеерную
// поверхность и авторскую админку.
type StoryHandler struct {
	playerService     service.StoryPlayerService
	adminService      service.StoryAdminService
	logger            *zap.Logger
	userTokenVerifier *auth.JWTVerifier
	adminToken        string
}

// NewStoryHandler создает новый StoryHandler.
func NewStoryHandler(
	playerService service.StoryPlayerService,
	adminService service.StoryAdminService,
	logger *zap.Logger,
	jwtSecret string,
	adminToken string,
) *StoryHandler {
	userVerifier, err := auth.NewJWTVerifier(jwtSecret, logger)
	if err != nil {
		logger.Fatal("Failed to create User JWT Verifier", zap.Error(err))
	}

	return &StoryHandler{
		playerService:     playerService,
		adminService:      adminService,
		logger:            logger.Named("StoryHandler"),
		userTokenVerifier: userVerifier,
		adminToken:        adminToken,
	}
}

// RegisterRoutes регистрирует маршруты сюжетного сервиса.
func (h *StoryHandler) RegisterRoutes(e *echo.Echo) {
	authMiddleware := echo.WrapMiddleware(middleware.AuthMiddleware(h.userTokenVerifier.VerifyToken, h.logger))
	adminMiddleware := echo.WrapMiddleware(middleware.AdminTokenMiddleware(h.adminToken, h.logger))

	// --- Плеерная поверхность ---
	storyGroup := e.Group("/api/story", authMiddleware)
	{
		storyGroup.GET("/plots", h.listPlots)
		storyGroup.GET("/plots/:plotId/chapters", h.listChapters)
		storyGroup.GET("/plots/:plotId/start", h.startPlot)
		storyGroup.GET("/plots/:plotId/current-event", h.getCurrentEvent)
		storyGroup.POST("/complete-event", h.completeEvent)
	}

	// --- Авторская поверхность ---
	adminGroup := e.Group("/api/admin/story", adminMiddleware)
	{
		adminGroup.GET("/plots", h.adminListPlots)
		adminGroup.POST("/plots", h.adminCreatePlot)
		adminGroup.GET("/plots/:plotId", h.adminGetPlot)
		adminGroup.PUT("/plots/:plotId", h.adminUpdatePlot)
		adminGroup.DELETE("/plots/:plotId", h.adminDeletePlot)

		adminGroup.POST("/chapters", h.adminCreateChapter)
		adminGroup.GET("/chapters/:chapterId", h.adminGetChapter)
		adminGroup.PUT("/chapters/:chapterId", h.adminUpdateChapter)
		adminGroup.DELETE("/chapters/:chapterId", h.adminDeleteChapter)

		adminGroup.POST("/events", h.adminCreateEvent)
		adminGroup.GET("/events/:eventId", h.adminGetEvent)
		adminGroup.PUT("/events/:eventId", h.adminUpdateEvent)
		adminGroup.DELETE("/events/:eventId", h.adminDeleteEvent)

		adminGroup.GET("/export/:plotId", h.adminExportPlot)
		adminGroup.POST("/import", h.adminImportPlot)
		adminGroup.GET("/progress-stats", h.adminProgressStats)
	}
}

// --- Вспомогательные функции --- //

// getUserIDFromContext извлекает userID, положенный auth middleware.
func getUserIDFromContext(c echo.Context) (uuid.UUID, error) {
	userID, ok := models.GetUserIDFromContext(c.Request().Context())
	if !ok {
		return uuid.Nil, fmt.Errorf("user_id не найден в контексте")
	}
	if userID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("невалидный user_id (nil) в контексте")
	}
	return userID, nil
}

// parseIDParam читает uuid из path-параметра.
func parseIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: невалидный %s", models.ErrBadRequest, name)
	}
	return id, nil
}

func handleServiceError(c echo.Context, err error) error {
	var statusCode int
	var apiErr APIError

	switch {
	case errors.Is(err, models.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		apiErr = APIError{Message: "Unauthorized"}
	case errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: "Resource not found"}
	case errors.Is(err, models.ErrNotStarted):
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: "Story not started"}
	case errors.Is(err, models.ErrInvalidState):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: "Submitted event is not the current event"}
	case errors.Is(err, models.ErrInvalidReference):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrBadRequest):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, service.ErrInvalidSnapshot):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, service.ErrPlotHasNoChapters) || errors.Is(err, service.ErrChapterHasNoEvents):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrTransactionAborted):
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Message: "Operation failed and was rolled back"}
	default:
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Message: "Internal server error"}
	}
	return c.JSON(statusCode, apiErr)
}
