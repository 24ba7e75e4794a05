package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jlk1997/n-dog-b/internal/interfaces"
	"github.com/jlk1997/n-dog-b/internal/models"
)

// PlotDetail - сюжетная линия вместе с её главами для админки.
type PlotDetail struct {
	Plot     *models.StoryPlot     `json:"plot"`
	Chapters []models.StoryChapter `json:"chapters"`
}

// ChapterDetail - глава вместе с её событиями для админки.
type ChapterDetail struct {
	Chapter *models.StoryChapter `json:"chapter"`
	Events  []models.StoryEvent  `json:"events"`
}

// CreatePlotInput - параметры создания сюжетной линии.
type CreatePlotInput struct {
	Title       string
	Description string
	CoverImage  string
	IsMainStory bool
	SortOrder   int
	Requirement json.RawMessage
	Reward      json.RawMessage
}

// UpdatePlotInput - частичное обновление; nil-поля не трогаются.
type UpdatePlotInput struct {
	Title       *string
	Description *string
	CoverImage  *string
	IsActive    *bool
	IsMainStory *bool
	SortOrder   *int
	Requirement json.RawMessage
	Reward      json.RawMessage
}

// CreateChapterInput - параметры создания главы.
type CreateChapterInput struct {
	PlotID      uuid.UUID
	Title       string
	Description string
	SortOrder   int
	IsActive    *bool
	Requirement models.ChapterRequirement
	Reward      json.RawMessage
}

// UpdateChapterInput - частичное обновление главы.
type UpdateChapterInput struct {
	Title       *string
	Description *string
	SortOrder   *int
	IsActive    *bool
	Requirement *models.ChapterRequirement
	Reward      json.RawMessage
}

// CreateEventInput - параметры создания события.
type CreateEventInput struct {
	ChapterID        uuid.UUID
	Title            string
	EventType        models.EventType
	Content          models.EventContent
	TriggerCondition *models.TriggerCondition
	NextEventID      *uuid.UUID
	IsActive         *bool
	SortOrder        int
}

// UpdateEventInput - частичное обновление события. NextEventID различает
// "не менять" (поле не задано) и "обнулить" (задано, значение nil) через
// NextEventSet.
type UpdateEventInput struct {
	Title            *string
	EventType        *models.EventType
	Content          *models.EventContent
	TriggerCondition *models.TriggerCondition
	NextEventSet     bool
	NextEventID      *uuid.UUID
	IsActive         *bool
	SortOrder        *int
}

// StoryAdminService - авторская поверхность: CRUD над графом контента с
// соблюдением ссылочной целостности, каскадные удаления, экспорт/импорт
// и агрегированная статистика прохождения.
type StoryAdminService interface {
	CreatePlot(ctx context.Context, input CreatePlotInput) (*models.StoryPlot, error)
	GetAllPlots(ctx context.Context) ([]models.StoryPlot, error)
	GetPlotDetail(ctx context.Context, plotID uuid.UUID) (*PlotDetail, error)
	UpdatePlot(ctx context.Context, plotID uuid.UUID, input UpdatePlotInput) (*models.StoryPlot, error)
	DeletePlot(ctx context.Context, plotID uuid.UUID) error

	CreateChapter(ctx context.Context, input CreateChapterInput) (*models.StoryChapter, error)
	GetChapterDetail(ctx context.Context, chapterID uuid.UUID) (*ChapterDetail, error)
	UpdateChapter(ctx context.Context, chapterID uuid.UUID, input UpdateChapterInput) (*models.StoryChapter, error)
	DeleteChapter(ctx context.Context, chapterID uuid.UUID) error

	CreateEvent(ctx context.Context, input CreateEventInput) (*models.StoryEvent, error)
	GetEventDetail(ctx context.Context, eventID uuid.UUID) (*models.StoryEvent, error)
	UpdateEvent(ctx context.Context, eventID uuid.UUID, input UpdateEventInput) (*models.StoryEvent, error)
	DeleteEvent(ctx context.Context, eventID uuid.UUID) error

	GetProgressStats(ctx context.Context) ([]models.PlotProgressStats, error)

	ExportPlot(ctx context.Context, plotID uuid.UUID) (*models.StorySnapshot, error)
	ImportPlot(ctx context.Context, snapshot models.StorySnapshot) (uuid.UUID, error)
}

type storyAdminService struct {
	db        interfaces.DBTX
	txManager interfaces.TxManager
	plots     interfaces.PlotRepository
	chapters  interfaces.ChapterRepository
	events    interfaces.EventRepository
	progress  interfaces.ProgressRepository
	cache     interfaces.PlotCache
	logger    *zap.Logger
}

// NewStoryAdminService создает новый StoryAdminService.
func NewStoryAdminService(
	db interfaces.DBTX,
	txManager interfaces.TxManager,
	plots interfaces.PlotRepository,
	chapters interfaces.ChapterRepository,
	events interfaces.EventRepository,
	progress interfaces.ProgressRepository,
	cache interfaces.PlotCache,
	logger *zap.Logger,
) StoryAdminService {
	return &storyAdminService{
		db:        db,
		txManager: txManager,
		plots:     plots,
		chapters:  chapters,
		events:    events,
		progress:  progress,
		cache:     cache,
		logger:    logger.Named("StoryAdminService"),
	}
}

// invalidatePlotCache сбрасывает кэш списка линий; ошибка кэша не ошибка операции.
func (s *storyAdminService) invalidatePlotCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("Failed to invalidate plot cache", zap.Error(err))
	}
}

// --- Plots --- //

func (s *storyAdminService) CreatePlot(ctx context.Context, input CreatePlotInput) (*models.StoryPlot, error) {
	now := time.Now().UTC()
	plot := &models.StoryPlot{
		ID:          uuid.New(),
		Title:       input.Title,
		Description: input.Description,
		CoverImage:  input.CoverImage,
		IsMainStory: input.IsMainStory,
		SortOrder:   input.SortOrder,
		IsActive:    true,
		Requirement: emptyIfNilJSON(input.Requirement),
		Reward:      emptyIfNilJSON(input.Reward),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.plots.Create(ctx, s.db, plot); err != nil {
		return nil, err
	}
	s.invalidatePlotCache(ctx)
	return plot, nil
}

func (s *storyAdminService) GetAllPlots(ctx context.Context) ([]models.StoryPlot, error) {
	return s.plots.ListAll(ctx, s.db)
}

func (s *storyAdminService) GetPlotDetail(ctx context.Context, plotID uuid.UUID) (*PlotDetail, error) {
	plot, err := s.plots.GetByID(ctx, s.db, plotID)
	if err != nil {
		return nil, err
	}
	chapters, err := s.chapters.ListByPlot(ctx, s.db, plotID, false)
	if err != nil {
		return nil, err
	}
	return &PlotDetail{Plot: plot, Chapters: chapters}, nil
}

func (s *storyAdminService) UpdatePlot(ctx context.Context, plotID uuid.UUID, input UpdatePlotInput) (*models.StoryPlot, error) {
	plot, err := s.plots.GetByID(ctx, s.db, plotID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		plot.Title = *input.Title
	}
	if input.Description != nil {
		plot.Description = *input.Description
	}
	if input.CoverImage != nil {
		plot.CoverImage = *input.CoverImage
	}
	if input.IsActive != nil {
		plot.IsActive = *input.IsActive
	}
	if input.IsMainStory != nil {
		plot.IsMainStory = *input.IsMainStory
	}
	if input.SortOrder != nil {
		plot.SortOrder = *input.SortOrder
	}
	if input.Requirement != nil {
		plot.Requirement = input.Requirement
	}
	if input.Reward != nil {
		plot.Reward = input.Reward
	}

	if err := s.plots.Update(ctx, s.db, plot); err != nil {
		return nil, err
	}
	s.invalidatePlotCache(ctx)
	return plot, nil
}

// DeletePlot удаляет линию и всё зависимое за одну транзакцию: события её
// глав, сами главы, прогресс всех пользователей по линии, затем линию.
// Частичное состояние снаружи не наблюдаемо.
func (s *storyAdminService) DeletePlot(ctx context.Context, plotID uuid.UUID) error {
	logFields := []zap.Field{zap.String("plotID", plotID.String())}

	// Существование проверяем до транзакции, чтобы NotFound не маскировался
	// под откат.
	if _, err := s.plots.GetByID(ctx, s.db, plotID); err != nil {
		return err
	}

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		chapterIDs, err := s.chapters.IDsByPlot(ctx, tx, plotID)
		if err != nil {
			return err
		}
		if err := s.events.DeleteByChapters(ctx, tx, chapterIDs); err != nil {
			return err
		}
		if err := s.chapters.DeleteByPlot(ctx, tx, plotID); err != nil {
			return err
		}
		if err := s.progress.DeleteByPlot(ctx, tx, plotID); err != nil {
			return err
		}
		return s.plots.Delete(ctx, tx, plotID)
	})
	if err != nil {
		s.logger.Error("Plot cascade delete rolled back", append(logFields, zap.Error(err))...)
		return fmt.Errorf("%w: %s", models.ErrTransactionAborted, err)
	}

	s.invalidatePlotCache(ctx)
	s.logger.Info("Plot deleted with cascade", logFields...)
	return nil
}

// --- Chapters --- //

func (s *storyAdminService) CreateChapter(ctx context.Context, input CreateChapterInput) (*models.StoryChapter, error) {
	// Родительская линия обязана существовать.
	if _, err := s.plots.GetByID(ctx, s.db, input.PlotID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: plot %s", models.ErrNotFound, input.PlotID)
		}
		return nil, err
	}

	now := time.Now().UTC()
	chapter := &models.StoryChapter{
		ID:          uuid.New(),
		PlotID:      input.PlotID,
		Title:       input.Title,
		Description: input.Description,
		SortOrder:   input.SortOrder,
		IsActive:    boolOrDefault(input.IsActive, true),
		Requirement: input.Requirement,
		Reward:      emptyIfNilJSON(input.Reward),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.chapters.Create(ctx, s.db, chapter); err != nil {
		return nil, err
	}
	return chapter, nil
}

func (s *storyAdminService) GetChapterDetail(ctx context.Context, chapterID uuid.UUID) (*ChapterDetail, error) {
	chapter, err := s.chapters.GetByID(ctx, s.db, chapterID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListByChapter(ctx, s.db, chapterID, false)
	if err != nil {
		return nil, err
	}
	return &ChapterDetail{Chapter: chapter, Events: events}, nil
}

func (s *storyAdminService) UpdateChapter(ctx context.Context, chapterID uuid.UUID, input UpdateChapterInput) (*models.StoryChapter, error) {
	chapter, err := s.chapters.GetByID(ctx, s.db, chapterID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		chapter.Title = *input.Title
	}
	if input.Description != nil {
		chapter.Description = *input.Description
	}
	if input.SortOrder != nil {
		chapter.SortOrder = *input.SortOrder
	}
	if input.IsActive != nil {
		chapter.IsActive = *input.IsActive
	}
	if input.Requirement != nil {
		chapter.Requirement = *input.Requirement
	}
	if input.Reward != nil {
		chapter.Reward = input.Reward
	}

	if err := s.chapters.Update(ctx, s.db, chapter); err != nil {
		return nil, err
	}
	return chapter, nil
}

// DeleteChapter удаляет главу в одной транзакции: её события, ссылки из
// прогресса (current_chapter_id и completed_chapters), затем саму главу.
func (s *storyAdminService) DeleteChapter(ctx context.Context, chapterID uuid.UUID) error {
	logFields := []zap.Field{zap.String("chapterID", chapterID.String())}

	if _, err := s.chapters.GetByID(ctx, s.db, chapterID); err != nil {
		return err
	}

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := s.events.DeleteByChapter(ctx, tx, chapterID); err != nil {
			return err
		}
		if err := s.progress.ClearCurrentChapter(ctx, tx, chapterID); err != nil {
			return err
		}
		if err := s.progress.PullCompletedChapter(ctx, tx, chapterID); err != nil {
			return err
		}
		return s.chapters.Delete(ctx, tx, chapterID)
	})
	if err != nil {
		s.logger.Error("Chapter cascade delete rolled back", append(logFields, zap.Error(err))...)
		return fmt.Errorf("%w: %s", models.ErrTransactionAborted, err)
	}

	s.logger.Info("Chapter deleted with cascade", logFields...)
	return nil
}

// --- Events --- //

func (s *storyAdminService) CreateEvent(ctx context.Context, input CreateEventInput) (*models.StoryEvent, error) {
	if _, err := s.chapters.GetByID(ctx, s.db, input.ChapterID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: chapter %s", models.ErrNotFound, input.ChapterID)
		}
		return nil, err
	}

	if input.NextEventID != nil {
		exists, err := s.events.Exists(ctx, s.db, *input.NextEventID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: next event %s", models.ErrInvalidReference, *input.NextEventID)
		}
	}

	eventType := input.EventType
	if eventType == "" {
		eventType = models.EventTypeDialog
	}
	trigger := models.TriggerCondition{Type: models.TriggerAuto}
	if input.TriggerCondition != nil {
		trigger = *input.TriggerCondition
	}

	now := time.Now().UTC()
	event := &models.StoryEvent{
		ID:               uuid.New(),
		ChapterID:        input.ChapterID,
		Title:            input.Title,
		EventType:        eventType,
		Content:          input.Content,
		TriggerCondition: trigger,
		NextEventID:      input.NextEventID,
		IsActive:         boolOrDefault(input.IsActive, true),
		SortOrder:        input.SortOrder,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.events.Create(ctx, s.db, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *storyAdminService) GetEventDetail(ctx context.Context, eventID uuid.UUID) (*models.StoryEvent, error) {
	return s.events.GetByID(ctx, s.db, eventID)
}

func (s *storyAdminService) UpdateEvent(ctx context.Context, eventID uuid.UUID, input UpdateEventInput) (*models.StoryEvent, error) {
	event, err := s.events.GetByID(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		event.Title = *input.Title
	}
	if input.EventType != nil {
		event.EventType = *input.EventType
	}
	if input.Content != nil {
		event.Content = *input.Content
	}
	if input.TriggerCondition != nil {
		event.TriggerCondition = *input.TriggerCondition
	}
	if input.NextEventSet {
		if input.NextEventID != nil {
			exists, err := s.events.Exists(ctx, s.db, *input.NextEventID)
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, fmt.Errorf("%w: next event %s", models.ErrInvalidReference, *input.NextEventID)
			}
		}
		event.NextEventID = input.NextEventID
	}
	if input.IsActive != nil {
		event.IsActive = *input.IsActive
	}
	if input.SortOrder != nil {
		event.SortOrder = *input.SortOrder
	}

	if err := s.events.Update(ctx, s.db, event); err != nil {
		return nil, err
	}
	return event, nil
}

// DeleteEvent чинит висячие ссылки и удаляет событие. Намеренно без
// транзакции: каждый шаг репарации идемпотентен, а blast radius мал.
// Записи прогресса с этим текущим событием становятся "застрявшими" -
// это не ошибка, startPlot выведет их на первое активное событие главы.
func (s *storyAdminService) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	if _, err := s.events.GetByID(ctx, s.db, eventID); err != nil {
		return err
	}

	if err := s.events.ClearNextReferences(ctx, s.db, eventID); err != nil {
		return err
	}
	if err := s.progress.ClearCurrentEvent(ctx, s.db, eventID); err != nil {
		return err
	}
	if err := s.progress.PullCompletedEvent(ctx, s.db, eventID); err != nil {
		return err
	}
	return s.events.Delete(ctx, s.db, eventID)
}

// --- Stats --- //

// GetProgressStats считает по каждой линии распределение пользователей по
// статусам и долю завершивших (в процентах, два знака; 0 при нуле записей).
func (s *storyAdminService) GetProgressStats(ctx context.Context) ([]models.PlotProgressStats, error) {
	plots, err := s.plots.ListAll(ctx, s.db)
	if err != nil {
		return nil, err
	}

	stats := make([]models.PlotProgressStats, 0, len(plots))
	for _, plot := range plots {
		total, err := s.progress.CountByPlot(ctx, s.db, plot.ID)
		if err != nil {
			return nil, err
		}
		completed, err := s.progress.CountByPlotAndStatus(ctx, s.db, plot.ID, models.ProgressCompleted)
		if err != nil {
			return nil, err
		}
		inProgress, err := s.progress.CountByPlotAndStatus(ctx, s.db, plot.ID, models.ProgressInProgress)
		if err != nil {
			return nil, err
		}

		var rate float64
		if total > 0 {
			rate = math.Round(float64(completed)/float64(total)*100*100) / 100
		}
		stats = append(stats, models.PlotProgressStats{
			PlotID:          plot.ID,
			PlotTitle:       plot.Title,
			TotalUsers:      total,
			CompletedUsers:  completed,
			InProgressUsers: inProgress,
			NotStartedUsers: total - completed - inProgress,
			CompletionRate:  rate,
		})
	}
	return stats, nil
}

// --- helpers --- //

func emptyIfNilJSON(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
