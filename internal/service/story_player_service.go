package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jlk1997/n-dog-b/internal/interfaces"
	"github.com/jlk1997/n-dog-b/internal/models"
)

// PlotProgressSummary - сводка прогресса пользователя по одной линии
// для плеерного списка.
type PlotProgressSummary struct {
	CompletedChapters int        `json:"completedChapters"`
	CompletedEvents   int        `json:"completedEvents"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

// PlotListItem - активная линия, объединённая со статусом пользователя.
type PlotListItem struct {
	models.StoryPlot
	Status   models.ProgressStatus `json:"status"`
	Progress *PlotProgressSummary  `json:"progress,omitempty"`
}

// ChapterListItem - глава со статусом и флагом доступности для пользователя.
type ChapterListItem struct {
	ID          uuid.UUID             `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	SortOrder   int                   `json:"sortOrder"`
	Status      models.ProgressStatus `json:"status"`
	IsAvailable bool                  `json:"isAvailable"`
}

// ChapterListResult - ответ на запрос глав линии.
type ChapterListResult struct {
	Plot     *models.StoryPlot `json:"plot"`
	Chapters []ChapterListItem `json:"chapters"`
	Progress struct {
		Status      models.ProgressStatus `json:"status"`
		StartedAt   *time.Time            `json:"startedAt,omitempty"`
		CompletedAt *time.Time            `json:"completedAt,omitempty"`
	} `json:"progress"`
}

// StartResult - ответ start/resume. При IsCompleted остальные поля позиции
// пусты: линия уже пройдена и рестарт не запрошен.
type StartResult struct {
	IsCompleted  bool                      `json:"isCompleted"`
	Plot         *models.StoryPlot         `json:"plot,omitempty"`
	Chapter      *models.StoryChapter      `json:"chapter,omitempty"`
	CurrentEvent *models.StoryEvent        `json:"currentEvent,omitempty"`
	Progress     *models.UserStoryProgress `json:"progress,omitempty"`
}

// CurrentEventResult - текущее событие с контекстом главы.
type CurrentEventResult struct {
	PlotID       uuid.UUID          `json:"plotId"`
	ChapterID    uuid.UUID          `json:"chapterId"`
	ChapterTitle string             `json:"chapterTitle"`
	CurrentEvent *models.StoryEvent `json:"currentEvent"`
}

// CompleteOutcome классифицирует результат завершения события.
type CompleteOutcome string

const (
	// OutcomeNextEvent - следующий шаг в той же главе.
	OutcomeNextEvent CompleteOutcome = "NEXT_EVENT"
	// OutcomeChapterAdvanced - переход в другую главу.
	OutcomeChapterAdvanced CompleteOutcome = "CHAPTER_ADVANCED"
	// OutcomePlotCompleted - линия пройдена целиком.
	OutcomePlotCompleted CompleteOutcome = "PLOT_COMPLETED"
	// OutcomeEventCompleted - событие завершено, преемник не объявлен;
	// прогресс "застрял" до повторного start.
	OutcomeEventCompleted CompleteOutcome = "EVENT_COMPLETED"
)

// CompleteEventResult - ответ completeEvent; заполненные поля зависят
// от Outcome.
type CompleteEventResult struct {
	Outcome              CompleteOutcome    `json:"outcome"`
	NextEvent            *models.StoryEvent `json:"nextEvent,omitempty"`
	ChapterID            *uuid.UUID         `json:"chapterId,omitempty"`
	ChapterTitle         string             `json:"chapterTitle,omitempty"`
	CompletedAt          *time.Time         `json:"completedAt,omitempty"`
	RemainingEventsCount int                `json:"remainingEventsCount"`
}

// StoryPlayerService - плеерная поверхность: списки линий и глав, слитые
// с прогрессом пользователя, и машина прохождения (start/resume/restart,
// текущее событие, завершение с ветвлением).
type StoryPlayerService interface {
	ListPlots(ctx context.Context, userID uuid.UUID) ([]PlotListItem, error)
	ListChapters(ctx context.Context, userID, plotID uuid.UUID) (*ChapterListResult, error)
	StartPlot(ctx context.Context, userID, plotID uuid.UUID, restart bool) (*StartResult, error)
	GetCurrentEvent(ctx context.Context, userID, plotID uuid.UUID) (*CurrentEventResult, error)
	CompleteEvent(ctx context.Context, userID, plotID, eventID uuid.UUID, choiceIndex *int) (*CompleteEventResult, error)
}

type storyPlayerService struct {
	db        interfaces.DBTX
	plots     interfaces.PlotRepository
	chapters  interfaces.ChapterRepository
	events    interfaces.EventRepository
	progress  interfaces.ProgressRepository
	cache     interfaces.PlotCache
	publisher interfaces.ClientUpdatePublisher
	logger    *zap.Logger
}

// NewStoryPlayerService создает новый StoryPlayerService.
func NewStoryPlayerService(
	db interfaces.DBTX,
	plots interfaces.PlotRepository,
	chapters interfaces.ChapterRepository,
	events interfaces.EventRepository,
	progress interfaces.ProgressRepository,
	cache interfaces.PlotCache,
	publisher interfaces.ClientUpdatePublisher,
	logger *zap.Logger,
) StoryPlayerService {
	return &storyPlayerService{
		db:        db,
		plots:     plots,
		chapters:  chapters,
		events:    events,
		progress:  progress,
		cache:     cache,
		publisher: publisher,
		logger:    logger.Named("StoryPlayerService"),
	}
}

// activePlots читает список активных линий через кэш; любая ошибка кэша
// деградирует в чтение из БД.
func (s *storyPlayerService) activePlots(ctx context.Context) ([]models.StoryPlot, error) {
	if s.cache != nil {
		plots, err := s.cache.GetActivePlots(ctx)
		if err == nil {
			return plots, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("Plot cache read failed, falling back to store", zap.Error(err))
		}
	}

	plots, err := s.plots.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetActivePlots(ctx, plots); err != nil {
			s.logger.Warn("Failed to populate plot cache", zap.Error(err))
		}
	}
	return plots, nil
}

func (s *storyPlayerService) ListPlots(ctx context.Context, userID uuid.UUID) ([]PlotListItem, error) {
	plots, err := s.activePlots(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.progress.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	byPlot := make(map[uuid.UUID]*models.UserStoryProgress, len(records))
	for i := range records {
		byPlot[records[i].PlotID] = &records[i]
	}

	items := make([]PlotListItem, 0, len(plots))
	for _, plot := range plots {
		item := PlotListItem{StoryPlot: plot, Status: models.ProgressNotStarted}
		if record, ok := byPlot[plot.ID]; ok {
			item.Status = record.Status
			item.Progress = &PlotProgressSummary{
				CompletedChapters: len(record.CompletedChapters),
				CompletedEvents:   len(record.CompletedEvents),
				StartedAt:         record.StartedAt,
				CompletedAt:       record.CompletedAt,
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// ListChapters отдаёт главы линии со статусом и доступностью. Запись
// прогресса создаётся лениво при первом просмотре, в статусе NOT_STARTED.
func (s *storyPlayerService) ListChapters(ctx context.Context, userID, plotID uuid.UUID) (*ChapterListResult, error) {
	plot, err := s.plots.GetActiveByID(ctx, s.db, plotID)
	if err != nil {
		return nil, err
	}
	chapters, err := s.chapters.ListByPlot(ctx, s.db, plotID, true)
	if err != nil {
		return nil, err
	}

	record, err := s.progress.GetByUserAndPlot(ctx, s.db, userID, plotID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		record = newProgressRecord(userID, plotID)
		if err := s.progress.Create(ctx, s.db, record); err != nil {
			return nil, err
		}
	}

	items := make([]ChapterListItem, 0, len(chapters))
	for _, chapter := range chapters {
		status := models.ProgressNotStarted
		if record.HasCompletedChapter(chapter.ID) {
			status = models.ProgressCompleted
		} else if record.CurrentChapterID != nil && *record.CurrentChapterID == chapter.ID {
			status = models.ProgressInProgress
		}

		available := true
		if prev := chapter.Requirement.PreviousChapter; prev != nil && !record.HasCompletedChapter(*prev) {
			available = false
		}

		items = append(items, ChapterListItem{
			ID:          chapter.ID,
			Title:       chapter.Title,
			Description: chapter.Description,
			SortOrder:   chapter.SortOrder,
			Status:      status,
			IsAvailable: available,
		})
	}

	result := &ChapterListResult{Plot: plot, Chapters: items}
	result.Progress.Status = record.Status
	result.Progress.StartedAt = record.StartedAt
	result.Progress.CompletedAt = record.CompletedAt
	return result, nil
}

// StartPlot реализует start/resume/restart. Пройденная линия без restart
// возвращается как есть; "застрявший" прогресс выводится заново на первое
// активное событие текущей (или первой) главы.
func (s *storyPlayerService) StartPlot(ctx context.Context, userID, plotID uuid.UUID, restart bool) (*StartResult, error) {
	logFields := []zap.Field{
		zap.Stringer("userID", userID),
		zap.String("plotID", plotID.String()),
	}

	plot, err := s.plots.GetActiveByID(ctx, s.db, plotID)
	if err != nil {
		return nil, err
	}

	record, err := s.progress.GetByUserAndPlot(ctx, s.db, userID, plotID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		chapter, event, err := s.entryPoint(ctx, plotID)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		record = newProgressRecord(userID, plotID)
		record.CurrentChapterID = &chapter.ID
		record.CurrentEventID = &event.ID
		record.Status = models.ProgressInProgress
		record.StartedAt = &now
		if err := s.progress.Create(ctx, s.db, record); err != nil {
			return nil, err
		}
		s.logger.Info("Story started", logFields...)
		return &StartResult{Plot: plot, Chapter: chapter, CurrentEvent: event, Progress: record}, nil

	case err != nil:
		return nil, err
	}

	if record.Status == models.ProgressCompleted && !restart {
		return &StartResult{IsCompleted: true, Plot: plot, Progress: record}, nil
	}

	if restart {
		chapter, event, err := s.entryPoint(ctx, plotID)
		if err != nil {
			return nil, err
		}
		// userChoices - append-only журнал, рестарт его не очищает.
		now := time.Now().UTC()
		record.CurrentChapterID = &chapter.ID
		record.CurrentEventID = &event.ID
		record.CompletedChapters = []uuid.UUID{}
		record.CompletedEvents = []uuid.UUID{}
		record.Status = models.ProgressInProgress
		record.StartedAt = &now
		record.CompletedAt = nil
		if err := s.progress.Update(ctx, s.db, record); err != nil {
			return nil, err
		}
		s.logger.Info("Story restarted", logFields...)
		return &StartResult{Plot: plot, Chapter: chapter, CurrentEvent: event, Progress: record}, nil
	}

	if record.CurrentEventID == nil {
		// Застрявший прогресс: текущее событие удалено автором либо ветка
		// оборвалась без преемника.
		chapter, event, err := s.recoverStalled(ctx, plotID, record)
		if err != nil {
			return nil, err
		}
		record.CurrentChapterID = &chapter.ID
		record.CurrentEventID = &event.ID
		record.Status = models.ProgressInProgress
		if err := s.progress.Update(ctx, s.db, record); err != nil {
			return nil, err
		}
		s.logger.Info("Stalled progress recovered", logFields...)
		return &StartResult{Plot: plot, Chapter: chapter, CurrentEvent: event, Progress: record}, nil
	}

	// Обычное возобновление, без мутаций.
	event, err := s.events.GetByID(ctx, s.db, *record.CurrentEventID)
	if err != nil {
		return nil, err
	}
	chapter, err := s.chapters.GetByID(ctx, s.db, event.ChapterID)
	if err != nil {
		return nil, err
	}
	return &StartResult{Plot: plot, Chapter: chapter, CurrentEvent: event, Progress: record}, nil
}

func (s *storyPlayerService) GetCurrentEvent(ctx context.Context, userID, plotID uuid.UUID) (*CurrentEventResult, error) {
	record, err := s.progress.GetByUserAndPlot(ctx, s.db, userID, plotID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotStarted
		}
		return nil, err
	}
	if record.CurrentEventID == nil {
		return nil, models.ErrNotStarted
	}

	event, err := s.events.GetByID(ctx, s.db, *record.CurrentEventID)
	if err != nil {
		return nil, err
	}
	chapter, err := s.chapters.GetByID(ctx, s.db, event.ChapterID)
	if err != nil {
		return nil, err
	}

	return &CurrentEventResult{
		PlotID:       plotID,
		ChapterID:    chapter.ID,
		ChapterTitle: chapter.Title,
		CurrentEvent: event,
	}, nil
}

// CompleteEvent завершает текущее событие и вычисляет преемника.
// Порядок разрешения: валидный выбор MULTI_CHOICE, иначе собственный
// nextEventId события, иначе проверка остатка главы с нуля.
func (s *storyPlayerService) CompleteEvent(ctx context.Context, userID, plotID, eventID uuid.UUID, choiceIndex *int) (*CompleteEventResult, error) {
	logFields := []zap.Field{
		zap.Stringer("userID", userID),
		zap.String("plotID", plotID.String()),
		zap.String("eventID", eventID.String()),
	}

	record, err := s.progress.GetByUserAndPlot(ctx, s.db, userID, plotID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotStarted
		}
		return nil, err
	}
	if record.CurrentEventID == nil || *record.CurrentEventID != eventID {
		// Клиент отстал от сервера; никаких мутаций.
		return nil, models.ErrInvalidState
	}

	event, err := s.events.GetByID(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}

	successorID := event.NextEventID
	if event.EventType == models.EventTypeMultiChoice && choiceIndex != nil &&
		*choiceIndex >= 0 && *choiceIndex < len(event.Content.Choices) {
		successorID = event.Content.Choices[*choiceIndex].NextEventID
		record.UserChoices = append(record.UserChoices, models.UserChoice{
			EventID:     eventID,
			ChoiceIndex: *choiceIndex,
			Timestamp:   time.Now().UTC(),
		})
	}

	record.MarkEventCompleted(eventID)

	if successorID != nil {
		next, err := s.events.GetByID(ctx, s.db, *successorID)
		switch {
		case err == nil:
			return s.advanceToEvent(ctx, record, event, next, logFields)
		case errors.Is(err, models.ErrNotFound):
			// Висячая ссылка: ведём себя как при отсутствии преемника.
			s.logger.Warn("Declared successor event does not exist",
				append(logFields, zap.String("successorID", successorID.String()))...)
		default:
			return nil, err
		}
	}

	return s.advanceWithoutSuccessor(ctx, record, event, logFields)
}

// advanceToEvent двигает курсор на конкретный преемник, при смене главы
// завершая прежнюю.
func (s *storyPlayerService) advanceToEvent(
	ctx context.Context,
	record *models.UserStoryProgress,
	completed *models.StoryEvent,
	next *models.StoryEvent,
	logFields []zap.Field,
) (*CompleteEventResult, error) {
	record.CurrentEventID = &next.ID

	result := &CompleteEventResult{Outcome: OutcomeNextEvent, NextEvent: next}
	if next.ChapterID != completed.ChapterID {
		record.MarkChapterCompleted(completed.ChapterID)
		record.CurrentChapterID = &next.ChapterID

		result.Outcome = OutcomeChapterAdvanced
		result.ChapterID = &next.ChapterID
		if chapter, err := s.chapters.GetByID(ctx, s.db, next.ChapterID); err == nil {
			result.ChapterTitle = chapter.Title
		} else {
			s.logger.Warn("Failed to resolve chapter of successor event",
				append(logFields, zap.Error(err))...)
		}
	}

	if err := s.progress.Update(ctx, s.db, record); err != nil {
		return nil, err
	}
	return result, nil
}

// advanceWithoutSuccessor обрабатывает событие без преемника: завершение
// главы, переход к следующей, завершение линии либо "застрявший" исход.
// Остаток главы каждый раз пересчитывается с нуля по completedEvents.
func (s *storyPlayerService) advanceWithoutSuccessor(
	ctx context.Context,
	record *models.UserStoryProgress,
	completed *models.StoryEvent,
	logFields []zap.Field,
) (*CompleteEventResult, error) {
	remaining, err := s.events.CountRemaining(ctx, s.db, completed.ChapterID, record.CompletedEvents)
	if err != nil {
		return nil, err
	}

	if remaining > 0 {
		record.CurrentEventID = nil
		if err := s.progress.Update(ctx, s.db, record); err != nil {
			return nil, err
		}
		s.logger.Info("Event completed with no declared successor", logFields...)
		return &CompleteEventResult{Outcome: OutcomeEventCompleted, RemainingEventsCount: remaining}, nil
	}

	record.MarkChapterCompleted(completed.ChapterID)

	nextChapter, err := s.chapters.NextUncompleted(ctx, s.db, record.PlotID, record.CompletedChapters)
	switch {
	case err == nil:
		firstEvent, err := s.events.FirstActiveByChapter(ctx, s.db, nextChapter.ID)
		switch {
		case err == nil:
			record.CurrentChapterID = &nextChapter.ID
			record.CurrentEventID = &firstEvent.ID
			if err := s.progress.Update(ctx, s.db, record); err != nil {
				return nil, err
			}
			s.logger.Info("Chapter completed, advanced to next",
				append(logFields, zap.String("nextChapterID", nextChapter.ID.String()))...)
			return &CompleteEventResult{
				Outcome:      OutcomeChapterAdvanced,
				NextEvent:    firstEvent,
				ChapterID:    &nextChapter.ID,
				ChapterTitle: nextChapter.Title,
			}, nil
		case errors.Is(err, models.ErrNotFound):
			// Следующая глава без активных событий равнозначна отсутствию глав.
			return s.completePlot(ctx, record, logFields)
		default:
			return nil, err
		}

	case errors.Is(err, models.ErrNotFound):
		return s.completePlot(ctx, record, logFields)

	default:
		return nil, err
	}
}

// completePlot переводит прогресс в COMPLETED и публикует уведомление.
func (s *storyPlayerService) completePlot(ctx context.Context, record *models.UserStoryProgress, logFields []zap.Field) (*CompleteEventResult, error) {
	now := time.Now().UTC()
	record.Status = models.ProgressCompleted
	record.CompletedAt = &now
	record.CurrentEventID = nil
	if err := s.progress.Update(ctx, s.db, record); err != nil {
		return nil, err
	}
	s.publishPlotCompleted(ctx, record, logFields)
	s.logger.Info("Plot completed", logFields...)
	return &CompleteEventResult{Outcome: OutcomePlotCompleted, CompletedAt: &now}, nil
}

// publishPlotCompleted шлёт уведомление о завершении линии; сбой публикации
// не ошибка плеерного вызова.
func (s *storyPlayerService) publishPlotCompleted(ctx context.Context, record *models.UserStoryProgress, logFields []zap.Field) {
	if s.publisher == nil {
		return
	}

	title := ""
	if plot, err := s.plots.GetByID(ctx, s.db, record.PlotID); err == nil {
		title = plot.Title
	}

	payload := interfaces.PlotCompletedUpdate{
		UserID:    record.UserID,
		PlotID:    record.PlotID,
		PlotTitle: title,
	}
	if record.CompletedAt != nil {
		payload.CompletedAt = *record.CompletedAt
	}

	if err := s.publisher.PublishPlotCompleted(ctx, payload); err != nil {
		s.logger.Warn("Failed to publish plot completion", append(logFields, zap.Error(err))...)
	}
}

// entryPoint возвращает первую активную главу линии и её первое активное
// событие.
func (s *storyPlayerService) entryPoint(ctx context.Context, plotID uuid.UUID) (*models.StoryChapter, *models.StoryEvent, error) {
	chapter, err := s.chapters.FirstActiveByPlot(ctx, s.db, plotID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: plot %s", ErrPlotHasNoChapters, plotID)
		}
		return nil, nil, err
	}
	event, err := s.events.FirstActiveByChapter(ctx, s.db, chapter.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: chapter %s", ErrChapterHasNoEvents, chapter.ID)
		}
		return nil, nil, err
	}
	return chapter, event, nil
}

// recoverStalled выводит застрявший прогресс на первое активное событие
// текущей главы, с откатом на вход линии, если глава пуста или потеряна.
func (s *storyPlayerService) recoverStalled(ctx context.Context, plotID uuid.UUID, record *models.UserStoryProgress) (*models.StoryChapter, *models.StoryEvent, error) {
	if record.CurrentChapterID != nil {
		chapter, err := s.chapters.GetByID(ctx, s.db, *record.CurrentChapterID)
		if err == nil {
			event, err := s.events.FirstActiveByChapter(ctx, s.db, chapter.ID)
			if err == nil {
				return chapter, event, nil
			}
			if !errors.Is(err, models.ErrNotFound) {
				return nil, nil, err
			}
		} else if !errors.Is(err, models.ErrNotFound) {
			return nil, nil, err
		}
	}
	return s.entryPoint(ctx, plotID)
}

func newProgressRecord(userID, plotID uuid.UUID) *models.UserStoryProgress {
	now := time.Now().UTC()
	return &models.UserStoryProgress{
		ID:                uuid.New(),
		UserID:            userID,
		PlotID:            plotID,
		CompletedChapters: []uuid.UUID{},
		CompletedEvents:   []uuid.UUID{},
		UserChoices:       []models.UserChoice{},
		Status:            models.ProgressNotStarted,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
