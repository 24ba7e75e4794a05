package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/jlk1997/n-dog-b/internal/interfaces"
	"github.com/jlk1997/n-dog-b/internal/models"
)

// Mock PlotRepository
type PlotRepository struct {
	mock.Mock
}

func (m *PlotRepository) Create(ctx context.Context, querier interfaces.DBTX, plot *models.StoryPlot) error {
	args := m.Called(ctx, querier, plot)
	return args.Error(0)
}
func (m *PlotRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.StoryPlot, error) {
	args := m.Called(ctx, querier, id)
	plot, _ := args.Get(0).(*models.StoryPlot)
	return plot, args.Error(1)
}
func (m *PlotRepository) GetActiveByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.StoryPlot, error) {
	args := m.Called(ctx, querier, id)
	plot, _ := args.Get(0).(*models.StoryPlot)
	return plot, args.Error(1)
}
func (m *PlotRepository) Update(ctx context.Context, querier interfaces.DBTX, plot *models.StoryPlot) error {
	args := m.Called(ctx, querier, plot)
	return args.Error(0)
}
func (m *PlotRepository) Delete(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) error {
	args := m.Called(ctx, querier, id)
	return args.Error(0)
}
func (m *PlotRepository) ListAll(ctx context.Context, querier interfaces.DBTX) ([]models.StoryPlot, error) {
	args := m.Called(ctx, querier)
	plots, _ := args.Get(0).([]models.StoryPlot)
	return plots, args.Error(1)
}
func (m *PlotRepository) ListActive(ctx context.Context, querier interfaces.DBTX) ([]models.StoryPlot, error) {
	args := m.Called(ctx, querier)
	plots, _ := args.Get(0).([]models.StoryPlot)
	return plots, args.Error(1)
}

// Mock ChapterRepository
type ChapterRepository struct {
	mock.Mock
}

func (m *ChapterRepository) Create(ctx context.Context, querier interfaces.DBTX, chapter *models.StoryChapter) error {
	args := m.Called(ctx, querier, chapter)
	return args.Error(0)
}
func (m *ChapterRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.StoryChapter, error) {
	args := m.Called(ctx, querier, id)
	chapter, _ := args.Get(0).(*models.StoryChapter)
	return chapter, args.Error(1)
}
func (m *ChapterRepository) Update(ctx context.Context, querier interfaces.DBTX, chapter *models.StoryChapter) error {
	args := m.Called(ctx, querier, chapter)
	return args.Error(0)
}
func (m *ChapterRepository) Delete(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) error {
	args := m.Called(ctx, querier, id)
	return args.Error(0)
}
func (m *ChapterRepository) ListByPlot(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID, activeOnly bool) ([]models.StoryChapter, error) {
	args := m.Called(ctx, querier, plotID, activeOnly)
	chapters, _ := args.Get(0).([]models.StoryChapter)
	return chapters, args.Error(1)
}
func (m *ChapterRepository) FirstActiveByPlot(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID) (*models.StoryChapter, error) {
	args := m.Called(ctx, querier, plotID)
	chapter, _ := args.Get(0).(*models.StoryChapter)
	return chapter, args.Error(1)
}
func (m *ChapterRepository) NextUncompleted(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID, completed []uuid.UUID) (*models.StoryChapter, error) {
	args := m.Called(ctx, querier, plotID, completed)
	chapter, _ := args.Get(0).(*models.StoryChapter)
	return chapter, args.Error(1)
}
func (m *ChapterRepository) IDsByPlot(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, querier, plotID)
	ids, _ := args.Get(0).([]uuid.UUID)
	return ids, args.Error(1)
}
func (m *ChapterRepository) DeleteByPlot(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID) error {
	args := m.Called(ctx, querier, plotID)
	return args.Error(0)
}

// Mock EventRepository
type EventRepository struct {
	mock.Mock
}

func (m *EventRepository) Create(ctx context.Context, querier interfaces.DBTX, event *models.StoryEvent) error {
	args := m.Called(ctx, querier, event)
	return args.Error(0)
}
func (m *EventRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.StoryEvent, error) {
	args := m.Called(ctx, querier, id)
	event, _ := args.Get(0).(*models.StoryEvent)
	return event, args.Error(1)
}
func (m *EventRepository) Update(ctx context.Context, querier interfaces.DBTX, event *models.StoryEvent) error {
	args := m.Called(ctx, querier, event)
	return args.Error(0)
}
func (m *EventRepository) Delete(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) error {
	args := m.Called(ctx, querier, id)
	return args.Error(0)
}
func (m *EventRepository) Exists(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, querier, id)
	return args.Bool(0), args.Error(1)
}
func (m *EventRepository) ListByChapter(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID, activeOnly bool) ([]models.StoryEvent, error) {
	args := m.Called(ctx, querier, chapterID, activeOnly)
	events, _ := args.Get(0).([]models.StoryEvent)
	return events, args.Error(1)
}
func (m *EventRepository) ListByChapters(ctx context.Context, querier interfaces.DBTX, chapterIDs []uuid.UUID) ([]models.StoryEvent, error) {
	args := m.Called(ctx, querier, chapterIDs)
	events, _ := args.Get(0).([]models.StoryEvent)
	return events, args.Error(1)
}
func (m *EventRepository) FirstActiveByChapter(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) (*models.StoryEvent, error) {
	args := m.Called(ctx, querier, chapterID)
	event, _ := args.Get(0).(*models.StoryEvent)
	return event, args.Error(1)
}
func (m *EventRepository) CountRemaining(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID, completed []uuid.UUID) (int, error) {
	args := m.Called(ctx, querier, chapterID, completed)
	return args.Int(0), args.Error(1)
}
func (m *EventRepository) ClearNextReferences(ctx context.Context, querier interfaces.DBTX, eventID uuid.UUID) error {
	args := m.Called(ctx, querier, eventID)
	return args.Error(0)
}
func (m *EventRepository) UpdateReferences(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, next *uuid.UUID, content models.EventContent) error {
	args := m.Called(ctx, querier, id, next, content)
	return args.Error(0)
}
func (m *EventRepository) DeleteByChapter(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) error {
	args := m.Called(ctx, querier, chapterID)
	return args.Error(0)
}
func (m *EventRepository) DeleteByChapters(ctx context.Context, querier interfaces.DBTX, chapterIDs []uuid.UUID) error {
	args := m.Called(ctx, querier, chapterIDs)
	return args.Error(0)
}

// Mock ProgressRepository
type ProgressRepository struct {
	mock.Mock
}

func (m *ProgressRepository) Create(ctx context.Context, querier interfaces.DBTX, progress *models.UserStoryProgress) error {
	args := m.Called(ctx, querier, progress)
	return args.Error(0)
}
func (m *ProgressRepository) GetByUserAndPlot(ctx context.Context, querier interfaces.DBTX, userID, plotID uuid.UUID) (*models.UserStoryProgress, error) {
	args := m.Called(ctx, querier, userID, plotID)
	progress, _ := args.Get(0).(*models.UserStoryProgress)
	return progress, args.Error(1)
}
func (m *ProgressRepository) Update(ctx context.Context, querier interfaces.DBTX, progress *models.UserStoryProgress) error {
	args := m.Called(ctx, querier, progress)
	return args.Error(0)
}
func (m *ProgressRepository) ListByUser(ctx context.Context, querier interfaces.DBTX, userID uuid.UUID) ([]models.UserStoryProgress, error) {
	args := m.Called(ctx, querier, userID)
	records, _ := args.Get(0).([]models.UserStoryProgress)
	return records, args.Error(1)
}
func (m *ProgressRepository) DeleteByPlot(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID) error {
	args := m.Called(ctx, querier, plotID)
	return args.Error(0)
}
func (m *ProgressRepository) ClearCurrentChapter(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) error {
	args := m.Called(ctx, querier, chapterID)
	return args.Error(0)
}
func (m *ProgressRepository) PullCompletedChapter(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) error {
	args := m.Called(ctx, querier, chapterID)
	return args.Error(0)
}
func (m *ProgressRepository) ClearCurrentEvent(ctx context.Context, querier interfaces.DBTX, eventID uuid.UUID) error {
	args := m.Called(ctx, querier, eventID)
	return args.Error(0)
}
func (m *ProgressRepository) PullCompletedEvent(ctx context.Context, querier interfaces.DBTX, eventID uuid.UUID) error {
	args := m.Called(ctx, querier, eventID)
	return args.Error(0)
}
func (m *ProgressRepository) CountByPlot(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID) (int, error) {
	args := m.Called(ctx, querier, plotID)
	return args.Int(0), args.Error(1)
}
func (m *ProgressRepository) CountByPlotAndStatus(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID, status models.ProgressStatus) (int, error) {
	args := m.Called(ctx, querier, plotID, status)
	return args.Int(0), args.Error(1)
}

// Mock TxManager. При ожидаемой ошибке nil функция выполняется с nil-querier,
// имитируя работу внутри транзакции.
type TxManager struct {
	mock.Mock
}

func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.DBTX) error) error {
	args := m.Called(ctx, fn)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, nil)
}

// Mock PlotCache
type PlotCache struct {
	mock.Mock
}

func (m *PlotCache) GetActivePlots(ctx context.Context) ([]models.StoryPlot, error) {
	args := m.Called(ctx)
	plots, _ := args.Get(0).([]models.StoryPlot)
	return plots, args.Error(1)
}
func (m *PlotCache) SetActivePlots(ctx context.Context, plots []models.StoryPlot) error {
	args := m.Called(ctx, plots)
	return args.Error(0)
}
func (m *PlotCache) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Mock ClientUpdatePublisher
type ClientUpdatePublisher struct {
	mock.Mock
}

func (m *ClientUpdatePublisher) PublishPlotCompleted(ctx context.Context, payload interfaces.PlotCompletedUpdate) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}
