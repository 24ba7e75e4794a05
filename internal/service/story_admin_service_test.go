package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/jlk1997/n-dog-b/internal/interfaces/mocks"
	"github.com/jlk1997/n-dog-b/internal/models"
	"github.com/jlk1997/n-dog-b/internal/service"
)

type adminMocks struct {
	tx       *mocks.TxManager
	plots    *mocks.PlotRepository
	chapters *mocks.ChapterRepository
	events   *mocks.EventRepository
	progress *mocks.ProgressRepository
	cache    *mocks.PlotCache
}

func newAdminService() (service.StoryAdminService, *adminMocks) {
	m := &adminMocks{
		tx:       new(mocks.TxManager),
		plots:    new(mocks.PlotRepository),
		chapters: new(mocks.ChapterRepository),
		events:   new(mocks.EventRepository),
		progress: new(mocks.ProgressRepository),
		cache:    new(mocks.PlotCache),
	}
	svc := service.NewStoryAdminService(nil, m.tx, m.plots, m.chapters, m.events, m.progress, m.cache, zap.NewNop())
	return svc, m
}

func TestDeletePlot(t *testing.T) {
	ctx := context.Background()
	plotID := uuid.New()
	plot := &models.StoryPlot{ID: plotID, Title: "Intro"}

	t.Run("Cascade deletes events, chapters, progress and plot in one transaction", func(t *testing.T) {
		svc, m := newAdminService()
		chapterIDs := []uuid.UUID{uuid.New(), uuid.New()}

		m.plots.On("GetByID", ctx, mock.Anything, plotID).Return(plot, nil).Once()
		m.tx.On("WithTransaction", ctx, mock.Anything).Return(nil).Once()
		m.chapters.On("IDsByPlot", ctx, mock.Anything, plotID).Return(chapterIDs, nil).Once()
		m.events.On("DeleteByChapters", ctx, mock.Anything, chapterIDs).Return(nil).Once()
		m.chapters.On("DeleteByPlot", ctx, mock.Anything, plotID).Return(nil).Once()
		m.progress.On("DeleteByPlot", ctx, mock.Anything, plotID).Return(nil).Once()
		m.plots.On("Delete", ctx, mock.Anything, plotID).Return(nil).Once()
		m.cache.On("Invalidate", ctx).Return(nil).Once()

		err := svc.DeletePlot(ctx, plotID)

		assert.NoError(t, err)
		m.plots.AssertExpectations(t)
		m.chapters.AssertExpectations(t)
		m.events.AssertExpectations(t)
		m.progress.AssertExpectations(t)
		m.cache.AssertExpectations(t)
	})

	t.Run("Missing plot returns NotFound without opening a transaction", func(t *testing.T) {
		svc, m := newAdminService()

		m.plots.On("GetByID", ctx, mock.Anything, plotID).Return(nil, models.ErrNotFound).Once()

		err := svc.DeletePlot(ctx, plotID)

		assert.True(t, errors.Is(err, models.ErrNotFound))
		m.tx.AssertNotCalled(t, "WithTransaction", mock.Anything, mock.Anything)
	})

	t.Run("Mid-cascade failure surfaces TransactionAborted and stops the cascade", func(t *testing.T) {
		svc, m := newAdminService()
		chapterIDs := []uuid.UUID{uuid.New()}

		m.plots.On("GetByID", ctx, mock.Anything, plotID).Return(plot, nil).Once()
		m.tx.On("WithTransaction", ctx, mock.Anything).Return(nil).Once()
		m.chapters.On("IDsByPlot", ctx, mock.Anything, plotID).Return(chapterIDs, nil).Once()
		m.events.On("DeleteByChapters", ctx, mock.Anything, chapterIDs).Return(errors.New("db down")).Once()

		err := svc.DeletePlot(ctx, plotID)

		assert.True(t, errors.Is(err, models.ErrTransactionAborted))
		m.plots.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
		m.progress.AssertNotCalled(t, "DeleteByPlot", mock.Anything, mock.Anything, mock.Anything)
		m.cache.AssertNotCalled(t, "Invalidate", mock.Anything)
	})
}

func TestDeleteChapter(t *testing.T) {
	ctx := context.Background()
	chapterID := uuid.New()
	chapter := &models.StoryChapter{ID: chapterID, Title: "Chapter 1"}

	t.Run("Cascade clears events and progress references", func(t *testing.T) {
		svc, m := newAdminService()

		m.chapters.On("GetByID", ctx, mock.Anything, chapterID).Return(chapter, nil).Once()
		m.tx.On("WithTransaction", ctx, mock.Anything).Return(nil).Once()
		m.events.On("DeleteByChapter", ctx, mock.Anything, chapterID).Return(nil).Once()
		m.progress.On("ClearCurrentChapter", ctx, mock.Anything, chapterID).Return(nil).Once()
		m.progress.On("PullCompletedChapter", ctx, mock.Anything, chapterID).Return(nil).Once()
		m.chapters.On("Delete", ctx, mock.Anything, chapterID).Return(nil).Once()

		err := svc.DeleteChapter(ctx, chapterID)

		assert.NoError(t, err)
		m.events.AssertExpectations(t)
		m.progress.AssertExpectations(t)
		m.chapters.AssertExpectations(t)
	})
}

func TestDeleteEvent(t *testing.T) {
	ctx := context.Background()
	eventID := uuid.New()
	event := &models.StoryEvent{ID: eventID, Title: "E1"}

	t.Run("Repairs dangling references before deleting", func(t *testing.T) {
		svc, m := newAdminService()

		m.events.On("GetByID", ctx, mock.Anything, eventID).Return(event, nil).Once()
		m.events.On("ClearNextReferences", ctx, mock.Anything, eventID).Return(nil).Once()
		m.progress.On("ClearCurrentEvent", ctx, mock.Anything, eventID).Return(nil).Once()
		m.progress.On("PullCompletedEvent", ctx, mock.Anything, eventID).Return(nil).Once()
		m.events.On("Delete", ctx, mock.Anything, eventID).Return(nil).Once()

		err := svc.DeleteEvent(ctx, eventID)

		assert.NoError(t, err)
		m.events.AssertExpectations(t)
		m.progress.AssertExpectations(t)
		m.tx.AssertNotCalled(t, "WithTransaction", mock.Anything, mock.Anything)
	})

	t.Run("Missing event returns NotFound without repair", func(t *testing.T) {
		svc, m := newAdminService()

		m.events.On("GetByID", ctx, mock.Anything, eventID).Return(nil, models.ErrNotFound).Once()

		err := svc.DeleteEvent(ctx, eventID)

		assert.True(t, errors.Is(err, models.ErrNotFound))
		m.events.AssertNotCalled(t, "ClearNextReferences", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCreateEvent(t *testing.T) {
	ctx := context.Background()
	chapterID := uuid.New()
	chapter := &models.StoryChapter{ID: chapterID}

	t.Run("Rejects a dangling nextEventId with InvalidReference", func(t *testing.T) {
		svc, m := newAdminService()
		ghost := uuid.New()

		m.chapters.On("GetByID", ctx, mock.Anything, chapterID).Return(chapter, nil).Once()
		m.events.On("Exists", ctx, mock.Anything, ghost).Return(false, nil).Once()

		event, err := svc.CreateEvent(ctx, service.CreateEventInput{
			ChapterID:   chapterID,
			Title:       "E1",
			NextEventID: &ghost,
		})

		assert.Nil(t, event)
		assert.True(t, errors.Is(err, models.ErrInvalidReference))
		m.events.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Rejects a missing parent chapter with NotFound", func(t *testing.T) {
		svc, m := newAdminService()

		m.chapters.On("GetByID", ctx, mock.Anything, chapterID).Return(nil, models.ErrNotFound).Once()

		event, err := svc.CreateEvent(ctx, service.CreateEventInput{ChapterID: chapterID, Title: "E1"})

		assert.Nil(t, event)
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})

	t.Run("Defaults event type and trigger when omitted", func(t *testing.T) {
		svc, m := newAdminService()

		m.chapters.On("GetByID", ctx, mock.Anything, chapterID).Return(chapter, nil).Once()
		m.events.On("Create", ctx, mock.Anything, mock.MatchedBy(func(e *models.StoryEvent) bool {
			return e.EventType == models.EventTypeDialog &&
				e.TriggerCondition.Type == models.TriggerAuto &&
				e.IsActive
		})).Return(nil).Once()

		event, err := svc.CreateEvent(ctx, service.CreateEventInput{ChapterID: chapterID, Title: "E1"})

		assert.NoError(t, err)
		assert.NotNil(t, event)
		m.events.AssertExpectations(t)
	})
}

func TestGetProgressStats(t *testing.T) {
	ctx := context.Background()

	t.Run("Computes completion rate with two decimals and zero for empty plots", func(t *testing.T) {
		svc, m := newAdminService()
		plotA := models.StoryPlot{ID: uuid.New(), Title: "A"}
		plotB := models.StoryPlot{ID: uuid.New(), Title: "B"}

		m.plots.On("ListAll", ctx, mock.Anything).Return([]models.StoryPlot{plotA, plotB}, nil).Once()
		m.progress.On("CountByPlot", ctx, mock.Anything, plotA.ID).Return(3, nil).Once()
		m.progress.On("CountByPlotAndStatus", ctx, mock.Anything, plotA.ID, models.ProgressCompleted).Return(1, nil).Once()
		m.progress.On("CountByPlotAndStatus", ctx, mock.Anything, plotA.ID, models.ProgressInProgress).Return(1, nil).Once()
		m.progress.On("CountByPlot", ctx, mock.Anything, plotB.ID).Return(0, nil).Once()
		m.progress.On("CountByPlotAndStatus", ctx, mock.Anything, plotB.ID, models.ProgressCompleted).Return(0, nil).Once()
		m.progress.On("CountByPlotAndStatus", ctx, mock.Anything, plotB.ID, models.ProgressInProgress).Return(0, nil).Once()

		stats, err := svc.GetProgressStats(ctx)

		assert.NoError(t, err)
		assert.Len(t, stats, 2)
		assert.Equal(t, 3, stats[0].TotalUsers)
		assert.Equal(t, 1, stats[0].CompletedUsers)
		assert.Equal(t, 1, stats[0].InProgressUsers)
		assert.Equal(t, 1, stats[0].NotStartedUsers)
		assert.Equal(t, 33.33, stats[0].CompletionRate)
		assert.Equal(t, 0.0, stats[1].CompletionRate)
	})
}

func TestImportPlot(t *testing.T) {
	ctx := context.Background()

	t.Run("Re-ids the whole graph and rewrites forward references", func(t *testing.T) {
		svc, m := newAdminService()

		oldPlotID := uuid.New()
		oldChapterID := uuid.New()
		oldE1 := uuid.New()
		oldE2 := uuid.New()
		external := uuid.New() // ссылка за пределы снимка

		snapshot := models.StorySnapshot{
			Plot: models.StoryPlot{ID: oldPlotID, Title: "Intro"},
			Chapters: []models.StoryChapter{
				{ID: oldChapterID, PlotID: oldPlotID, Title: "C1"},
			},
			Events: []models.StoryEvent{
				{
					ID:        oldE1,
					ChapterID: oldChapterID,
					Title:     "E1",
					EventType: models.EventTypeMultiChoice,
					Content: models.EventContent{Choices: []models.EventChoice{
						{Text: "left", NextEventID: &oldE2},
						{Text: "out", NextEventID: &external},
					}},
					NextEventID: &oldE2,
				},
				{ID: oldE2, ChapterID: oldChapterID, Title: "E2"},
			},
		}

		var newPlotID, newChapterID uuid.UUID
		newEventIDs := map[uuid.UUID]uuid.UUID{} // old -> new

		m.tx.On("WithTransaction", ctx, mock.Anything).Return(nil).Once()
		m.plots.On("Create", ctx, mock.Anything, mock.MatchedBy(func(p *models.StoryPlot) bool {
			newPlotID = p.ID
			return p.ID != oldPlotID && p.Title == "Intro"
		})).Return(nil).Once()
		m.chapters.On("Create", ctx, mock.Anything, mock.MatchedBy(func(c *models.StoryChapter) bool {
			newChapterID = c.ID
			return c.ID != oldChapterID && c.PlotID == newPlotID
		})).Return(nil).Once()
		m.events.On("Create", ctx, mock.Anything, mock.MatchedBy(func(e *models.StoryEvent) bool {
			if e.Title == "E1" {
				newEventIDs[oldE1] = e.ID
			} else {
				newEventIDs[oldE2] = e.ID
			}
			// Первый проход вставляет события без ссылок вперёд
			return e.ChapterID == newChapterID && e.NextEventID == nil && len(e.Content.Choices) == 0
		})).Return(nil).Twice()
		m.events.On("UpdateReferences", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil).
			Run(func(args mock.Arguments) {
				id := args.Get(2).(uuid.UUID)
				next, _ := args.Get(3).(*uuid.UUID)
				content := args.Get(4).(models.EventContent)
				if id == newEventIDs[oldE1] {
					assert.NotNil(t, next)
					assert.Equal(t, newEventIDs[oldE2], *next)
					assert.Len(t, content.Choices, 2)
					assert.Equal(t, newEventIDs[oldE2], *content.Choices[0].NextEventID)
					// Неразрешимая ссылка обнуляется
					assert.Nil(t, content.Choices[1].NextEventID)
				} else {
					assert.Nil(t, next)
				}
			}).
			Twice()
		m.cache.On("Invalidate", ctx).Return(nil).Once()

		plotID, err := svc.ImportPlot(ctx, snapshot)

		assert.NoError(t, err)
		assert.Equal(t, newPlotID, plotID)
		assert.NotEqual(t, oldPlotID, plotID)
		m.plots.AssertExpectations(t)
		m.chapters.AssertExpectations(t)
		m.events.AssertExpectations(t)
	})

	t.Run("Event referencing a chapter outside the snapshot aborts the import", func(t *testing.T) {
		svc, m := newAdminService()

		snapshot := models.StorySnapshot{
			Plot: models.StoryPlot{ID: uuid.New(), Title: "Broken"},
			Events: []models.StoryEvent{
				{ID: uuid.New(), ChapterID: uuid.New(), Title: "Orphan"},
			},
		}

		m.tx.On("WithTransaction", ctx, mock.Anything).Return(nil).Once()
		m.plots.On("Create", ctx, mock.Anything, mock.Anything).Return(nil).Once()

		plotID, err := svc.ImportPlot(ctx, snapshot)

		assert.Equal(t, uuid.Nil, plotID)
		assert.True(t, errors.Is(err, service.ErrInvalidSnapshot))
		m.events.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		m.cache.AssertNotCalled(t, "Invalidate", mock.Anything)
	})
}

func TestExportPlot(t *testing.T) {
	ctx := context.Background()

	t.Run("Snapshot includes plot, all chapters and all their events", func(t *testing.T) {
		svc, m := newAdminService()
		plot := &models.StoryPlot{ID: uuid.New(), Title: "Intro"}
		chapters := []models.StoryChapter{
			{ID: uuid.New(), PlotID: plot.ID},
			{ID: uuid.New(), PlotID: plot.ID},
		}
		events := []models.StoryEvent{
			{ID: uuid.New(), ChapterID: chapters[0].ID},
			{ID: uuid.New(), ChapterID: chapters[1].ID},
		}

		m.plots.On("GetByID", ctx, mock.Anything, plot.ID).Return(plot, nil).Once()
		m.chapters.On("ListByPlot", ctx, mock.Anything, plot.ID, false).Return(chapters, nil).Once()
		m.events.On("ListByChapters", ctx, mock.Anything, []uuid.UUID{chapters[0].ID, chapters[1].ID}).
			Return(events, nil).Once()

		snapshot, err := svc.ExportPlot(ctx, plot.ID)

		assert.NoError(t, err)
		assert.Equal(t, *plot, snapshot.Plot)
		assert.Len(t, snapshot.Chapters, 2)
		assert.Len(t, snapshot.Events, 2)
	})
}
