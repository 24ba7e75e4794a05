package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/jlk1997/n-dog-b/internal/interfaces"
	"github.com/jlk1997/n-dog-b/internal/interfaces/mocks"
	"github.com/jlk1997/n-dog-b/internal/models"
	"github.com/jlk1997/n-dog-b/internal/service"
)

type playerMocks struct {
	plots     *mocks.PlotRepository
	chapters  *mocks.ChapterRepository
	events    *mocks.EventRepository
	progress  *mocks.ProgressRepository
	cache     *mocks.PlotCache
	publisher *mocks.ClientUpdatePublisher
}

func newPlayerService() (service.StoryPlayerService, *playerMocks) {
	m := &playerMocks{
		plots:     new(mocks.PlotRepository),
		chapters:  new(mocks.ChapterRepository),
		events:    new(mocks.EventRepository),
		progress:  new(mocks.ProgressRepository),
		cache:     new(mocks.PlotCache),
		publisher: new(mocks.ClientUpdatePublisher),
	}
	svc := service.NewStoryPlayerService(nil, m.plots, m.chapters, m.events, m.progress, m.cache, m.publisher, zap.NewNop())
	return svc, m
}

func inProgressRecord(userID, plotID uuid.UUID, chapterID, eventID *uuid.UUID) *models.UserStoryProgress {
	return &models.UserStoryProgress{
		ID:                uuid.New(),
		UserID:            userID,
		PlotID:            plotID,
		CurrentChapterID:  chapterID,
		CurrentEventID:    eventID,
		CompletedChapters: []uuid.UUID{},
		CompletedEvents:   []uuid.UUID{},
		Status:            models.ProgressInProgress,
	}
}

func TestListPlots(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Cache miss falls back to store and populates the cache", func(t *testing.T) {
		svc, m := newPlayerService()
		plots := []models.StoryPlot{{ID: uuid.New(), Title: "Intro", IsActive: true}}

		m.cache.On("GetActivePlots", ctx).Return(nil, models.ErrNotFound).Once()
		m.plots.On("ListActive", ctx, mock.Anything).Return(plots, nil).Once()
		m.cache.On("SetActivePlots", ctx, plots).Return(nil).Once()
		m.progress.On("ListByUser", ctx, mock.Anything, userID).Return(nil, nil).Once()

		items, err := svc.ListPlots(ctx, userID)

		assert.NoError(t, err)
		assert.Len(t, items, 1)
		assert.Equal(t, models.ProgressNotStarted, items[0].Status)
		assert.Nil(t, items[0].Progress)
		m.cache.AssertExpectations(t)
	})

	t.Run("Merges progress summary for started plots", func(t *testing.T) {
		svc, m := newPlayerService()
		plotID := uuid.New()
		plots := []models.StoryPlot{{ID: plotID, Title: "Intro"}}
		chapterID := uuid.New()
		records := []models.UserStoryProgress{{
			PlotID:            plotID,
			Status:            models.ProgressInProgress,
			CompletedChapters: []uuid.UUID{chapterID},
			CompletedEvents:   []uuid.UUID{uuid.New(), uuid.New()},
		}}

		m.cache.On("GetActivePlots", ctx).Return(plots, nil).Once()
		m.progress.On("ListByUser", ctx, mock.Anything, userID).Return(records, nil).Once()

		items, err := svc.ListPlots(ctx, userID)

		assert.NoError(t, err)
		assert.Equal(t, models.ProgressInProgress, items[0].Status)
		assert.Equal(t, 1, items[0].Progress.CompletedChapters)
		assert.Equal(t, 2, items[0].Progress.CompletedEvents)
		m.plots.AssertNotCalled(t, "ListActive", mock.Anything, mock.Anything)
	})
}

func TestListChapters(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	plotID := uuid.New()
	plot := &models.StoryPlot{ID: plotID, IsActive: true}

	t.Run("Lazily creates a NOT_STARTED progress record on first view", func(t *testing.T) {
		svc, m := newPlayerService()
		chapters := []models.StoryChapter{{ID: uuid.New(), PlotID: plotID, Title: "C1"}}

		m.plots.On("GetActiveByID", ctx, mock.Anything, plotID).Return(plot, nil).Once()
		m.chapters.On("ListByPlot", ctx, mock.Anything, plotID, true).Return(chapters, nil).Once()
		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(nil, models.ErrNotFound).Once()
		m.progress.On("Create", ctx, mock.Anything, mock.MatchedBy(func(p *models.UserStoryProgress) bool {
			return p.Status == models.ProgressNotStarted && p.StartedAt == nil
		})).Return(nil).Once()

		result, err := svc.ListChapters(ctx, userID, plotID)

		assert.NoError(t, err)
		assert.Equal(t, models.ProgressNotStarted, result.Progress.Status)
		assert.True(t, result.Chapters[0].IsAvailable)
		m.progress.AssertExpectations(t)
	})

	t.Run("Chapter gated by previousChapter is unavailable until it completes", func(t *testing.T) {
		svc, m := newPlayerService()
		c1 := uuid.New()
		c2 := uuid.New()
		chapters := []models.StoryChapter{
			{ID: c1, PlotID: plotID, Title: "C1"},
			{ID: c2, PlotID: plotID, Title: "C2", Requirement: models.ChapterRequirement{PreviousChapter: &c1}},
		}
		record := inProgressRecord(userID, plotID, &c1, nil)

		m.plots.On("GetActiveByID", ctx, mock.Anything, plotID).Return(plot, nil).Once()
		m.chapters.On("ListByPlot", ctx, mock.Anything, plotID, true).Return(chapters, nil).Once()
		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(record, nil).Once()

		result, err := svc.ListChapters(ctx, userID, plotID)

		assert.NoError(t, err)
		assert.Equal(t, models.ProgressInProgress, result.Chapters[0].Status)
		assert.True(t, result.Chapters[0].IsAvailable)
		assert.False(t, result.Chapters[1].IsAvailable)
	})
}

func TestStartPlot(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	plotID := uuid.New()
	plot := &models.StoryPlot{ID: plotID, Title: "Intro", IsActive: true}
	chapter := &models.StoryChapter{ID: uuid.New(), PlotID: plotID, Title: "C1", IsActive: true}
	event := &models.StoryEvent{ID: uuid.New(), ChapterID: chapter.ID, Title: "E1", IsActive: true}

	t.Run("First start positions at the first chapter and event", func(t *testing.T) {
		svc, m := newPlayerService()

		m.plots.On("GetActiveByID", ctx, mock.Anything, plotID).Return(plot, nil).Once()
		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(nil, models.ErrNotFound).Once()
		m.chapters.On("FirstActiveByPlot", ctx, mock.Anything, plotID).Return(chapter, nil).Once()
		m.events.On("FirstActiveByChapter", ctx, mock.Anything, chapter.ID).Return(event, nil).Once()
		m.progress.On("Create", ctx, mock.Anything, mock.MatchedBy(func(p *models.UserStoryProgress) bool {
			return p.Status == models.ProgressInProgress &&
				p.StartedAt != nil &&
				*p.CurrentChapterID == chapter.ID &&
				*p.CurrentEventID == event.ID
		})).Return(nil).Once()

		result, err := svc.StartPlot(ctx, userID, plotID, false)

		assert.NoError(t, err)
		assert.False(t, result.IsCompleted)
		assert.Equal(t, event.ID, result.CurrentEvent.ID)
		assert.Equal(t, chapter.ID, result.Chapter.ID)
		m.progress.AssertExpectations(t)
	})

	t.Run("Completed plot without restart returns as-is without mutation", func(t *testing.T) {
		svc, m := newPlayerService()
		record := inProgressRecord(userID, plotID, nil, nil)
		record.Status = models.ProgressCompleted

		m.plots.On("GetActiveByID", ctx, mock.Anything, plotID).Return(plot, nil).Once()
		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(record, nil).Once()

		result, err := svc.StartPlot(ctx, userID, plotID, false)

		assert.NoError(t, err)
		assert.True(t, result.IsCompleted)
		m.progress.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Restart resets completion sets and timestamps but keeps the choice log", func(t *testing.T) {
		svc, m := newPlayerService()
		rec := record(userID, plotID)
		rec.Status = models.ProgressCompleted
		rec.CompletedChapters = []uuid.UUID{uuid.New()}
		rec.CompletedEvents = []uuid.UUID{uuid.New(), uuid.New()}
		rec.UserChoices = []models.UserChoice{{EventID: uuid.New(), ChoiceIndex: 1}}

		m.plots.On("GetActiveByID", ctx, mock.Anything, plotID).Return(plot, nil).Once()
		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(rec, nil).Once()
		m.chapters.On("FirstActiveByPlot", ctx, mock.Anything, plotID).Return(chapter, nil).Once()
		m.events.On("FirstActiveByChapter", ctx, mock.Anything, chapter.ID).Return(event, nil).Once()
		m.progress.On("Update", ctx, mock.Anything, mock.MatchedBy(func(p *models.UserStoryProgress) bool {
			return p.Status == models.ProgressInProgress &&
				len(p.CompletedChapters) == 0 &&
				len(p.CompletedEvents) == 0 &&
				p.CompletedAt == nil &&
				len(p.UserChoices) == 1 &&
				*p.CurrentEventID == event.ID
		})).Return(nil).Once()

		result, err := svc.StartPlot(ctx, userID, plotID, true)

		assert.NoError(t, err)
		assert.False(t, result.IsCompleted)
		assert.Len(t, result.Progress.UserChoices, 1)
		m.progress.AssertExpectations(t)
	})

	t.Run("Stalled progress is re-derived from the current chapter", func(t *testing.T) {
		svc, m := newPlayerService()
		stalled := inProgressRecord(userID, plotID, &chapter.ID, nil)

		m.plots.On("GetActiveByID", ctx, mock.Anything, plotID).Return(plot, nil).Once()
		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(stalled, nil).Once()
		m.chapters.On("GetByID", ctx, mock.Anything, chapter.ID).Return(chapter, nil).Once()
		m.events.On("FirstActiveByChapter", ctx, mock.Anything, chapter.ID).Return(event, nil).Once()
		m.progress.On("Update", ctx, mock.Anything, mock.MatchedBy(func(p *models.UserStoryProgress) bool {
			return p.CurrentEventID != nil && *p.CurrentEventID == event.ID
		})).Return(nil).Once()

		result, err := svc.StartPlot(ctx, userID, plotID, false)

		assert.NoError(t, err)
		assert.Equal(t, event.ID, result.CurrentEvent.ID)
		m.progress.AssertExpectations(t)
	})
}

// record строит чистую запись прогресса для тестов рестарта.
func record(userID, plotID uuid.UUID) *models.UserStoryProgress {
	return inProgressRecord(userID, plotID, nil, nil)
}

func TestGetCurrentEvent(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	plotID := uuid.New()

	t.Run("Returns NotStarted before any start call", func(t *testing.T) {
		svc, m := newPlayerService()

		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(nil, models.ErrNotFound).Once()

		result, err := svc.GetCurrentEvent(ctx, userID, plotID)

		assert.Nil(t, result)
		assert.True(t, errors.Is(err, models.ErrNotStarted))
	})

	t.Run("Returns NotStarted for stalled progress", func(t *testing.T) {
		svc, m := newPlayerService()
		stalled := inProgressRecord(userID, plotID, nil, nil)

		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(stalled, nil).Once()

		result, err := svc.GetCurrentEvent(ctx, userID, plotID)

		assert.Nil(t, result)
		assert.True(t, errors.Is(err, models.ErrNotStarted))
	})

	t.Run("Annotates the event with its chapter title", func(t *testing.T) {
		svc, m := newPlayerService()
		chapter := &models.StoryChapter{ID: uuid.New(), Title: "C1"}
		event := &models.StoryEvent{ID: uuid.New(), ChapterID: chapter.ID, Title: "E1"}
		rec := inProgressRecord(userID, plotID, &chapter.ID, &event.ID)

		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(rec, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, event.ID).Return(event, nil).Once()
		m.chapters.On("GetByID", ctx, mock.Anything, chapter.ID).Return(chapter, nil).Once()

		result, err := svc.GetCurrentEvent(ctx, userID, plotID)

		assert.NoError(t, err)
		assert.Equal(t, "C1", result.ChapterTitle)
		assert.Equal(t, event.ID, result.CurrentEvent.ID)
	})
}

func TestCompleteEvent(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	plotID := uuid.New()
	chapterID := uuid.New()

	t.Run("Stale eventId returns InvalidState without mutation", func(t *testing.T) {
		svc, m := newPlayerService()
		current := uuid.New()
		rec := inProgressRecord(userID, plotID, &chapterID, &current)

		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(rec, nil).Once()

		result, err := svc.CompleteEvent(ctx, userID, plotID, uuid.New(), nil)

		assert.Nil(t, result)
		assert.True(t, errors.Is(err, models.ErrInvalidState))
		m.progress.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
		m.events.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Linear successor advances the cursor within the chapter", func(t *testing.T) {
		svc, m := newPlayerService()
		next := &models.StoryEvent{ID: uuid.New(), ChapterID: chapterID, Title: "E2"}
		event := &models.StoryEvent{ID: uuid.New(), ChapterID: chapterID, Title: "E1", NextEventID: &next.ID}
		rec := inProgressRecord(userID, plotID, &chapterID, &event.ID)

		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(rec, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, event.ID).Return(event, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, next.ID).Return(next, nil).Once()
		m.progress.On("Update", ctx, mock.Anything, mock.MatchedBy(func(p *models.UserStoryProgress) bool {
			return *p.CurrentEventID == next.ID && p.HasCompletedEvent(event.ID)
		})).Return(nil).Once()

		result, err := svc.CompleteEvent(ctx, userID, plotID, event.ID, nil)

		assert.NoError(t, err)
		assert.Equal(t, service.OutcomeNextEvent, result.Outcome)
		assert.Equal(t, next.ID, result.NextEvent.ID)
		m.progress.AssertExpectations(t)
	})

	t.Run("Completing an already completed event keeps the set deduplicated", func(t *testing.T) {
		svc, m := newPlayerService()
		next := &models.StoryEvent{ID: uuid.New(), ChapterID: chapterID}
		event := &models.StoryEvent{ID: uuid.New(), ChapterID: chapterID, NextEventID: &next.ID}
		rec := inProgressRecord(userID, plotID, &chapterID, &event.ID)
		rec.CompletedEvents = []uuid.UUID{event.ID}

		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(rec, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, event.ID).Return(event, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, next.ID).Return(next, nil).Once()
		m.progress.On("Update", ctx, mock.Anything, mock.MatchedBy(func(p *models.UserStoryProgress) bool {
			count := 0
			for _, id := range p.CompletedEvents {
				if id == event.ID {
					count++
				}
			}
			return count == 1
		})).Return(nil).Once()

		_, err := svc.CompleteEvent(ctx, userID, plotID, event.ID, nil)

		assert.NoError(t, err)
		m.progress.AssertExpectations(t)
	})

	t.Run("MULTI_CHOICE resolves the chosen branch and logs the choice", func(t *testing.T) {
		svc, m := newPlayerService()
		left := &models.StoryEvent{ID: uuid.New(), ChapterID: chapterID}
		right := &models.StoryEvent{ID: uuid.New(), ChapterID: chapterID}
		ownNext := uuid.New() // игнорируется при валидном выборе
		event := &models.StoryEvent{
			ID:          uuid.New(),
			ChapterID:   chapterID,
			EventType:   models.EventTypeMultiChoice,
			NextEventID: &ownNext,
			Content: models.EventContent{Choices: []models.EventChoice{
				{Text: "go left", NextEventID: &left.ID},
				{Text: "go right", NextEventID: &right.ID},
			}},
		}
		rec := inProgressRecord(userID, plotID, &chapterID, &event.ID)
		choiceIndex := 1

		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(rec, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, event.ID).Return(event, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, right.ID).Return(right, nil).Once()
		m.progress.On("Update", ctx, mock.Anything, mock.MatchedBy(func(p *models.UserStoryProgress) bool {
			return *p.CurrentEventID == right.ID &&
				len(p.UserChoices) == 1 &&
				p.UserChoices[0].EventID == event.ID &&
				p.UserChoices[0].ChoiceIndex == 1
		})).Return(nil).Once()

		result, err := svc.CompleteEvent(ctx, userID, plotID, event.ID, &choiceIndex)

		assert.NoError(t, err)
		assert.Equal(t, right.ID, result.NextEvent.ID)
		m.progress.AssertExpectations(t)
	})

	t.Run("Out-of-range choiceIndex silently falls back to the event's own successor", func(t *testing.T) {
		svc, m := newPlayerService()
		fallback := &models.StoryEvent{ID: uuid.New(), ChapterID: chapterID}
		event := &models.StoryEvent{
			ID:          uuid.New(),
			ChapterID:   chapterID,
			EventType:   models.EventTypeMultiChoice,
			NextEventID: &fallback.ID,
			Content: models.EventContent{Choices: []models.EventChoice{
				{Text: "only", NextEventID: nil},
			}},
		}
		rec := inProgressRecord(userID, plotID, &chapterID, &event.ID)
		choiceIndex := 5

		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(rec, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, event.ID).Return(event, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, fallback.ID).Return(fallback, nil).Once()
		m.progress.On("Update", ctx, mock.Anything, mock.MatchedBy(func(p *models.UserStoryProgress) bool {
			return *p.CurrentEventID == fallback.ID && len(p.UserChoices) == 0
		})).Return(nil).Once()

		result, err := svc.CompleteEvent(ctx, userID, plotID, event.ID, &choiceIndex)

		assert.NoError(t, err)
		assert.Equal(t, fallback.ID, result.NextEvent.ID)
	})

	t.Run("Exhausted chapter advances to the next chapter's first event", func(t *testing.T) {
		svc, m := newPlayerService()
		event := &models.StoryEvent{ID: uuid.New(), ChapterID: chapterID, Title: "E2"}
		nextChapter := &models.StoryChapter{ID: uuid.New(), PlotID: plotID, Title: "C2"}
		firstEvent := &models.StoryEvent{ID: uuid.New(), ChapterID: nextChapter.ID, Title: "E3"}
		rec := inProgressRecord(userID, plotID, &chapterID, &event.ID)
		rec.CompletedEvents = []uuid.UUID{uuid.New()} // E1 уже завершено

		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(rec, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, event.ID).Return(event, nil).Once()
		m.events.On("CountRemaining", ctx, mock.Anything, chapterID, mock.Anything).Return(0, nil).Once()
		m.chapters.On("NextUncompleted", ctx, mock.Anything, plotID, mock.Anything).Return(nextChapter, nil).Once()
		m.events.On("FirstActiveByChapter", ctx, mock.Anything, nextChapter.ID).Return(firstEvent, nil).Once()
		m.progress.On("Update", ctx, mock.Anything, mock.MatchedBy(func(p *models.UserStoryProgress) bool {
			return p.HasCompletedChapter(chapterID) &&
				*p.CurrentChapterID == nextChapter.ID &&
				*p.CurrentEventID == firstEvent.ID
		})).Return(nil).Once()

		result, err := svc.CompleteEvent(ctx, userID, plotID, event.ID, nil)

		assert.NoError(t, err)
		assert.Equal(t, service.OutcomeChapterAdvanced, result.Outcome)
		assert.Equal(t, "C2", result.ChapterTitle)
		assert.Equal(t, firstEvent.ID, result.NextEvent.ID)
	})

	t.Run("Last event of the last chapter completes the plot and publishes", func(t *testing.T) {
		svc, m := newPlayerService()
		event := &models.StoryEvent{ID: uuid.New(), ChapterID: chapterID, Title: "E3"}
		rec := inProgressRecord(userID, plotID, &chapterID, &event.ID)
		plot := &models.StoryPlot{ID: plotID, Title: "Intro"}

		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(rec, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, event.ID).Return(event, nil).Once()
		m.events.On("CountRemaining", ctx, mock.Anything, chapterID, mock.Anything).Return(0, nil).Once()
		m.chapters.On("NextUncompleted", ctx, mock.Anything, plotID, mock.Anything).Return(nil, models.ErrNotFound).Once()
		m.progress.On("Update", ctx, mock.Anything, mock.MatchedBy(func(p *models.UserStoryProgress) bool {
			return p.Status == models.ProgressCompleted &&
				p.CompletedAt != nil &&
				p.CurrentEventID == nil
		})).Return(nil).Once()
		m.plots.On("GetByID", ctx, mock.Anything, plotID).Return(plot, nil).Once()
		m.publisher.On("PublishPlotCompleted", ctx, mock.MatchedBy(func(payload interfaces.PlotCompletedUpdate) bool {
			return payload.UserID == userID && payload.PlotID == plotID && payload.PlotTitle == "Intro"
		})).Return(nil).Once()

		result, err := svc.CompleteEvent(ctx, userID, plotID, event.ID, nil)

		assert.NoError(t, err)
		assert.Equal(t, service.OutcomePlotCompleted, result.Outcome)
		assert.NotNil(t, result.CompletedAt)
		m.publisher.AssertExpectations(t)
	})

	t.Run("Empty next chapter completes the plot", func(t *testing.T) {
		svc, m := newPlayerService()
		event := &models.StoryEvent{ID: uuid.New(), ChapterID: chapterID}
		emptyChapter := &models.StoryChapter{ID: uuid.New(), PlotID: plotID, Title: "C2"}
		rec := inProgressRecord(userID, plotID, &chapterID, &event.ID)
		plot := &models.StoryPlot{ID: plotID, Title: "Intro"}

		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(rec, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, event.ID).Return(event, nil).Once()
		m.events.On("CountRemaining", ctx, mock.Anything, chapterID, mock.Anything).Return(0, nil).Once()
		m.chapters.On("NextUncompleted", ctx, mock.Anything, plotID, mock.Anything).Return(emptyChapter, nil).Once()
		m.events.On("FirstActiveByChapter", ctx, mock.Anything, emptyChapter.ID).Return(nil, models.ErrNotFound).Once()
		m.progress.On("Update", ctx, mock.Anything, mock.MatchedBy(func(p *models.UserStoryProgress) bool {
			return p.Status == models.ProgressCompleted &&
				p.CompletedAt != nil &&
				p.CurrentEventID == nil
		})).Return(nil).Once()
		m.plots.On("GetByID", ctx, mock.Anything, plotID).Return(plot, nil).Once()
		m.publisher.On("PublishPlotCompleted", ctx, mock.Anything).Return(nil).Once()

		result, err := svc.CompleteEvent(ctx, userID, plotID, event.ID, nil)

		assert.NoError(t, err)
		assert.Equal(t, service.OutcomePlotCompleted, result.Outcome)
		m.progress.AssertExpectations(t)
		m.publisher.AssertExpectations(t)
	})

	t.Run("Publish failure does not fail the player call", func(t *testing.T) {
		svc, m := newPlayerService()
		event := &models.StoryEvent{ID: uuid.New(), ChapterID: chapterID}
		rec := inProgressRecord(userID, plotID, &chapterID, &event.ID)

		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(rec, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, event.ID).Return(event, nil).Once()
		m.events.On("CountRemaining", ctx, mock.Anything, chapterID, mock.Anything).Return(0, nil).Once()
		m.chapters.On("NextUncompleted", ctx, mock.Anything, plotID, mock.Anything).Return(nil, models.ErrNotFound).Once()
		m.progress.On("Update", ctx, mock.Anything, mock.Anything).Return(nil).Once()
		m.plots.On("GetByID", ctx, mock.Anything, plotID).Return(nil, models.ErrNotFound).Once()
		m.publisher.On("PublishPlotCompleted", ctx, mock.Anything).Return(errors.New("broker down")).Once()

		result, err := svc.CompleteEvent(ctx, userID, plotID, event.ID, nil)

		assert.NoError(t, err)
		assert.Equal(t, service.OutcomePlotCompleted, result.Outcome)
	})

	t.Run("Terminal branch with events remaining stalls the progress", func(t *testing.T) {
		svc, m := newPlayerService()
		event := &models.StoryEvent{ID: uuid.New(), ChapterID: chapterID}
		rec := inProgressRecord(userID, plotID, &chapterID, &event.ID)

		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(rec, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, event.ID).Return(event, nil).Once()
		m.events.On("CountRemaining", ctx, mock.Anything, chapterID, mock.Anything).Return(2, nil).Once()
		m.progress.On("Update", ctx, mock.Anything, mock.MatchedBy(func(p *models.UserStoryProgress) bool {
			return p.CurrentEventID == nil && p.Status == models.ProgressInProgress
		})).Return(nil).Once()

		result, err := svc.CompleteEvent(ctx, userID, plotID, event.ID, nil)

		assert.NoError(t, err)
		assert.Equal(t, service.OutcomeEventCompleted, result.Outcome)
		assert.Equal(t, 2, result.RemainingEventsCount)
	})

	t.Run("Cross-chapter successor completes the old chapter", func(t *testing.T) {
		svc, m := newPlayerService()
		otherChapter := &models.StoryChapter{ID: uuid.New(), PlotID: plotID, Title: "C2"}
		next := &models.StoryEvent{ID: uuid.New(), ChapterID: otherChapter.ID}
		event := &models.StoryEvent{ID: uuid.New(), ChapterID: chapterID, NextEventID: &next.ID}
		rec := inProgressRecord(userID, plotID, &chapterID, &event.ID)

		m.progress.On("GetByUserAndPlot", ctx, mock.Anything, userID, plotID).Return(rec, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, event.ID).Return(event, nil).Once()
		m.events.On("GetByID", ctx, mock.Anything, next.ID).Return(next, nil).Once()
		m.chapters.On("GetByID", ctx, mock.Anything, otherChapter.ID).Return(otherChapter, nil).Once()
		m.progress.On("Update", ctx, mock.Anything, mock.MatchedBy(func(p *models.UserStoryProgress) bool {
			return p.HasCompletedChapter(chapterID) && *p.CurrentChapterID == otherChapter.ID
		})).Return(nil).Once()

		result, err := svc.CompleteEvent(ctx, userID, plotID, event.ID, nil)

		assert.NoError(t, err)
		assert.Equal(t, service.OutcomeChapterAdvanced, result.Outcome)
		assert.Equal(t, "C2", result.ChapterTitle)
	})
}
