package interfaces

import (
	"context"

	"github.com/google/uuid"

	"github.com/jlk1997/n-dog-b/internal/models"
)

// PlotRepository defines the interface for interacting with story plot data.
type PlotRepository interface {
	Create(ctx context.Context, querier DBTX, plot *models.StoryPlot) error

	// GetByID retrieves a plot regardless of its active flag.
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.StoryPlot, error)

	// GetActiveByID retrieves a plot only if it is active.
	GetActiveByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.StoryPlot, error)

	Update(ctx context.Context, querier DBTX, plot *models.StoryPlot) error

	Delete(ctx context.Context, querier DBTX, id uuid.UUID) error

	// ListAll returns every plot in the admin ordering
	// (isMainStory DESC, sortOrder ASC, createdAt DESC).
	ListAll(ctx context.Context, querier DBTX) ([]models.StoryPlot, error)

	// ListActive returns active plots in the player ordering
	// (isMainStory DESC, sortOrder ASC).
	ListActive(ctx context.Context, querier DBTX) ([]models.StoryPlot, error)
}

// ChapterRepository defines the interface for interacting with story chapter data.
type ChapterRepository interface {
	Create(ctx context.Context, querier DBTX, chapter *models.StoryChapter) error

	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.StoryChapter, error)

	Update(ctx context.Context, querier DBTX, chapter *models.StoryChapter) error

	Delete(ctx context.Context, querier DBTX, id uuid.UUID) error

	// ListByPlot returns the chapters of a plot ordered by sortOrder.
	ListByPlot(ctx context.Context, querier DBTX, plotID uuid.UUID, activeOnly bool) ([]models.StoryChapter, error)

	// FirstActiveByPlot returns the active chapter with the lowest sortOrder,
	// or models.ErrNotFound when the plot has no active chapters.
	FirstActiveByPlot(ctx context.Context, querier DBTX, plotID uuid.UUID) (*models.StoryChapter, error)

	// NextUncompleted returns the active chapter with the lowest sortOrder
	// whose id is not in completed, or models.ErrNotFound.
	NextUncompleted(ctx context.Context, querier DBTX, plotID uuid.UUID, completed []uuid.UUID) (*models.StoryChapter, error)

	// IDsByPlot returns the ids of every chapter of a plot, active or not.
	IDsByPlot(ctx context.Context, querier DBTX, plotID uuid.UUID) ([]uuid.UUID, error)

	DeleteByPlot(ctx context.Context, querier DBTX, plotID uuid.UUID) error
}

// EventRepository defines the interface for interacting with story event data.
type EventRepository interface {
	Create(ctx context.Context, querier DBTX, event *models.StoryEvent) error

	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.StoryEvent, error)

	Update(ctx context.Context, querier DBTX, event *models.StoryEvent) error

	Delete(ctx context.Context, querier DBTX, id uuid.UUID) error

	Exists(ctx context.Context, querier DBTX, id uuid.UUID) (bool, error)

	// ListByChapter returns the events of a chapter ordered by sortOrder.
	ListByChapter(ctx context.Context, querier DBTX, chapterID uuid.UUID, activeOnly bool) ([]models.StoryEvent, error)

	// ListByChapters returns every event belonging to any of the chapters.
	ListByChapters(ctx context.Context, querier DBTX, chapterIDs []uuid.UUID) ([]models.StoryEvent, error)

	// FirstActiveByChapter returns the active event with the lowest sortOrder,
	// or models.ErrNotFound when the chapter has no active events.
	FirstActiveByChapter(ctx context.Context, querier DBTX, chapterID uuid.UUID) (*models.StoryEvent, error)

	// CountRemaining counts active events of the chapter whose id is not
	// in completed.
	CountRemaining(ctx context.Context, querier DBTX, chapterID uuid.UUID, completed []uuid.UUID) (int, error)

	// ClearNextReferences nulls next_event_id on every event pointing at eventID.
	ClearNextReferences(ctx context.Context, querier DBTX, eventID uuid.UUID) error

	// UpdateReferences rewrites the forward references of one event:
	// its next_event_id and the choice targets embedded in content.
	UpdateReferences(ctx context.Context, querier DBTX, id uuid.UUID, next *uuid.UUID, content models.EventContent) error

	DeleteByChapter(ctx context.Context, querier DBTX, chapterID uuid.UUID) error

	DeleteByChapters(ctx context.Context, querier DBTX, chapterIDs []uuid.UUID) error
}

// ProgressRepository defines the interface for interacting with per-user
// story progress records.
type ProgressRepository interface {
	Create(ctx context.Context, querier DBTX, progress *models.UserStoryProgress) error

	// GetByUserAndPlot returns models.ErrNotFound when no record exists.
	GetByUserAndPlot(ctx context.Context, querier DBTX, userID, plotID uuid.UUID) (*models.UserStoryProgress, error)

	// Update persists the mutable traversal state of an existing record.
	Update(ctx context.Context, querier DBTX, progress *models.UserStoryProgress) error

	ListByUser(ctx context.Context, querier DBTX, userID uuid.UUID) ([]models.UserStoryProgress, error)

	DeleteByPlot(ctx context.Context, querier DBTX, plotID uuid.UUID) error

	// ClearCurrentChapter nulls current_chapter_id on every record pointing
	// at chapterID.
	ClearCurrentChapter(ctx context.Context, querier DBTX, chapterID uuid.UUID) error

	// PullCompletedChapter removes chapterID from every completed_chapters set.
	PullCompletedChapter(ctx context.Context, querier DBTX, chapterID uuid.UUID) error

	// ClearCurrentEvent nulls current_event_id on every record pointing
	// at eventID, leaving those records stalled.
	ClearCurrentEvent(ctx context.Context, querier DBTX, eventID uuid.UUID) error

	// PullCompletedEvent removes eventID from every completed_events set.
	PullCompletedEvent(ctx context.Context, querier DBTX, eventID uuid.UUID) error

	CountByPlot(ctx context.Context, querier DBTX, plotID uuid.UUID) (int, error)

	CountByPlotAndStatus(ctx context.Context, querier DBTX, plotID uuid.UUID, status models.ProgressStatus) (int, error)
}
