package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/jlk1997/n-dog-b/internal/interfaces"
	"github.com/jlk1997/n-dog-b/internal/models"
)

// Compile-time check
var _ interfaces.ProgressRepository = (*pgProgressRepository)(nil)

const progressColumns = `id, user_id, plot_id, current_chapter_id, current_event_id, completed_chapters, completed_events, status, started_at, completed_at, user_choices, created_at, updated_at`

type pgProgressRepository struct {
	logger *zap.Logger
}

// NewPgProgressRepository creates a new PostgreSQL-backed ProgressRepository.
func NewPgProgressRepository(logger *zap.Logger) interfaces.ProgressRepository {
	return &pgProgressRepository{logger: logger.Named("PgProgressRepo")}
}

func scanProgressFields(dest *models.UserStoryProgress, row interface{ Scan(...any) error }) error {
	var choicesJSON []byte
	err := row.Scan(
		&dest.ID, &dest.UserID, &dest.PlotID,
		&dest.CurrentChapterID, &dest.CurrentEventID,
		&dest.CompletedChapters, &dest.CompletedEvents,
		&dest.Status, &dest.StartedAt, &dest.CompletedAt,
		&choicesJSON, &dest.CreatedAt, &dest.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if len(choicesJSON) > 0 {
		if err := json.Unmarshal(choicesJSON, &dest.UserChoices); err != nil {
			return fmt.Errorf("ошибка разбора user_choices прогресса %s: %w", dest.ID, err)
		}
	}
	if dest.CompletedChapters == nil {
		dest.CompletedChapters = []uuid.UUID{}
	}
	if dest.CompletedEvents == nil {
		dest.CompletedEvents = []uuid.UUID{}
	}
	return nil
}

func marshalUserChoices(progress *models.UserStoryProgress) ([]byte, error) {
	choices := progress.UserChoices
	if choices == nil {
		choices = []models.UserChoice{}
	}
	data, err := json.Marshal(choices)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации user_choices прогресса %s: %w", progress.ID, err)
	}
	return data, nil
}

func (r *pgProgressRepository) Create(ctx context.Context, querier interfaces.DBTX, progress *models.UserStoryProgress) error {
	query := `
        INSERT INTO user_story_progress
            (` + progressColumns + `)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `
	logFields := []zap.Field{
		zap.Stringer("userID", progress.UserID),
		zap.String("plotID", progress.PlotID.String()),
	}

	choicesJSON, err := marshalUserChoices(progress)
	if err != nil {
		return err
	}

	completedChapters := progress.CompletedChapters
	if completedChapters == nil {
		completedChapters = []uuid.UUID{}
	}
	completedEvents := progress.CompletedEvents
	if completedEvents == nil {
		completedEvents = []uuid.UUID{}
	}

	_, err = querier.Exec(ctx, query,
		progress.ID, progress.UserID, progress.PlotID,
		progress.CurrentChapterID, progress.CurrentEventID,
		completedChapters, completedEvents,
		progress.Status, progress.StartedAt, progress.CompletedAt,
		choicesJSON, progress.CreatedAt, progress.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create progress record", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка создания прогресса: %w", err)
	}
	r.logger.Info("Progress record created", logFields...)
	return nil
}

func (r *pgProgressRepository) GetByUserAndPlot(ctx context.Context, querier interfaces.DBTX, userID, plotID uuid.UUID) (*models.UserStoryProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM user_story_progress WHERE user_id = $1 AND plot_id = $2`

	progress := &models.UserStoryProgress{}
	err := scanProgressFields(progress, querier.QueryRow(ctx, query, userID, plotID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get progress",
			zap.Stringer("userID", userID), zap.String("plotID", plotID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения прогресса user %s plot %s: %w", userID, plotID, err)
	}
	return progress, nil
}

func (r *pgProgressRepository) Update(ctx context.Context, querier interfaces.DBTX, progress *models.UserStoryProgress) error {
	query := `
        UPDATE user_story_progress SET
            current_chapter_id = $1, current_event_id = $2,
            completed_chapters = $3, completed_events = $4,
            status = $5, started_at = $6, completed_at = $7,
            user_choices = $8, updated_at = $9
        WHERE id = $10
    `
	logFields := []zap.Field{
		zap.String("progressID", progress.ID.String()),
		zap.Stringer("userID", progress.UserID),
	}

	choicesJSON, err := marshalUserChoices(progress)
	if err != nil {
		return err
	}

	commandTag, err := querier.Exec(ctx, query,
		progress.CurrentChapterID, progress.CurrentEventID,
		progress.CompletedChapters, progress.CompletedEvents,
		progress.Status, progress.StartedAt, progress.CompletedAt,
		choicesJSON, time.Now().UTC(), progress.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update progress", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка обновления прогресса %s: %w", progress.ID, err)
	}
	if commandTag.RowsAffected() == 0 {
		r.logger.Warn("Attempted to update non-existent progress record", logFields...)
		return models.ErrNotFound
	}
	return nil
}

func (r *pgProgressRepository) ListByUser(ctx context.Context, querier interfaces.DBTX, userID uuid.UUID) ([]models.UserStoryProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM user_story_progress WHERE user_id = $1`

	rows, err := querier.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to query user progress", zap.Stringer("userID", userID), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения прогресса пользователя %s: %w", userID, err)
	}
	defer rows.Close()

	records := make([]models.UserStoryProgress, 0)
	for rows.Next() {
		var progress models.UserStoryProgress
		if err := scanProgressFields(&progress, rows); err != nil {
			return nil, fmt.Errorf("ошибка чтения прогресса из БД: %w", err)
		}
		records = append(records, progress)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка после чтения прогресса из БД: %w", err)
	}
	return records, nil
}

func (r *pgProgressRepository) DeleteByPlot(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID) error {
	query := `DELETE FROM user_story_progress WHERE plot_id = $1`

	commandTag, err := querier.Exec(ctx, query, plotID)
	if err != nil {
		r.logger.Error("Failed to delete progress by plot", zap.String("plotID", plotID.String()), zap.Error(err))
		return fmt.Errorf("ошибка удаления прогресса plot %s: %w", plotID, err)
	}
	r.logger.Info("Progress records deleted by plot",
		zap.String("plotID", plotID.String()),
		zap.Int64("count", commandTag.RowsAffected()))
	return nil
}

func (r *pgProgressRepository) ClearCurrentChapter(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) error {
	query := `UPDATE user_story_progress SET current_chapter_id = NULL, updated_at = $2 WHERE current_chapter_id = $1`

	if _, err := querier.Exec(ctx, query, chapterID, time.Now().UTC()); err != nil {
		return fmt.Errorf("ошибка обнуления current_chapter_id для главы %s: %w", chapterID, err)
	}
	return nil
}

func (r *pgProgressRepository) PullCompletedChapter(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) error {
	query := `
        UPDATE user_story_progress
        SET completed_chapters = array_remove(completed_chapters, $1), updated_at = $2
        WHERE $1 = ANY(completed_chapters)
    `
	if _, err := querier.Exec(ctx, query, chapterID, time.Now().UTC()); err != nil {
		return fmt.Errorf("ошибка удаления главы %s из completed_chapters: %w", chapterID, err)
	}
	return nil
}

func (r *pgProgressRepository) ClearCurrentEvent(ctx context.Context, querier interfaces.DBTX, eventID uuid.UUID) error {
	query := `UPDATE user_story_progress SET current_event_id = NULL, updated_at = $2 WHERE current_event_id = $1`

	commandTag, err := querier.Exec(ctx, query, eventID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка обнуления current_event_id для события %s: %w", eventID, err)
	}
	if n := commandTag.RowsAffected(); n > 0 {
		// Эти записи стали "застрявшими", startPlot выведет их заново.
		r.logger.Info("Progress records stalled by event deletion",
			zap.String("eventID", eventID.String()), zap.Int64("count", n))
	}
	return nil
}

func (r *pgProgressRepository) PullCompletedEvent(ctx context.Context, querier interfaces.DBTX, eventID uuid.UUID) error {
	query := `
        UPDATE user_story_progress
        SET completed_events = array_remove(completed_events, $1), updated_at = $2
        WHERE $1 = ANY(completed_events)
    `
	if _, err := querier.Exec(ctx, query, eventID, time.Now().UTC()); err != nil {
		return fmt.Errorf("ошибка удаления события %s из completed_events: %w", eventID, err)
	}
	return nil
}

func (r *pgProgressRepository) CountByPlot(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM user_story_progress WHERE plot_id = $1`

	var count int
	if err := querier.QueryRow(ctx, query, plotID).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта прогресса plot %s: %w", plotID, err)
	}
	return count, nil
}

func (r *pgProgressRepository) CountByPlotAndStatus(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID, status models.ProgressStatus) (int, error) {
	query := `SELECT COUNT(*) FROM user_story_progress WHERE plot_id = $1 AND status = $2`

	var count int
	if err := querier.QueryRow(ctx, query, plotID, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта прогресса plot %s со статусом %s: %w", plotID, status, err)
	}
	return count, nil
}
