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
var _ interfaces.ChapterRepository = (*pgChapterRepository)(nil)

const chapterColumns = `id, plot_id, title, description, sort_order, is_active, requirement, reward, created_at, updated_at`

type pgChapterRepository struct {
	logger *zap.Logger
}

// NewPgChapterRepository creates a new PostgreSQL-backed ChapterRepository.
func NewPgChapterRepository(logger *zap.Logger) interfaces.ChapterRepository {
	return &pgChapterRepository{logger: logger.Named("PgChapterRepo")}
}

func scanChapter(row pgx.Row) (*models.StoryChapter, error) {
	chapter := &models.StoryChapter{}
	var requirementJSON []byte // jsonb -> typed struct
	err := row.Scan(
		&chapter.ID, &chapter.PlotID, &chapter.Title, &chapter.Description,
		&chapter.SortOrder, &chapter.IsActive,
		&requirementJSON, &chapter.Reward, &chapter.CreatedAt, &chapter.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(requirementJSON) > 0 {
		if err := json.Unmarshal(requirementJSON, &chapter.Requirement); err != nil {
			return nil, fmt.Errorf("ошибка разбора requirement главы %s: %w", chapter.ID, err)
		}
	}
	return chapter, nil
}

func marshalChapterRequirement(chapter *models.StoryChapter) ([]byte, error) {
	data, err := json.Marshal(chapter.Requirement)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации requirement главы %s: %w", chapter.ID, err)
	}
	return data, nil
}

func (r *pgChapterRepository) Create(ctx context.Context, querier interfaces.DBTX, chapter *models.StoryChapter) error {
	query := `
        INSERT INTO story_chapters
            (` + chapterColumns + `)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	logFields := []zap.Field{
		zap.String("chapterID", chapter.ID.String()),
		zap.String("plotID", chapter.PlotID.String()),
	}

	requirementJSON, err := marshalChapterRequirement(chapter)
	if err != nil {
		return err
	}

	_, err = querier.Exec(ctx, query,
		chapter.ID, chapter.PlotID, chapter.Title, chapter.Description,
		chapter.SortOrder, chapter.IsActive, requirementJSON, chapter.Reward,
		chapter.CreatedAt, chapter.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create chapter", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка создания chapter: %w", err)
	}
	r.logger.Info("Chapter created successfully", logFields...)
	return nil
}

func (r *pgChapterRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.StoryChapter, error) {
	query := `SELECT ` + chapterColumns + ` FROM story_chapters WHERE id = $1`

	chapter, err := scanChapter(querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get chapter by ID", zap.String("chapterID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения chapter %s: %w", id, err)
	}
	return chapter, nil
}

func (r *pgChapterRepository) Update(ctx context.Context, querier interfaces.DBTX, chapter *models.StoryChapter) error {
	query := `
        UPDATE story_chapters SET
            title = $1, description = $2, sort_order = $3, is_active = $4,
            requirement = $5, reward = $6, updated_at = $7
        WHERE id = $8
    `
	logFields := []zap.Field{zap.String("chapterID", chapter.ID.String())}

	requirementJSON, err := marshalChapterRequirement(chapter)
	if err != nil {
		return err
	}

	commandTag, err := querier.Exec(ctx, query,
		chapter.Title, chapter.Description, chapter.SortOrder, chapter.IsActive,
		requirementJSON, chapter.Reward, time.Now().UTC(), chapter.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update chapter", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка обновления chapter %s: %w", chapter.ID, err)
	}
	if commandTag.RowsAffected() == 0 {
		r.logger.Warn("Attempted to update non-existent chapter", logFields...)
		return models.ErrNotFound
	}
	r.logger.Info("Chapter updated successfully", logFields...)
	return nil
}

func (r *pgChapterRepository) Delete(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) error {
	query := `DELETE FROM story_chapters WHERE id = $1`
	logFields := []zap.Field{zap.String("chapterID", id.String())}

	commandTag, err := querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete chapter", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка удаления chapter %s: %w", id, err)
	}
	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	r.logger.Info("Chapter deleted successfully", logFields...)
	return nil
}

func (r *pgChapterRepository) ListByPlot(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID, activeOnly bool) ([]models.StoryChapter, error) {
	query := `SELECT ` + chapterColumns + ` FROM story_chapters WHERE plot_id = $1`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY sort_order ASC`

	rows, err := querier.Query(ctx, query, plotID)
	if err != nil {
		r.logger.Error("Failed to query chapters", zap.String("plotID", plotID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения глав plot %s: %w", plotID, err)
	}
	defer rows.Close()

	chapters := make([]models.StoryChapter, 0)
	for rows.Next() {
		var chapter models.StoryChapter
		var requirementJSON []byte
		err := rows.Scan(
			&chapter.ID, &chapter.PlotID, &chapter.Title, &chapter.Description,
			&chapter.SortOrder, &chapter.IsActive,
			&requirementJSON, &chapter.Reward, &chapter.CreatedAt, &chapter.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения данных chapter из БД: %w", err)
		}
		if len(requirementJSON) > 0 {
			if err := json.Unmarshal(requirementJSON, &chapter.Requirement); err != nil {
				return nil, fmt.Errorf("ошибка разбора requirement главы %s: %w", chapter.ID, err)
			}
		}
		chapters = append(chapters, chapter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка после чтения chapters из БД: %w", err)
	}
	return chapters, nil
}

func (r *pgChapterRepository) FirstActiveByPlot(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID) (*models.StoryChapter, error) {
	query := `
        SELECT ` + chapterColumns + `
        FROM story_chapters
        WHERE plot_id = $1 AND is_active = TRUE
        ORDER BY sort_order ASC
        LIMIT 1
    `
	chapter, err := scanChapter(querier.QueryRow(ctx, query, plotID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения первой главы plot %s: %w", plotID, err)
	}
	return chapter, nil
}

func (r *pgChapterRepository) NextUncompleted(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID, completed []uuid.UUID) (*models.StoryChapter, error) {
	// Пустой массив в NOT (id = ANY($2)) корректно пропускает все главы.
	query := `
        SELECT ` + chapterColumns + `
        FROM story_chapters
        WHERE plot_id = $1 AND is_active = TRUE AND NOT (id = ANY($2))
        ORDER BY sort_order ASC
        LIMIT 1
    `
	if completed == nil {
		completed = []uuid.UUID{}
	}
	chapter, err := scanChapter(querier.QueryRow(ctx, query, plotID, completed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска следующей главы plot %s: %w", plotID, err)
	}
	return chapter, nil
}

func (r *pgChapterRepository) IDsByPlot(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT id FROM story_chapters WHERE plot_id = $1`

	rows, err := querier.Query(ctx, query, plotID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения id глав plot %s: %w", plotID, err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка чтения id главы: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка после чтения id глав: %w", err)
	}
	return ids, nil
}

func (r *pgChapterRepository) DeleteByPlot(ctx context.Context, querier interfaces.DBTX, plotID uuid.UUID) error {
	query := `DELETE FROM story_chapters WHERE plot_id = $1`

	commandTag, err := querier.Exec(ctx, query, plotID)
	if err != nil {
		r.logger.Error("Failed to delete chapters by plot", zap.String("plotID", plotID.String()), zap.Error(err))
		return fmt.Errorf("ошибка удаления глав plot %s: %w", plotID, err)
	}
	r.logger.Info("Chapters deleted by plot",
		zap.String("plotID", plotID.String()),
		zap.Int64("count", commandTag.RowsAffected()))
	return nil
}
