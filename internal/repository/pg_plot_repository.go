package repository

import (
	"context"
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
var _ interfaces.PlotRepository = (*pgPlotRepository)(nil)

const plotColumns = `id, title, description, cover_image, is_main_story, sort_order, is_active, requirement, reward, created_at, updated_at`

type pgPlotRepository struct {
	logger *zap.Logger
}

// NewPgPlotRepository creates a new PostgreSQL-backed PlotRepository.
func NewPgPlotRepository(logger *zap.Logger) interfaces.PlotRepository {
	return &pgPlotRepository{logger: logger.Named("PgPlotRepo")}
}

func scanPlot(row pgx.Row) (*models.StoryPlot, error) {
	plot := &models.StoryPlot{}
	err := row.Scan(
		&plot.ID, &plot.Title, &plot.Description, &plot.CoverImage,
		&plot.IsMainStory, &plot.SortOrder, &plot.IsActive,
		&plot.Requirement, &plot.Reward, &plot.CreatedAt, &plot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return plot, nil
}

func (r *pgPlotRepository) Create(ctx context.Context, querier interfaces.DBTX, plot *models.StoryPlot) error {
	query := `
        INSERT INTO story_plots
            (` + plotColumns + `)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	logFields := []zap.Field{zap.String("plotID", plot.ID.String())}
	r.logger.Debug("Creating plot", logFields...)

	_, err := querier.Exec(ctx, query,
		plot.ID, plot.Title, plot.Description, plot.CoverImage,
		plot.IsMainStory, plot.SortOrder, plot.IsActive,
		plot.Requirement, plot.Reward, plot.CreatedAt, plot.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create plot", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка создания plot: %w", err)
	}
	r.logger.Info("Plot created successfully", logFields...)
	return nil
}

func (r *pgPlotRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.StoryPlot, error) {
	query := `SELECT ` + plotColumns + ` FROM story_plots WHERE id = $1`

	plot, err := scanPlot(querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get plot by ID", zap.String("plotID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения plot %s: %w", id, err)
	}
	return plot, nil
}

func (r *pgPlotRepository) GetActiveByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.StoryPlot, error) {
	query := `SELECT ` + plotColumns + ` FROM story_plots WHERE id = $1 AND is_active = TRUE`

	plot, err := scanPlot(querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get active plot by ID", zap.String("plotID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения активного plot %s: %w", id, err)
	}
	return plot, nil
}

func (r *pgPlotRepository) Update(ctx context.Context, querier interfaces.DBTX, plot *models.StoryPlot) error {
	query := `
        UPDATE story_plots SET
            title = $1, description = $2, cover_image = $3, is_main_story = $4,
            sort_order = $5, is_active = $6, requirement = $7, reward = $8, updated_at = $9
        WHERE id = $10
    `
	logFields := []zap.Field{zap.String("plotID", plot.ID.String())}

	commandTag, err := querier.Exec(ctx, query,
		plot.Title, plot.Description, plot.CoverImage, plot.IsMainStory,
		plot.SortOrder, plot.IsActive, plot.Requirement, plot.Reward,
		time.Now().UTC(), plot.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update plot", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка обновления plot %s: %w", plot.ID, err)
	}
	if commandTag.RowsAffected() == 0 {
		r.logger.Warn("Attempted to update non-existent plot", logFields...)
		return models.ErrNotFound
	}
	r.logger.Info("Plot updated successfully", logFields...)
	return nil
}

func (r *pgPlotRepository) Delete(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) error {
	query := `DELETE FROM story_plots WHERE id = $1`
	logFields := []zap.Field{zap.String("plotID", id.String())}

	commandTag, err := querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete plot", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка удаления plot %s: %w", id, err)
	}
	if commandTag.RowsAffected() == 0 {
		r.logger.Warn("Attempted to delete non-existent plot", logFields...)
		return models.ErrNotFound
	}
	r.logger.Info("Plot deleted successfully", logFields...)
	return nil
}

func (r *pgPlotRepository) ListAll(ctx context.Context, querier interfaces.DBTX) ([]models.StoryPlot, error) {
	query := `
        SELECT ` + plotColumns + `
        FROM story_plots
        ORDER BY is_main_story DESC, sort_order ASC, created_at DESC
    `
	return r.list(ctx, querier, query)
}

func (r *pgPlotRepository) ListActive(ctx context.Context, querier interfaces.DBTX) ([]models.StoryPlot, error) {
	query := `
        SELECT ` + plotColumns + `
        FROM story_plots
        WHERE is_active = TRUE
        ORDER BY is_main_story DESC, sort_order ASC
    `
	return r.list(ctx, querier, query)
}

func (r *pgPlotRepository) list(ctx context.Context, querier interfaces.DBTX, query string) ([]models.StoryPlot, error) {
	rows, err := querier.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query plots", zap.Error(err))
		return nil, fmt.Errorf("ошибка получения списка plots: %w", err)
	}
	defer rows.Close()

	plots := make([]models.StoryPlot, 0)
	for rows.Next() {
		var plot models.StoryPlot
		err := rows.Scan(
			&plot.ID, &plot.Title, &plot.Description, &plot.CoverImage,
			&plot.IsMainStory, &plot.SortOrder, &plot.IsActive,
			&plot.Requirement, &plot.Reward, &plot.CreatedAt, &plot.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan plot row", zap.Error(err))
			return nil, fmt.Errorf("ошибка чтения данных plot из БД: %w", err)
		}
		plots = append(plots, plot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка после чтения plots из БД: %w", err)
	}
	return plots, nil
}
