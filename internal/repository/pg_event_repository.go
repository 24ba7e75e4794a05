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
var _ interfaces.EventRepository = (*pgEventRepository)(nil)

const eventColumns = `id, chapter_id, title, event_type, content, trigger_condition, next_event_id, is_active, sort_order, created_at, updated_at`

type pgEventRepository struct {
	logger *zap.Logger
}

// NewPgEventRepository creates a new PostgreSQL-backed EventRepository.
func NewPgEventRepository(logger *zap.Logger) interfaces.EventRepository {
	return &pgEventRepository{logger: logger.Named("PgEventRepo")}
}

func scanEventFields(dest *models.StoryEvent, row interface{ Scan(...any) error }) error {
	var contentJSON, triggerJSON []byte
	err := row.Scan(
		&dest.ID, &dest.ChapterID, &dest.Title, &dest.EventType,
		&contentJSON, &triggerJSON, &dest.NextEventID,
		&dest.IsActive, &dest.SortOrder, &dest.CreatedAt, &dest.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if len(contentJSON) > 0 {
		if err := json.Unmarshal(contentJSON, &dest.Content); err != nil {
			return fmt.Errorf("ошибка разбора content события %s: %w", dest.ID, err)
		}
	}
	if len(triggerJSON) > 0 {
		if err := json.Unmarshal(triggerJSON, &dest.TriggerCondition); err != nil {
			return fmt.Errorf("ошибка разбора trigger_condition события %s: %w", dest.ID, err)
		}
	}
	return nil
}

func marshalEventPayloads(event *models.StoryEvent) (contentJSON, triggerJSON []byte, err error) {
	contentJSON, err = json.Marshal(event.Content)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка сериализации content события %s: %w", event.ID, err)
	}
	triggerJSON, err = json.Marshal(event.TriggerCondition)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка сериализации trigger_condition события %s: %w", event.ID, err)
	}
	return contentJSON, triggerJSON, nil
}

func (r *pgEventRepository) Create(ctx context.Context, querier interfaces.DBTX, event *models.StoryEvent) error {
	query := `
        INSERT INTO story_events
            (` + eventColumns + `)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	logFields := []zap.Field{
		zap.String("eventID", event.ID.String()),
		zap.String("chapterID", event.ChapterID.String()),
	}

	contentJSON, triggerJSON, err := marshalEventPayloads(event)
	if err != nil {
		return err
	}

	_, err = querier.Exec(ctx, query,
		event.ID, event.ChapterID, event.Title, event.EventType,
		contentJSON, triggerJSON, event.NextEventID,
		event.IsActive, event.SortOrder, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create event", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка создания event: %w", err)
	}
	r.logger.Info("Event created successfully", logFields...)
	return nil
}

func (r *pgEventRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.StoryEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM story_events WHERE id = $1`

	event := &models.StoryEvent{}
	err := scanEventFields(event, querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get event by ID", zap.String("eventID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения event %s: %w", id, err)
	}
	return event, nil
}

func (r *pgEventRepository) Update(ctx context.Context, querier interfaces.DBTX, event *models.StoryEvent) error {
	query := `
        UPDATE story_events SET
            title = $1, event_type = $2, content = $3, trigger_condition = $4,
            next_event_id = $5, is_active = $6, sort_order = $7, updated_at = $8
        WHERE id = $9
    `
	logFields := []zap.Field{zap.String("eventID", event.ID.String())}

	contentJSON, triggerJSON, err := marshalEventPayloads(event)
	if err != nil {
		return err
	}

	commandTag, err := querier.Exec(ctx, query,
		event.Title, event.EventType, contentJSON, triggerJSON,
		event.NextEventID, event.IsActive, event.SortOrder,
		time.Now().UTC(), event.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update event", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка обновления event %s: %w", event.ID, err)
	}
	if commandTag.RowsAffected() == 0 {
		r.logger.Warn("Attempted to update non-existent event", logFields...)
		return models.ErrNotFound
	}
	r.logger.Info("Event updated successfully", logFields...)
	return nil
}

func (r *pgEventRepository) Delete(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) error {
	query := `DELETE FROM story_events WHERE id = $1`

	commandTag, err := querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete event", zap.String("eventID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка удаления event %s: %w", id, err)
	}
	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	r.logger.Info("Event deleted successfully", zap.String("eventID", id.String()))
	return nil
}

func (r *pgEventRepository) Exists(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM story_events WHERE id = $1)`

	var exists bool
	if err := querier.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки существования event %s: %w", id, err)
	}
	return exists, nil
}

func (r *pgEventRepository) ListByChapter(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID, activeOnly bool) ([]models.StoryEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM story_events WHERE chapter_id = $1`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY sort_order ASC`

	return r.list(ctx, querier, query, chapterID)
}

func (r *pgEventRepository) ListByChapters(ctx context.Context, querier interfaces.DBTX, chapterIDs []uuid.UUID) ([]models.StoryEvent, error) {
	if len(chapterIDs) == 0 {
		return []models.StoryEvent{}, nil
	}
	query := `
        SELECT ` + eventColumns + `
        FROM story_events
        WHERE chapter_id = ANY($1)
        ORDER BY chapter_id, sort_order ASC
    `
	return r.list(ctx, querier, query, chapterIDs)
}

func (r *pgEventRepository) list(ctx context.Context, querier interfaces.DBTX, query string, args ...any) ([]models.StoryEvent, error) {
	rows, err := querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query events", zap.Error(err))
		return nil, fmt.Errorf("ошибка получения списка events: %w", err)
	}
	defer rows.Close()

	events := make([]models.StoryEvent, 0)
	for rows.Next() {
		var event models.StoryEvent
		if err := scanEventFields(&event, rows); err != nil {
			return nil, fmt.Errorf("ошибка чтения данных event из БД: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка после чтения events из БД: %w", err)
	}
	return events, nil
}

func (r *pgEventRepository) FirstActiveByChapter(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) (*models.StoryEvent, error) {
	query := `
        SELECT ` + eventColumns + `
        FROM story_events
        WHERE chapter_id = $1 AND is_active = TRUE
        ORDER BY sort_order ASC
        LIMIT 1
    `
	event := &models.StoryEvent{}
	err := scanEventFields(event, querier.QueryRow(ctx, query, chapterID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения первого события главы %s: %w", chapterID, err)
	}
	return event, nil
}

func (r *pgEventRepository) CountRemaining(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID, completed []uuid.UUID) (int, error) {
	query := `
        SELECT COUNT(*)
        FROM story_events
        WHERE chapter_id = $1 AND is_active = TRUE AND NOT (id = ANY($2))
    `
	if completed == nil {
		completed = []uuid.UUID{}
	}
	var count int
	if err := querier.QueryRow(ctx, query, chapterID, completed).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта оставшихся событий главы %s: %w", chapterID, err)
	}
	return count, nil
}

func (r *pgEventRepository) ClearNextReferences(ctx context.Context, querier interfaces.DBTX, eventID uuid.UUID) error {
	query := `UPDATE story_events SET next_event_id = NULL, updated_at = $2 WHERE next_event_id = $1`

	commandTag, err := querier.Exec(ctx, query, eventID, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to clear next-event references", zap.String("eventID", eventID.String()), zap.Error(err))
		return fmt.Errorf("ошибка обнуления ссылок на event %s: %w", eventID, err)
	}
	if n := commandTag.RowsAffected(); n > 0 {
		r.logger.Info("Cleared dangling next-event references",
			zap.String("eventID", eventID.String()), zap.Int64("count", n))
	}
	return nil
}

func (r *pgEventRepository) UpdateReferences(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, next *uuid.UUID, content models.EventContent) error {
	query := `UPDATE story_events SET next_event_id = $1, content = $2, updated_at = $3 WHERE id = $4`

	contentJSON, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("ошибка сериализации content события %s: %w", id, err)
	}

	commandTag, err := querier.Exec(ctx, query, next, contentJSON, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("ошибка перезаписи ссылок события %s: %w", id, err)
	}
	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *pgEventRepository) DeleteByChapter(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) error {
	query := `DELETE FROM story_events WHERE chapter_id = $1`

	commandTag, err := querier.Exec(ctx, query, chapterID)
	if err != nil {
		r.logger.Error("Failed to delete events by chapter", zap.String("chapterID", chapterID.String()), zap.Error(err))
		return fmt.Errorf("ошибка удаления событий главы %s: %w", chapterID, err)
	}
	r.logger.Info("Events deleted by chapter",
		zap.String("chapterID", chapterID.String()),
		zap.Int64("count", commandTag.RowsAffected()))
	return nil
}

func (r *pgEventRepository) DeleteByChapters(ctx context.Context, querier interfaces.DBTX, chapterIDs []uuid.UUID) error {
	if len(chapterIDs) == 0 {
		return nil
	}
	query := `DELETE FROM story_events WHERE chapter_id = ANY($1)`

	commandTag, err := querier.Exec(ctx, query, chapterIDs)
	if err != nil {
		r.logger.Error("Failed to delete events by chapters", zap.Error(err))
		return fmt.Errorf("ошибка удаления событий глав: %w", err)
	}
	r.logger.Info("Events deleted by chapters",
		zap.Int("chapters", len(chapterIDs)),
		zap.Int64("count", commandTag.RowsAffected()))
	return nil
}
