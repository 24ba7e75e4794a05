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

// ExportPlot собирает самодостаточный снимок линии: саму линию, все её
// главы и все события этих глав, включая неактивные.
func (s *storyAdminService) ExportPlot(ctx context.Context, plotID uuid.UUID) (*models.StorySnapshot, error) {
	plot, err := s.plots.GetByID(ctx, s.db, plotID)
	if err != nil {
		return nil, err
	}
	chapters, err := s.chapters.ListByPlot(ctx, s.db, plotID, false)
	if err != nil {
		return nil, err
	}

	chapterIDs := make([]uuid.UUID, 0, len(chapters))
	for _, chapter := range chapters {
		chapterIDs = append(chapterIDs, chapter.ID)
	}
	events, err := s.events.ListByChapters(ctx, s.db, chapterIDs)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Plot exported",
		zap.String("plotID", plotID.String()),
		zap.Int("chapters", len(chapters)),
		zap.Int("events", len(events)))

	return &models.StorySnapshot{Plot: *plot, Chapters: chapters, Events: events}, nil
}

// ImportPlot вставляет снимок как новую линию со свежими идентификаторами.
// Все внутренние ссылки (plotId глав, chapterId событий, nextEventId,
// цели вариантов выбора) переписываются на новые id за одну транзакцию.
// Ссылка на событие вне снимка обнуляется; событие, ссылающееся на
// неизвестную главу, делает снимок невалидным целиком.
func (s *storyAdminService) ImportPlot(ctx context.Context, snapshot models.StorySnapshot) (uuid.UUID, error) {
	if snapshot.Plot.Title == "" {
		return uuid.Nil, fmt.Errorf("%w: у линии отсутствует title", ErrInvalidSnapshot)
	}

	now := time.Now().UTC()
	newPlotID := uuid.New()

	chapterIDMap := make(map[uuid.UUID]uuid.UUID, len(snapshot.Chapters))
	for _, chapter := range snapshot.Chapters {
		chapterIDMap[chapter.ID] = uuid.New()
	}
	eventIDMap := make(map[uuid.UUID]uuid.UUID, len(snapshot.Events))
	for _, event := range snapshot.Events {
		eventIDMap[event.ID] = uuid.New()
	}

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		plot := snapshot.Plot
		plot.ID = newPlotID
		plot.CreatedAt = now
		plot.UpdatedAt = now
		if err := s.plots.Create(ctx, tx, &plot); err != nil {
			return err
		}

		for _, chapter := range snapshot.Chapters {
			newChapter := chapter
			newChapter.ID = chapterIDMap[chapter.ID]
			newChapter.PlotID = newPlotID
			newChapter.CreatedAt = now
			newChapter.UpdatedAt = now
			if err := s.chapters.Create(ctx, tx, &newChapter); err != nil {
				return err
			}
		}

		// Первый проход: события вставляются без ссылок вперёд, чтобы не
		// зависеть от порядка в снимке.
		for _, event := range snapshot.Events {
			newChapterID, ok := chapterIDMap[event.ChapterID]
			if !ok {
				return fmt.Errorf("%w: событие %s ссылается на неизвестную главу %s",
					ErrInvalidSnapshot, event.ID, event.ChapterID)
			}
			newEvent := event
			newEvent.ID = eventIDMap[event.ID]
			newEvent.ChapterID = newChapterID
			newEvent.NextEventID = nil
			newEvent.Content.Choices = nil
			newEvent.CreatedAt = now
			newEvent.UpdatedAt = now
			if err := s.events.Create(ctx, tx, &newEvent); err != nil {
				return err
			}
		}

		// Второй проход: переписываем ссылки на новые id.
		for _, event := range snapshot.Events {
			next := remapEventRef(event.NextEventID, eventIDMap)

			content := event.Content
			if len(event.Content.Choices) > 0 {
				choices := make([]models.EventChoice, len(event.Content.Choices))
				for i, choice := range event.Content.Choices {
					choices[i] = models.EventChoice{
						Text:        choice.Text,
						NextEventID: remapEventRef(choice.NextEventID, eventIDMap),
					}
				}
				content.Choices = choices
			}

			if err := s.events.UpdateReferences(ctx, tx, eventIDMap[event.ID], next, content); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		s.logger.Error("Plot import rolled back", zap.Error(err))
		if errors.Is(err, ErrInvalidSnapshot) {
			return uuid.Nil, err
		}
		return uuid.Nil, fmt.Errorf("%w: %s", models.ErrTransactionAborted, err)
	}

	s.invalidatePlotCache(ctx)
	s.logger.Info("Plot imported",
		zap.String("newPlotID", newPlotID.String()),
		zap.Int("chapters", len(snapshot.Chapters)),
		zap.Int("events", len(snapshot.Events)))
	return newPlotID, nil
}

// remapEventRef переводит ссылку на событие в новое id; ссылка наружу
// снимка обнуляется.
func remapEventRef(ref *uuid.UUID, idMap map[uuid.UUID]uuid.UUID) *uuid.UUID {
	if ref == nil {
		return nil
	}
	if newID, ok := idMap[*ref]; ok {
		return &newID
	}
	return nil
}
