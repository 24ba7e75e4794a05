package interfaces

import (
	"context"

	"github.com/jlk1997/n-dog-b/internal/models"
)

// PlotCache - read-through кэш списка активных сюжетных линий (самое горячее
// чтение плеерного API). Промах и любая ошибка кэша деградируют в чтение из
// БД, никогда не в ошибку запроса.
type PlotCache interface {
	// GetActivePlots возвращает models.ErrNotFound при промахе.
	GetActivePlots(ctx context.Context) ([]models.StoryPlot, error)

	SetActivePlots(ctx context.Context, plots []models.StoryPlot) error

	// Invalidate сбрасывает кэш; вызывается после любой авторской мутации
	// линий и после импорта.
	Invalidate(ctx context.Context) error
}
