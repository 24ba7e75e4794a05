package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PlotCompletedUpdate - событие "пользователь дочитал сюжетную линию",
// потребляется пайплайном уведомлений.
type PlotCompletedUpdate struct {
	UserID      uuid.UUID `json:"user_id"`
	PlotID      uuid.UUID `json:"plot_id"`
	PlotTitle   string    `json:"plot_title"`
	CompletedAt time.Time `json:"completed_at"`
}

// ClientUpdatePublisher defines the interface for publishing updates to the client.
type ClientUpdatePublisher interface {
	PublishPlotCompleted(ctx context.Context, payload PlotCompletedUpdate) error
}
