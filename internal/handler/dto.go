package handler

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/jlk1997/n-dog-b/internal/models"
)

// completeEventRequest - тело POST /api/story/complete-event.
type completeEventRequest struct {
	PlotID      uuid.UUID `json:"plotId" validate:"required"`
	EventID     uuid.UUID `json:"eventId" validate:"required"`
	ChoiceIndex *int      `json:"choiceIndex,omitempty"`
}

// createPlotRequest - тело POST /api/admin/story/plots.
type createPlotRequest struct {
	Title       string          `json:"title" validate:"required"`
	Description string          `json:"description"`
	CoverImage  string          `json:"coverImage"`
	IsMainStory bool            `json:"isMainStory"`
	SortOrder   int             `json:"sortOrder"`
	Requirement json.RawMessage `json:"requirement,omitempty"`
	Reward      json.RawMessage `json:"reward,omitempty"`
}

// updatePlotRequest - тело PUT /api/admin/story/plots/:plotId.
// nil-поля остаются без изменений.
type updatePlotRequest struct {
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	CoverImage  *string         `json:"coverImage,omitempty"`
	IsActive    *bool           `json:"isActive,omitempty"`
	IsMainStory *bool           `json:"isMainStory,omitempty"`
	SortOrder   *int            `json:"sortOrder,omitempty"`
	Requirement json.RawMessage `json:"requirement,omitempty"`
	Reward      json.RawMessage `json:"reward,omitempty"`
}

// createChapterRequest - тело POST /api/admin/story/chapters.
type createChapterRequest struct {
	PlotID      uuid.UUID                 `json:"plotId" validate:"required"`
	Title       string                    `json:"title" validate:"required"`
	Description string                    `json:"description"`
	SortOrder   int                       `json:"sortOrder"`
	IsActive    *bool                     `json:"isActive,omitempty"`
	Requirement models.ChapterRequirement `json:"requirement"`
	Reward      json.RawMessage           `json:"reward,omitempty"`
}

// updateChapterRequest - тело PUT /api/admin/story/chapters/:chapterId.
type updateChapterRequest struct {
	Title       *string                    `json:"title,omitempty"`
	Description *string                    `json:"description,omitempty"`
	SortOrder   *int                       `json:"sortOrder,omitempty"`
	IsActive    *bool                      `json:"isActive,omitempty"`
	Requirement *models.ChapterRequirement `json:"requirement,omitempty"`
	Reward      json.RawMessage            `json:"reward,omitempty"`
}

// createEventRequest - тело POST /api/admin/story/events.
type createEventRequest struct {
	ChapterID        uuid.UUID                `json:"chapterId" validate:"required"`
	Title            string                   `json:"title" validate:"required"`
	EventType        models.EventType         `json:"eventType" validate:"omitempty,oneof=DIALOG TASK GUIDE REWARD MULTI_CHOICE"`
	Content          models.EventContent      `json:"content"`
	TriggerCondition *models.TriggerCondition `json:"triggerCondition,omitempty"`
	NextEventID      *uuid.UUID               `json:"nextEventId,omitempty"`
	IsActive         *bool                    `json:"isActive,omitempty"`
	SortOrder        int                      `json:"sortOrder"`
}

// updateEventRequest - тело PUT /api/admin/story/events/:eventId.
// Для nextEventId различаются "ключ отсутствует" (не менять) и явный null
// (обнулить ссылку), поэтому присутствие ключа фиксируется при разборе.
type updateEventRequest struct {
	Title            *string                  `json:"title,omitempty"`
	EventType        *models.EventType        `json:"eventType,omitempty"`
	Content          *models.EventContent     `json:"content,omitempty"`
	TriggerCondition *models.TriggerCondition `json:"triggerCondition,omitempty"`
	NextEventID      *uuid.UUID               `json:"nextEventId,omitempty"`
	IsActive         *bool                    `json:"isActive,omitempty"`
	SortOrder        *int                     `json:"sortOrder,omitempty"`

	nextEventSet bool
}

func (r *updateEventRequest) UnmarshalJSON(data []byte) error {
	type alias updateEventRequest
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = updateEventRequest(a)

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	_, r.nextEventSet = probe["nextEventId"]
	return nil
}
