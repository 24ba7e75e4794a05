package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType определяет тип сюжетного события.
type EventType string

const (
	EventTypeDialog      EventType = "DIALOG"
	EventTypeTask        EventType = "TASK"
	EventTypeGuide       EventType = "GUIDE"
	EventTypeReward      EventType = "REWARD"
	EventTypeMultiChoice EventType = "MULTI_CHOICE"
)

// IsValid reports whether t is one of the declared event types.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeDialog, EventTypeTask, EventTypeGuide, EventTypeReward, EventTypeMultiChoice:
		return true
	}
	return false
}

// TriggerType определяет способ запуска события на клиенте.
type TriggerType string

const (
	TriggerEnterPage    TriggerType = "ENTER_PAGE"
	TriggerClickElement TriggerType = "CLICK_ELEMENT"
	TriggerCompleteTask TriggerType = "COMPLETE_TASK"
	TriggerAuto         TriggerType = "AUTO"
	TriggerManual       TriggerType = "MANUAL"
)

// StoryPlot - верхнеуровневая сюжетная линия (квест) приложения.
// Requirement и Reward непрозрачны для движка: они сохраняются и отдаются
// клиенту как есть.
type StoryPlot struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	CoverImage  string          `json:"coverImage"`
	IsMainStory bool            `json:"isMainStory"`
	SortOrder   int             `json:"sortOrder"`
	IsActive    bool            `json:"isActive"`
	Requirement json.RawMessage `json:"requirement,omitempty"`
	Reward      json.RawMessage `json:"reward,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ChapterRequirement - условия доступности главы.
// PreviousChapter - мягкий гейт: проверяется только для флага isAvailable,
// автопродвижение его не учитывает.
type ChapterRequirement struct {
	UserLevel       int             `json:"userLevel,omitempty"`
	PreviousChapter *uuid.UUID      `json:"previousChapter,omitempty"`
	CustomCondition json.RawMessage `json:"customCondition,omitempty"`
}

// StoryChapter - глава внутри сюжетной линии.
type StoryChapter struct {
	ID          uuid.UUID          `json:"id"`
	PlotID      uuid.UUID          `json:"plotId"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	SortOrder   int                `json:"sortOrder"`
	IsActive    bool               `json:"isActive"`
	Requirement ChapterRequirement `json:"requirement"`
	Reward      json.RawMessage    `json:"reward,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// DialogueLine - одна реплика диалогового события.
type DialogueLine struct {
	Speaker string `json:"speaker,omitempty"`
	Content string `json:"content,omitempty"`
	Avatar  string `json:"avatar,omitempty"`
}

// GuideInfo - данные события-подсказки.
type GuideInfo struct {
	TargetPage    string `json:"targetPage,omitempty"`
	TargetElement string `json:"targetElement,omitempty"`
	GuideText     string `json:"guideText,omitempty"`
}

// EventChoice - один вариант ответа MULTI_CHOICE события.
// NextEventID может быть nil: выбранная ветка тогда завершает цепочку.
type EventChoice struct {
	Text        string     `json:"text"`
	NextEventID *uuid.UUID `json:"nextEventId,omitempty"`
}

// EventContent - полезная нагрузка события; заполненные поля зависят от типа.
type EventContent struct {
	Dialogues     []DialogueLine `json:"dialogues,omitempty"`
	TaskObjective string         `json:"taskObjective,omitempty"`
	GuideInfo     *GuideInfo     `json:"guideInfo,omitempty"`
	Choices       []EventChoice  `json:"choices,omitempty"`
}

// TriggerCondition - условие срабатывания события на клиенте.
type TriggerCondition struct {
	Type      TriggerType `json:"type"`
	PageID    string      `json:"pageId,omitempty"`
	ElementID string      `json:"elementId,omitempty"`
	Delay     int         `json:"delay,omitempty"`
}

// StoryEvent - атомарная единица повествования.
// NextEventID - линейный преемник по умолчанию; для MULTI_CHOICE игнорируется,
// преемника определяет выбранный вариант.
type StoryEvent struct {
	ID               uuid.UUID        `json:"id"`
	ChapterID        uuid.UUID        `json:"chapterId"`
	Title            string           `json:"title"`
	EventType        EventType        `json:"eventType"`
	Content          EventContent     `json:"content"`
	TriggerCondition TriggerCondition `json:"triggerCondition"`
	NextEventID      *uuid.UUID       `json:"nextEventId,omitempty"`
	IsActive         bool             `json:"isActive"`
	SortOrder        int              `json:"sortOrder"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// StorySnapshot - самодостаточный экспорт сюжетной линии со всеми главами
// и событиями. Используется для переноса контента между окружениями.
type StorySnapshot struct {
	Plot     StoryPlot      `json:"plot"`
	Chapters []StoryChapter `json:"chapters"`
	Events   []StoryEvent   `json:"events"`
}

// PlotProgressStats - агрегированная статистика прохождения одной линии.
type PlotProgressStats struct {
	PlotID          uuid.UUID `json:"plotId"`
	PlotTitle       string    `json:"plotTitle"`
	TotalUsers      int       `json:"totalUsers"`
	CompletedUsers  int       `json:"completedUsers"`
	InProgressUsers int       `json:"inProgressUsers"`
	NotStartedUsers int       `json:"notStartedUsers"`
	CompletionRate  float64   `json:"completionRate"`
}
