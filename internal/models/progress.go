package models

import (
	"time"

	"github.com/google/uuid"
)

// ProgressStatus - состояние прохождения сюжетной линии пользователем.
type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "NOT_STARTED"
	ProgressInProgress ProgressStatus = "IN_PROGRESS"
	ProgressCompleted  ProgressStatus = "COMPLETED"
)

// UserChoice - запись одного выбора в MULTI_CHOICE событии.
type UserChoice struct {
	EventID     uuid.UUID `json:"eventId"`
	ChoiceIndex int       `json:"choiceIndex"`
	Timestamp   time.Time `json:"timestamp"`
}

// UserStoryProgress - курсор пользователя внутри одной сюжетной линии.
// Ровно одна запись на пару (userId, plotId). CurrentEventID == nil при
// незавершённом статусе означает "застрявший" прогресс: текущее событие
// было удалено автором либо ветка закончилась без преемника.
type UserStoryProgress struct {
	ID                uuid.UUID      `json:"id"`
	UserID            uuid.UUID      `json:"userId"`
	PlotID            uuid.UUID      `json:"plotId"`
	CurrentChapterID  *uuid.UUID     `json:"currentChapterId,omitempty"`
	CurrentEventID    *uuid.UUID     `json:"currentEventId,omitempty"`
	CompletedChapters []uuid.UUID    `json:"completedChapters"`
	CompletedEvents   []uuid.UUID    `json:"completedEvents"`
	Status            ProgressStatus `json:"status"`
	StartedAt         *time.Time     `json:"startedAt,omitempty"`
	CompletedAt       *time.Time     `json:"completedAt,omitempty"`
	UserChoices       []UserChoice   `json:"userChoices,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// HasCompletedChapter проверяет принадлежность главы к завершённым.
func (p *UserStoryProgress) HasCompletedChapter(chapterID uuid.UUID) bool {
	for _, id := range p.CompletedChapters {
		if id == chapterID {
			return true
		}
	}
	return false
}

// HasCompletedEvent проверяет принадлежность события к завершённым.
func (p *UserStoryProgress) HasCompletedEvent(eventID uuid.UUID) bool {
	for _, id := range p.CompletedEvents {
		if id == eventID {
			return true
		}
	}
	return false
}

// MarkChapterCompleted идемпотентно добавляет главу в завершённые.
func (p *UserStoryProgress) MarkChapterCompleted(chapterID uuid.UUID) {
	if !p.HasCompletedChapter(chapterID) {
		p.CompletedChapters = append(p.CompletedChapters, chapterID)
	}
}

// MarkEventCompleted идемпотентно добавляет событие в завершённые.
func (p *UserStoryProgress) MarkEventCompleted(eventID uuid.UUID) {
	if !p.HasCompletedEvent(eventID) {
		p.CompletedEvents = append(p.CompletedEvents, eventID)
	}
}
