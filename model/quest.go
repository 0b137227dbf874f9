package model

import "time"

// ActiveQuest is the persisted form of a quest in progress. A row exists only
// while the quest is live; finishing or aborting deletes it.
type ActiveQuest struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CharID    int64     `gorm:"uniqueIndex:idx_active_char_quest;not null" json:"char_id"`
	QuestID   int       `gorm:"uniqueIndex:idx_active_char_quest;not null" json:"quest_id"`
	Step      int       `gorm:"not null" json:"step"`
	StartedAt time.Time `gorm:"autoCreateTime" json:"started_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FinishedQuest counts completions of a quest by a character.
type FinishedQuest struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CharID     int64     `gorm:"uniqueIndex:idx_finished_char_quest;not null" json:"char_id"`
	QuestID    int       `gorm:"uniqueIndex:idx_finished_char_quest;not null" json:"quest_id"`
	Count      int       `gorm:"not null;default:0" json:"count"`
	FinishedAt time.Time `gorm:"autoUpdateTime" json:"finished_at"`
}
