package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records quest transitions and operator actions.
type AuditLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID   string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	CharID    *int64         `gorm:"index:idx_audit_char" json:"char_id"`
	CharName  string         `gorm:"size:32" json:"char_name"`
	Action    string         `gorm:"size:64;not null" json:"action"`
	QuestID   int            `gorm:"index:idx_audit_quest" json:"quest_id"`
	Step      int            `json:"step"`
	Detail    datatypes.JSON `json:"detail"`
	Error     string         `gorm:"type:text" json:"error"`
	IP        string         `gorm:"size:45" json:"ip"`
	CreatedAt time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
