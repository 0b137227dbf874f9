package model

import "time"

// Character represents a player's in-game character.
type Character struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"uniqueIndex;size:32;not null" json:"name"`
	ClassID        int       `gorm:"not null" json:"class_id"`
	Race           int       `gorm:"default:0" json:"race"`
	Gender         int       `gorm:"default:0" json:"gender"` // 0=male 1=female
	Realm          int       `gorm:"default:1" json:"realm"`
	Level          int       `gorm:"default:1" json:"level"`
	Exp            int64     `gorm:"default:0" json:"exp"`
	Health         int       `gorm:"not null" json:"health"`
	MaxHealth      int       `gorm:"not null" json:"max_health"`
	Mana           int       `gorm:"default:0" json:"mana"`
	MaxMana        int       `gorm:"default:0" json:"max_mana"`
	Endurance      int       `gorm:"default:100" json:"endurance"`
	MaxEndurance   int       `gorm:"default:100" json:"max_endurance"`
	MaxEncumbrance int       `gorm:"default:100" json:"max_encumbrance"`
	Gold           int64     `gorm:"default:0" json:"gold"`
	RealmPoints    int64     `gorm:"default:0" json:"realm_points"`
	RealmLevel     int       `gorm:"default:0" json:"realm_level"`
	GuildName      string    `gorm:"size:64" json:"guild_name"`
	Region         int       `gorm:"default:1" json:"region"`
	Zone           int       `gorm:"default:0" json:"zone"`
	X              int       `json:"x"`
	Y              int       `json:"y"`
	Z              int       `json:"z"`
	Heading        int       `json:"heading"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
