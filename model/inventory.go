package model

import "time"

// Inventory represents a single item stack in a character's bag.
// Equipped stacks are worn and do not occupy a backpack slot.
type Inventory struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CharID    int64     `gorm:"index:idx_char_inventory;not null" json:"char_id"`
	ItemID    string    `gorm:"size:64;not null" json:"item_id"`
	Qty       int       `gorm:"default:1" json:"qty"`
	Equipped  bool      `gorm:"default:false" json:"equipped"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
