package item

import (
	"context"

	"github.com/kasuganosora/rpgquest/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InventoryService loads and saves bags.
type InventoryService struct {
	db     *gorm.DB
	slots  int
	logger *zap.Logger
}

// NewInventoryService creates a new InventoryService. slots bounds every bag it loads.
func NewInventoryService(db *gorm.DB, slots int, logger *zap.Logger) *InventoryService {
	return &InventoryService{db: db, slots: slots, logger: logger}
}

// List returns all inventory rows for charID.
func (svc *InventoryService) List(ctx context.Context, charID int64) ([]model.Inventory, error) {
	var items []model.Inventory
	err := svc.db.WithContext(ctx).Where("char_id = ?", charID).Order("item_id, equipped").Find(&items).Error
	return items, err
}

// Load builds charID's bag from the stored rows.
func (svc *InventoryService) Load(ctx context.Context, charID int64) (*Bag, error) {
	rows, err := svc.List(ctx, charID)
	if err != nil {
		return nil, err
	}
	stacks := make([]Stack, 0, len(rows))
	for _, r := range rows {
		stacks = append(stacks, Stack{ItemID: r.ItemID, Qty: r.Qty, Equipped: r.Equipped})
	}
	bag := NewBag(svc.slots)
	bag.load(stacks)
	return bag, nil
}

// Save replaces charID's stored rows with the bag contents. A bag that has not
// changed since it was loaded or last saved is skipped.
func (svc *InventoryService) Save(ctx context.Context, charID int64, bag *Bag) error {
	if !bag.takeDirty() {
		return nil
	}
	stacks := bag.Stacks()
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("char_id = ?", charID).Delete(&model.Inventory{}).Error; err != nil {
			return err
		}
		if len(stacks) == 0 {
			return nil
		}
		rows := make([]model.Inventory, 0, len(stacks))
		for _, s := range stacks {
			rows = append(rows, model.Inventory{CharID: charID, ItemID: s.ItemID, Qty: s.Qty, Equipped: s.Equipped})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		// Keep the changes pending for the next save.
		bag.mu.Lock()
		bag.dirty = true
		bag.mu.Unlock()
		svc.logger.Error("save inventory failed", zap.Int64("char_id", charID), zap.Error(err))
	}
	return err
}
