package world

import (
	"context"
	"errors"
	"fmt"

	"github.com/kasuganosora/rpgquest/game/item"
	"github.com/kasuganosora/rpgquest/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store loads and saves the character state behind a Player.
type Store struct {
	db     *gorm.DB
	inv    *item.InventoryService
	logger *zap.Logger
}

func NewStore(db *gorm.DB, inv *item.InventoryService, logger *zap.Logger) *Store {
	return &Store{db: db, inv: inv, logger: logger}
}

func (s *Store) Inventory() *item.InventoryService { return s.inv }

// LoadCharacter returns ErrNotFound for an unknown id.
func (s *Store) LoadCharacter(ctx context.Context, id int64) (*model.Character, error) {
	var c model.Character
	err := s.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("character %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCharacter(ctx context.Context, c *model.Character) error {
	return s.db.WithContext(ctx).Create(c).Error
}

// SavePlayer writes the character and the bag when they changed.
func (s *Store) SavePlayer(ctx context.Context, p *Player) error {
	var err error
	if p.takeDirty() {
		c := p.Character()
		if e := s.db.WithContext(ctx).Model(&model.Character{}).Where("id = ?", c.ID).
			Updates(map[string]interface{}{
				"level":      c.Level,
				"exp":        c.Exp,
				"gold":       c.Gold,
				"guild_name": c.GuildName,
				"region":     c.Region,
				"zone":       c.Zone,
				"x":          c.X,
				"y":          c.Y,
				"z":          c.Z,
				"heading":    c.Heading,
			}).Error; e != nil {
			p.mu.Lock()
			p.dirty = true
			p.mu.Unlock()
			err = multierr.Append(err, fmt.Errorf("character %d: %w", c.ID, e))
		}
	}
	if e := s.inv.Save(ctx, p.ObjectID(), p.bag); e != nil {
		err = multierr.Append(err, fmt.Errorf("inventory %d: %w", p.ObjectID(), e))
	}
	return err
}

// SaveAll saves every present player and returns every failure.
func (w *World) SaveAll(ctx context.Context, s *Store) error {
	var err error
	for _, p := range w.Players() {
		err = multierr.Append(err, s.SavePlayer(ctx, p))
	}
	if err != nil {
		w.logger.Error("periodic save incomplete",
			zap.Int("failures", len(multierr.Errors(err))), zap.Error(err))
	}
	return err
}
