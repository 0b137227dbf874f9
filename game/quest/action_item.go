package quest

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// giveItem puts one instance of t in the player's backpack, or on the ground
// next to them with a notice when the backpack is full.
func giveItem(c *Context, t *ItemTemplate) bool {
	err := c.Player.Inventory().Add(t, 1)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrInventoryFull):
		c.eng.world.DropOnGround(c.Player, t)
		c.Player.Out().Message(fmt.Sprintf(
			"Your inventory is full. You couldn't receive the %s, so it has been placed on the ground.", t.Name), ChatPopup)
	default:
		c.warn("add item failed", zap.String("item", t.ID), zap.Error(err))
	}
	return false
}

// GiveItemAction hands one Item to the player, from NPC when set.
type GiveItemAction struct {
	Item *ItemTemplate
	NPC  NPC
}

func (GiveItemAction) Kind() ActionKind { return ActGiveItem }

func (a GiveItemAction) check(*Part) error {
	if a.Item == nil {
		return actionErr(ActGiveItem, "item is required")
	}
	return nil
}

func (a GiveItemAction) Perform(c *Context) {
	if !giveItem(c, a.Item) {
		return
	}
	if a.NPC != nil {
		c.Player.Out().Message(fmt.Sprintf("You receive %s from %s.", a.Item.Name, a.NPC.Name()), ChatLoot)
		return
	}
	c.Player.Out().Message(fmt.Sprintf("You receive the %s.", a.Item.Name), ChatLoot)
}

// TakeItemAction removes Count instances of Item, or nothing if the player
// holds fewer. The part NPC, if any, is named as the receiver.
type TakeItemAction struct {
	Item  *ItemTemplate
	Count int
}

func (TakeItemAction) Kind() ActionKind { return ActTakeItem }

func (a TakeItemAction) check(*Part) error {
	if a.Item == nil {
		return actionErr(ActTakeItem, "item is required")
	}
	if a.Count < 1 {
		return actionErr(ActTakeItem, "count must be positive, got %d", a.Count)
	}
	return nil
}

func (a TakeItemAction) Perform(c *Context) {
	if !c.Player.Inventory().Remove(a.Item.ID, a.Count) {
		c.debug("take item: not enough in backpack", zap.String("item", a.Item.ID), zap.Int("count", a.Count))
		return
	}
	if npc := c.Part.npc; npc != nil {
		c.Player.Out().Message(fmt.Sprintf("You give %s to %s.", a.Item.Name, npc.Name()), ChatSystem)
		return
	}
	c.Player.Out().Message(fmt.Sprintf("You give %s.", a.Item.Name), ChatSystem)
}

// DropItemAction places Item on the ground in front of the player.
type DropItemAction struct {
	Item *ItemTemplate
}

func (DropItemAction) Kind() ActionKind { return ActDropItem }

func (a DropItemAction) check(*Part) error {
	if a.Item == nil {
		return actionErr(ActDropItem, "item is required")
	}
	return nil
}

func (a DropItemAction) Perform(c *Context) {
	c.eng.world.DropOnGround(c.Player, a.Item)
	c.Player.Out().Message(fmt.Sprintf("%s drops in front of you.", a.Item.Name), ChatSystem)
}

type DestroyItemAction struct {
	Item  *ItemTemplate
	Count int
}

func (DestroyItemAction) Kind() ActionKind { return ActDestroyItem }

func (a DestroyItemAction) check(*Part) error {
	if a.Item == nil {
		return actionErr(ActDestroyItem, "item is required")
	}
	if a.Count < 1 {
		return actionErr(ActDestroyItem, "count must be positive, got %d", a.Count)
	}
	return nil
}

func (a DestroyItemAction) Perform(c *Context) {
	if !c.Player.Inventory().Remove(a.Item.ID, a.Count) {
		c.debug("destroy item: not enough in backpack", zap.String("item", a.Item.ID), zap.Int("count", a.Count))
		return
	}
	c.Player.Out().Message(fmt.Sprintf("%s is destroyed.", a.Item.Name), ChatSystem)
}

// ReplaceItemAction swaps one instance of Old for one of New. Nothing happens
// if the player has no Old.
type ReplaceItemAction struct {
	Old *ItemTemplate
	New *ItemTemplate
}

func (ReplaceItemAction) Kind() ActionKind { return ActReplaceItem }

func (a ReplaceItemAction) check(*Part) error {
	if a.Old == nil || a.New == nil {
		return actionErr(ActReplaceItem, "old and new items are required")
	}
	return nil
}

func (a ReplaceItemAction) Perform(c *Context) {
	if !c.Player.Inventory().Remove(a.Old.ID, 1) {
		c.debug("replace item: old item missing", zap.String("item", a.Old.ID))
		return
	}
	giveItem(c, a.New)
}

type GiveXPAction struct {
	Amount int64
}

func positiveAmount(k ActionKind, n int64) error {
	if n <= 0 {
		return actionErr(k, "amount must be positive, got %d", n)
	}
	return nil
}

func (GiveXPAction) Kind() ActionKind     { return ActGiveXP }
func (a GiveXPAction) check(*Part) error  { return positiveAmount(ActGiveXP, a.Amount) }
func (a GiveXPAction) Perform(c *Context) { c.Player.GainExperience(a.Amount) }

type GiveGoldAction struct {
	Amount int64
}

func (GiveGoldAction) Kind() ActionKind    { return ActGiveGold }
func (a GiveGoldAction) check(*Part) error { return positiveAmount(ActGiveGold, a.Amount) }

func (a GiveGoldAction) Perform(c *Context) {
	c.Player.AddMoney(a.Amount)
	c.Player.Out().Message(fmt.Sprintf("You receive %d gold.", a.Amount), ChatLoot)
}

// TakeGoldAction removes Amount gold, or nothing if the player has less.
type TakeGoldAction struct {
	Amount int64
}

func (TakeGoldAction) Kind() ActionKind    { return ActTakeGold }
func (a TakeGoldAction) check(*Part) error { return positiveAmount(ActTakeGold, a.Amount) }

func (a TakeGoldAction) Perform(c *Context) {
	if !c.Player.RemoveMoney(a.Amount) {
		c.debug("take gold: not enough money", zap.Int64("amount", a.Amount))
		return
	}
	c.Player.Out().Message(fmt.Sprintf("You give %d gold.", a.Amount), ChatSystem)
}
