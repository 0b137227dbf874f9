package item

import (
	"sort"
	"sync"

	"github.com/kasuganosora/rpgquest/game/quest"
)

// MaxStack is how many instances of one item share a backpack slot.
const MaxStack = 99

// ErrInventoryFull is returned by Bag.Add when the backpack has no room.
var ErrInventoryFull = quest.ErrInventoryFull

// Stack is one line of a bag listing.
type Stack struct {
	ItemID   string `json:"item_id"`
	Qty      int    `json:"qty"`
	Equipped bool   `json:"equipped"`
}

// Bag is a slot-bounded backpack plus worn equipment. Equipped items do not
// occupy backpack slots. It implements quest.Inventory.
type Bag struct {
	mu       sync.Mutex
	slots    int
	backpack map[string]int
	equipped map[string]int
	dirty    bool

	// OnChange, when set, is called after every successful change with the
	// item's new backpack count. It runs without the bag lock held.
	OnChange func(itemID string, count int)
}

// NewBag creates an empty bag with the given number of backpack slots.
func NewBag(slots int) *Bag {
	return &Bag{
		slots:    slots,
		backpack: make(map[string]int),
		equipped: make(map[string]int),
	}
}

func slotsFor(qty int) int {
	return (qty + MaxStack - 1) / MaxStack
}

func (b *Bag) usedLocked() int {
	n := 0
	for _, qty := range b.backpack {
		n += slotsFor(qty)
	}
	return n
}

// Count returns how many instances of the item are in the backpack.
func (b *Bag) Count(itemID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.backpack[itemID]
}

func (b *Bag) IsEquipped(itemID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.equipped[itemID] > 0
}

// Add places count instances in the backpack, or nothing when they do not fit.
func (b *Bag) Add(t *quest.ItemTemplate, count int) error {
	if t == nil || count <= 0 {
		return nil
	}
	b.mu.Lock()
	cur := b.backpack[t.ID]
	if b.usedLocked()-slotsFor(cur)+slotsFor(cur+count) > b.slots {
		b.mu.Unlock()
		return ErrInventoryFull
	}
	b.backpack[t.ID] = cur + count
	b.dirty = true
	n := b.backpack[t.ID]
	b.mu.Unlock()
	b.changed(t.ID, n)
	return nil
}

// Remove takes count instances from the backpack, or nothing if fewer exist.
func (b *Bag) Remove(itemID string, count int) bool {
	if count <= 0 {
		return false
	}
	b.mu.Lock()
	cur := b.backpack[itemID]
	if cur < count {
		b.mu.Unlock()
		return false
	}
	if cur == count {
		delete(b.backpack, itemID)
	} else {
		b.backpack[itemID] = cur - count
	}
	b.dirty = true
	n := b.backpack[itemID]
	b.mu.Unlock()
	b.changed(itemID, n)
	return true
}

// Equip moves one instance from the backpack onto the character.
func (b *Bag) Equip(itemID string) bool {
	b.mu.Lock()
	cur := b.backpack[itemID]
	if cur == 0 {
		b.mu.Unlock()
		return false
	}
	if cur == 1 {
		delete(b.backpack, itemID)
	} else {
		b.backpack[itemID] = cur - 1
	}
	b.equipped[itemID]++
	b.dirty = true
	b.mu.Unlock()
	b.changed(itemID, cur-1)
	return true
}

// Unequip moves one worn instance back into the backpack if a slot is free.
func (b *Bag) Unequip(itemID string) error {
	b.mu.Lock()
	worn := b.equipped[itemID]
	if worn == 0 {
		b.mu.Unlock()
		return nil
	}
	cur := b.backpack[itemID]
	if b.usedLocked()-slotsFor(cur)+slotsFor(cur+1) > b.slots {
		b.mu.Unlock()
		return ErrInventoryFull
	}
	if worn == 1 {
		delete(b.equipped, itemID)
	} else {
		b.equipped[itemID] = worn - 1
	}
	b.backpack[itemID] = cur + 1
	b.dirty = true
	b.mu.Unlock()
	b.changed(itemID, cur+1)
	return nil
}

// FreeSlots returns how many backpack slots are unused.
func (b *Bag) FreeSlots() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slots - b.usedLocked()
}

// Stacks lists the bag contents sorted by item id, backpack before equipment.
func (b *Bag) Stacks() []Stack {
	b.mu.Lock()
	out := make([]Stack, 0, len(b.backpack)+len(b.equipped))
	for id, qty := range b.backpack {
		out = append(out, Stack{ItemID: id, Qty: qty})
	}
	for id, qty := range b.equipped {
		out = append(out, Stack{ItemID: id, Qty: qty, Equipped: true})
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return !out[i].Equipped && out[j].Equipped
	})
	return out
}

// load replaces the contents without marking the bag dirty. Stacks beyond
// the slot count are kept; the next Add simply fails.
func (b *Bag) load(stacks []Stack) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backpack = make(map[string]int)
	b.equipped = make(map[string]int)
	for _, s := range stacks {
		if s.Qty <= 0 {
			continue
		}
		if s.Equipped {
			b.equipped[s.ItemID] += s.Qty
		} else {
			b.backpack[s.ItemID] += s.Qty
		}
	}
	b.dirty = false
}

// takeDirty reports whether the bag changed since the last call.
func (b *Bag) takeDirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.dirty
	b.dirty = false
	return d
}

func (b *Bag) changed(itemID string, count int) {
	if b.OnChange != nil {
		b.OnChange(itemID, count)
	}
}
