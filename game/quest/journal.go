package quest

import (
	"sort"
	"sync"
)

// Quest is a snapshot of one active quest instance. Step 0 means not active.
type Quest struct {
	ID   QuestID
	Step int
}

// Journal is a player's quest state: the active instances keyed by quest id
// and the finished counters. It belongs to exactly one player.
type Journal struct {
	mu       sync.RWMutex
	active   map[QuestID]int
	finished map[QuestID]int
}

func NewJournal() *Journal {
	return &Journal{
		active:   make(map[QuestID]int),
		finished: make(map[QuestID]int),
	}
}

// Step returns the current step of the quest, or 0 when it is not active.
func (j *Journal) Step(id QuestID) int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.active[id]
}

func (j *Journal) Active(id QuestID) bool { return j.Step(id) > 0 }

// FinishedCount returns how many times the quest has been finished.
func (j *Journal) FinishedCount(id QuestID) int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.finished[id]
}

// ActiveQuests returns the active instances ordered by quest id.
func (j *Journal) ActiveQuests() []Quest {
	j.mu.RLock()
	out := make([]Quest, 0, len(j.active))
	for id, step := range j.active {
		out = append(out, Quest{ID: id, Step: step})
	}
	j.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Finished returns a copy of the finished counters.
func (j *Journal) Finished() map[QuestID]int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make(map[QuestID]int, len(j.finished))
	for id, n := range j.finished {
		out[id] = n
	}
	return out
}

// Load replaces the journal contents with persisted state. Entries with a
// non-positive step are skipped.
func (j *Journal) Load(active []Quest, finished map[QuestID]int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.active = make(map[QuestID]int, len(active))
	for _, q := range active {
		if q.Step > 0 {
			j.active[q.ID] = q.Step
		}
	}
	j.finished = make(map[QuestID]int, len(finished))
	for id, n := range finished {
		j.finished[id] = n
	}
}

// start creates the instance at step unless one is already live.
func (j *Journal) start(id QuestID, step int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.active[id]; ok {
		return false
	}
	j.active[id] = step
	return true
}

// update applies fn to the step of a live instance.
func (j *Journal) update(id QuestID, fn func(step int) int) (int, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	step, ok := j.active[id]
	if !ok {
		return 0, false
	}
	step = fn(step)
	j.active[id] = step
	return step, true
}

// finish removes the live instance and counts the completion.
func (j *Journal) finish(id QuestID) (int, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.active[id]; !ok {
		return 0, false
	}
	delete(j.active, id)
	j.finished[id]++
	return j.finished[id], true
}

// remove drops the live instance without counting it.
func (j *Journal) remove(id QuestID) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.active[id]; !ok {
		return false
	}
	delete(j.active, id)
	return true
}
