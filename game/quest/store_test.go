package quest

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/rpgquest/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGormStore_ActiveQuests(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(testutil.SetupTestDB(t))

	require.NoError(t, store.SaveQuest(ctx, 1, Quest{ID: 5, Step: 1}))
	require.NoError(t, store.SaveQuest(ctx, 1, Quest{ID: 2, Step: 4}))
	require.NoError(t, store.SaveQuest(ctx, 1, Quest{ID: 5, Step: 3}))
	require.NoError(t, store.SaveQuest(ctx, 2, Quest{ID: 5, Step: 9}))

	got, err := store.LoadActiveQuests(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []Quest{{ID: 2, Step: 4}, {ID: 5, Step: 3}}, got)

	require.NoError(t, store.DeleteQuest(ctx, 1, 5))
	got, err = store.LoadActiveQuests(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []Quest{{ID: 2, Step: 4}}, got)

	got, err = store.LoadActiveQuests(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []Quest{{ID: 5, Step: 9}}, got)
}

func TestGormStore_FinishedCounts(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(testutil.SetupTestDB(t))

	require.NoError(t, store.IncrementFinished(ctx, 1, 3))
	require.NoError(t, store.IncrementFinished(ctx, 1, 3))
	require.NoError(t, store.IncrementFinished(ctx, 1, 4))

	got, err := store.LoadFinished(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[QuestID]int{3: 2, 4: 1}, got)

	got, err = store.LoadFinished(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPersister_WritesThroughManager(t *testing.T) {
	store := NewGormStore(testutil.SetupTestDB(t))
	persister := NewPersister(store, 16, zap.NewNop())

	h := newHarness(t, func(d *Deps) { d.Persister = persister })
	m := h.eng.Manager()
	h.descriptor(1, "Rats", 1, 50, 1)
	h.descriptor(2, "Wolves", 1, 50, 1)
	h.descriptor(3, "Bears", 1, 50, 1)
	p := h.player(100, "alice", 5)

	require.True(t, m.Give(1, p, nil, 0))
	require.True(t, m.IncStep(1, p))
	require.True(t, m.Give(2, p, nil, 0))
	require.True(t, m.Finish(2, p))
	require.True(t, m.Give(3, p, nil, 0))
	require.True(t, m.Abort(3, p))
	persister.Stop()

	reloaded := newPlayer(100, "alice", 5)
	require.NoError(t, persister.Load(context.Background(), 100, reloaded.journal))
	assert.Equal(t, []Quest{{ID: 1, Step: 2}}, reloaded.journal.ActiveQuests())
	assert.Equal(t, map[QuestID]int{2: 1}, reloaded.journal.Finished())
}

func TestManager_LoadPlayer(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(testutil.SetupTestDB(t))
	require.NoError(t, store.SaveQuest(ctx, 100, Quest{ID: 1, Step: 6}))
	require.NoError(t, store.IncrementFinished(ctx, 100, 2))

	persister := NewPersister(store, 16, zap.NewNop())
	t.Cleanup(persister.Stop)
	h := newHarness(t, func(d *Deps) { d.Persister = persister })
	h.descriptor(1, "Rats", 1, 50, 1)
	p := h.player(100, "alice", 5)

	require.NoError(t, h.eng.Manager().LoadPlayer(ctx, p))
	assert.Equal(t, 6, p.journal.Step(1))
	assert.Equal(t, 1, p.journal.FinishedCount(2))
	require.Len(t, p.out.lists, 1)
	assert.Equal(t, []JournalEntry{{QuestID: 1, Name: "Rats", Step: 6}}, p.out.lists[0])
}

// slowStore delays every write, leaving a backlog in the persister queue.
type slowStore struct {
	Store
	delay time.Duration
}

func (s slowStore) SaveQuest(ctx context.Context, charID int64, q Quest) error {
	time.Sleep(s.delay)
	return s.Store.SaveQuest(ctx, charID, q)
}

func (s slowStore) DeleteQuest(ctx context.Context, charID int64, id QuestID) error {
	time.Sleep(s.delay)
	return s.Store.DeleteQuest(ctx, charID, id)
}

func (s slowStore) IncrementFinished(ctx context.Context, charID int64, id QuestID) error {
	time.Sleep(s.delay)
	return s.Store.IncrementFinished(ctx, charID, id)
}

func TestPersister_LoadSeesQueuedWrites(t *testing.T) {
	store := slowStore{Store: NewGormStore(testutil.SetupTestDB(t)), delay: 30 * time.Millisecond}
	persister := NewPersister(store, 16, zap.NewNop())
	t.Cleanup(persister.Stop)

	h := newHarness(t, func(d *Deps) { d.Persister = persister })
	m := h.eng.Manager()
	h.descriptor(1, "Rats", 1, 50, 1)
	p := h.player(100, "alice", 5)
	require.True(t, m.Give(1, p, nil, 0))
	require.True(t, m.Finish(1, p))

	// Reconnect while the writes are still queued.
	again := newPlayer(100, "alice", 5)
	require.NoError(t, m.LoadPlayer(context.Background(), again))
	assert.False(t, again.journal.Active(1))
	assert.Equal(t, 1, again.journal.FinishedCount(1))
	assert.Zero(t, m.CanGive(1, again, nil), "the repeat cap survives the reconnect")
}

func TestPersister_LoadAfterStop(t *testing.T) {
	store := NewGormStore(testutil.SetupTestDB(t))
	require.NoError(t, store.IncrementFinished(context.Background(), 7, 1))
	persister := NewPersister(store, 4, zap.NewNop())
	persister.Stop()

	j := NewJournal()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, persister.Load(ctx, 7, j))
	assert.Equal(t, 1, j.FinishedCount(1))
}

func TestJournal(t *testing.T) {
	j := NewJournal()
	assert.False(t, j.Active(1))
	assert.True(t, j.start(1, 1))
	assert.False(t, j.start(1, 2), "one live instance per quest")

	step, ok := j.update(1, func(s int) int { return s + 2 })
	require.True(t, ok)
	assert.Equal(t, 3, step)
	_, ok = j.update(2, func(s int) int { return s + 1 })
	assert.False(t, ok)

	n, ok := j.finish(1)
	require.True(t, ok)
	assert.Equal(t, 1, n)
	_, ok = j.finish(1)
	assert.False(t, ok)
	assert.False(t, j.remove(1))

	j.Load([]Quest{{ID: 4, Step: 2}, {ID: 5, Step: 0}}, map[QuestID]int{1: 3})
	assert.Equal(t, []Quest{{ID: 4, Step: 2}}, j.ActiveQuests(), "non-positive steps are skipped")
	assert.Equal(t, 3, j.FinishedCount(1))
}
