package quest

import (
	"context"
	"sync"
	"time"

	"github.com/kasuganosora/rpgquest/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists quest state per character.
type Store interface {
	SaveQuest(ctx context.Context, charID int64, q Quest) error
	DeleteQuest(ctx context.Context, charID int64, id QuestID) error
	IncrementFinished(ctx context.Context, charID int64, id QuestID) error
	LoadActiveQuests(ctx context.Context, charID int64) ([]Quest, error)
	LoadFinished(ctx context.Context, charID int64) (map[QuestID]int, error)
}

// ---------------------------------------------------------------------------
// GormStore
// ---------------------------------------------------------------------------

// GormStore keeps quest state in the active_quests and finished_quests tables.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) SaveQuest(ctx context.Context, charID int64, q Quest) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "char_id"}, {Name: "quest_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"step", "updated_at"}),
	}).Create(&model.ActiveQuest{CharID: charID, QuestID: int(q.ID), Step: q.Step}).Error
}

func (s *GormStore) DeleteQuest(ctx context.Context, charID int64, id QuestID) error {
	return s.db.WithContext(ctx).
		Where("char_id = ? AND quest_id = ?", charID, int(id)).
		Delete(&model.ActiveQuest{}).Error
}

func (s *GormStore) IncrementFinished(ctx context.Context, charID int64, id QuestID) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "char_id"}, {Name: "quest_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"count":       gorm.Expr("count + 1"),
			"finished_at": time.Now(),
		}),
	}).Create(&model.FinishedQuest{CharID: charID, QuestID: int(id), Count: 1}).Error
}

func (s *GormStore) LoadActiveQuests(ctx context.Context, charID int64) ([]Quest, error) {
	var rows []model.ActiveQuest
	if err := s.db.WithContext(ctx).Where("char_id = ?", charID).Order("quest_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Quest, 0, len(rows))
	for _, r := range rows {
		out = append(out, Quest{ID: QuestID(r.QuestID), Step: r.Step})
	}
	return out, nil
}

func (s *GormStore) LoadFinished(ctx context.Context, charID int64) (map[QuestID]int, error) {
	var rows []model.FinishedQuest
	if err := s.db.WithContext(ctx).Where("char_id = ?", charID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[QuestID]int, len(rows))
	for _, r := range rows {
		out[QuestID(r.QuestID)] = r.Count
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Persister: write-behind queue in front of a Store
// ---------------------------------------------------------------------------

type writeOp uint8

const (
	opSave writeOp = iota
	opDelete
	opFinish
	opBarrier
)

type write struct {
	op     writeOp
	charID int64
	quest  Quest
	done   chan struct{} // opBarrier only
}

// Persister applies quest writes on a background worker in submission order,
// so the dispatch goroutine never waits on the database.
type Persister struct {
	store    Store
	ch       chan write
	stopCh   chan struct{}
	stopOnce sync.Once
	exited   chan struct{}
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewPersister starts the worker. queue bounds the pending writes; a full
// queue makes callers wait.
func NewPersister(store Store, queue int, logger *zap.Logger) *Persister {
	if queue <= 0 {
		queue = 1024
	}
	p := &Persister{
		store:  store,
		ch:     make(chan write, queue),
		stopCh: make(chan struct{}),
		exited: make(chan struct{}),
		logger: logger,
	}
	p.wg.Add(1)
	go p.worker()
	return p
}

func (p *Persister) Save(charID int64, q Quest) { p.enqueue(write{op: opSave, charID: charID, quest: q}) }

func (p *Persister) Delete(charID int64, id QuestID) {
	p.enqueue(write{op: opDelete, charID: charID, quest: Quest{ID: id}})
}

// Finish deletes the active row and counts the completion.
func (p *Persister) Finish(charID int64, id QuestID) {
	p.enqueue(write{op: opFinish, charID: charID, quest: Quest{ID: id}})
}

func (p *Persister) enqueue(w write) {
	select {
	case p.ch <- w:
	case <-p.stopCh:
		p.logger.Warn("persister stopped, dropping quest write",
			zap.Int64("char_id", w.charID), zap.Int("quest_id", int(w.quest.ID)))
	}
}

// Load reads a character's persisted quest state into j. Writes queued
// before the call are applied first, so a quick reconnect never reads the
// state from before its last finish.
func (p *Persister) Load(ctx context.Context, charID int64, j *Journal) error {
	if err := p.sync(ctx); err != nil {
		return err
	}
	active, err := p.store.LoadActiveQuests(ctx, charID)
	if err != nil {
		return err
	}
	finished, err := p.store.LoadFinished(ctx, charID)
	if err != nil {
		return err
	}
	j.Load(active, finished)
	return nil
}

// sync waits until every write queued before it has been applied.
func (p *Persister) sync(ctx context.Context) error {
	b := write{op: opBarrier, done: make(chan struct{})}
	select {
	case p.ch <- b:
	case <-p.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-b.done:
		return nil
	case <-p.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop flushes the queued writes and stops the worker.
func (p *Persister) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Persister) worker() {
	defer p.wg.Done()
	defer close(p.exited)
	for {
		select {
		case w := <-p.ch:
			p.apply(w)
		case <-p.stopCh:
			for {
				select {
				case w := <-p.ch:
					p.apply(w)
				default:
					return
				}
			}
		}
	}
}

func (p *Persister) apply(w write) {
	if w.op == opBarrier {
		close(w.done)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch w.op {
	case opSave:
		err = p.store.SaveQuest(ctx, w.charID, w.quest)
	case opDelete:
		err = p.store.DeleteQuest(ctx, w.charID, w.quest.ID)
	case opFinish:
		if err = p.store.DeleteQuest(ctx, w.charID, w.quest.ID); err == nil {
			err = p.store.IncrementFinished(ctx, w.charID, w.quest.ID)
		}
	}
	if err != nil {
		p.logger.Error("quest write failed",
			zap.Int64("char_id", w.charID),
			zap.Int("quest_id", int(w.quest.ID)),
			zap.Error(err))
	}
}
