package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/rpgquest/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Quest transition actions.
const (
	ActionQuestGive   = "quest_give"
	ActionQuestStep   = "quest_step"
	ActionQuestFinish = "quest_finish"
	ActionQuestAbort  = "quest_abort"
	ActionReload      = "content_reload"
)

// Entry holds one audit event to be logged.
type Entry struct {
	TraceID  string
	CharID   *int64
	CharName string
	Action   string
	QuestID  int
	Step     int
	Detail   interface{}
	Error    string
	IP       string
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db       *gorm.DB
	ch       chan *model.AuditLog
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, 1024),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an audit entry for async DB write. It never blocks.
func (svc *Service) Log(entry Entry) {
	record := &model.AuditLog{
		TraceID:  entry.TraceID,
		CharID:   entry.CharID,
		CharName: entry.CharName,
		Action:   entry.Action,
		QuestID:  entry.QuestID,
		Step:     entry.Step,
		Error:    entry.Error,
		IP:       entry.IP,
	}
	if entry.Detail != nil {
		if raw, err := json.Marshal(entry.Detail); err == nil {
			record.Detail = datatypes.JSON(raw)
		}
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action), zap.Int("quest_id", entry.QuestID))
	}
}

// Recent returns the newest audit rows for a character, newest first.
func (svc *Service) Recent(ctx context.Context, charID int64, limit int) ([]model.AuditLog, error) {
	var rows []model.AuditLog
	err := svc.db.WithContext(ctx).
		Where("char_id = ?", charID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Error(err), zap.Int("rows", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
