package audit

import (
	"context"
	"testing"

	"github.com/kasuganosora/rpgquest/model"
	"github.com/kasuganosora/rpgquest/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLog_EnqueuedAndFlushed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zap.NewNop())

	charID := int64(1)
	svc.Log(Entry{
		TraceID:  "trace-123",
		CharID:   &charID,
		CharName: "Alice",
		Action:   ActionQuestGive,
		QuestID:  7,
		Step:     1,
		Detail:   map[string]string{"npc": "Frederick"},
		IP:       "127.0.0.1",
	})

	svc.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "trace-123", logs[0].TraceID)
	assert.Equal(t, "Alice", logs[0].CharName)
	assert.Equal(t, ActionQuestGive, logs[0].Action)
	assert.Equal(t, 7, logs[0].QuestID)
	assert.JSONEq(t, `{"npc":"Frederick"}`, string(logs[0].Detail))
}

func TestLog_BatchFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zap.NewNop())

	for i := 0; i < 150; i++ {
		svc.Log(Entry{Action: ActionQuestStep, QuestID: 1, Step: i})
	}
	svc.Stop(context.Background())

	var count int64
	db.Model(&model.AuditLog{}).Count(&count)
	assert.Equal(t, int64(150), count)
}

func TestStop_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zap.NewNop())
	svc.Stop(context.Background())
	svc.Stop(context.Background())
}

func TestLog_DropsWhenFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zap.NewNop())
	for i := 0; i < 1100; i++ {
		svc.Log(Entry{Action: "flood"})
	}
	svc.Stop(context.Background())
}

func TestRecent_NewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zap.NewNop())

	charID := int64(9)
	other := int64(10)
	svc.Log(Entry{CharID: &charID, Action: ActionQuestGive, QuestID: 1, TraceID: "a"})
	svc.Log(Entry{CharID: &charID, Action: ActionQuestFinish, QuestID: 1, TraceID: "b"})
	svc.Log(Entry{CharID: &other, Action: ActionQuestGive, QuestID: 2, TraceID: "c"})
	svc.Stop(context.Background())

	rows, err := svc.Recent(context.Background(), charID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ActionQuestFinish, rows[0].Action)
	assert.Equal(t, ActionQuestGive, rows[1].Action)
}
