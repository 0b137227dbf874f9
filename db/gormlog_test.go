package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kasuganosora/rpgquest/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func observed(debug bool) (*observer.ObservedLogs, *gormLogger) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logs, NewGormLogger(zap.New(core), 50*time.Millisecond, debug).(*gormLogger)
}

func sqlOf(s string) func() (string, int64) {
	return func() (string, int64) { return s, 1 }
}

func TestGormLogger_SlowQuery(t *testing.T) {
	logs, l := observed(false)
	l.Trace(context.Background(), time.Now().Add(-time.Second), sqlOf("SELECT 1"), nil)
	l.Trace(context.Background(), time.Now(), sqlOf("SELECT 2"), nil)

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, e.Level)
	assert.Equal(t, "SELECT 1", e.ContextMap()["sql"])
}

func TestGormLogger_IgnoresRecordNotFound(t *testing.T) {
	logs, l := observed(false)
	l.Trace(context.Background(), time.Now(), sqlOf("SELECT x"), gorm.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	l.Trace(context.Background(), time.Now(), sqlOf("SELECT y"), errors.New("disk I/O error"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
}

func TestGormLogger_DebugLogsEveryQuery(t *testing.T) {
	logs, l := observed(true)
	l.Trace(context.Background(), time.Now(), sqlOf("SELECT 3"), nil)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
}

func TestOpen_UnknownMode(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Mode: "oracle"}, nil)
	assert.Error(t, err)
}

func TestOpen_SQLiteMemory(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	db, err := Open(config.DatabaseConfig{Mode: ModeSQLiteMemory, SQLitePath: "gormlog_test"}, zap.New(core))
	require.NoError(t, err)
	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}
