package db

import (
	"fmt"

	"github.com/kasuganosora/rpgquest/config"
	dbmysql "github.com/kasuganosora/rpgquest/db/mysql"
	dbsqlite "github.com/kasuganosora/rpgquest/db/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ModeSQLite       = "sqlite"
	ModeSQLiteMemory = "sqlite_memory"
	ModeMySQL        = "mysql"
)

// Open returns a *gorm.DB for the configured database mode. A nil log
// silences gorm.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gl := NewGormLogger(log, cfg.SlowQuery, cfg.LogQueries)
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath, gl)
	case ModeSQLiteMemory:
		return dbsqlite.OpenMemory(cfg.SQLitePath, gl)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, dbmysql.Pool{
			MaxOpen: cfg.MySQLMaxOpen,
			MaxIdle: cfg.MySQLMaxIdle,
			MaxLife: cfg.MySQLMaxLife,
		}, gl)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
