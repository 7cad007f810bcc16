package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/stageflow/config"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrUnsupportedDriver is returned by Open for drivers other than
// postgres, mysql and sqlite.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Dialector 根据驱动类型构造 GORM dialector
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	dsn := cfg.DSN()
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite", "sqlite3":
		if dsn == "" {
			return nil, errors.New("sqlite requires database.name to be a file path")
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

// Open 打开数据库并应用连接池配置。
// 返回的 PoolManager 持有底层连接，调用方负责 Close。
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*PoolManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	pm, err := NewPoolManager(db, PoolConfigFrom(cfg), logger)
	if err != nil {
		return nil, err
	}
	logger.Info("database opened", zap.String("driver", cfg.Driver), zap.String("name", cfg.Name))
	return pm, nil
}
