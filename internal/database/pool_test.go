package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/stageflow/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return mockDB, mock, gormDB
}

func testPoolConfig() PoolConfig {
	return PoolConfig{Name: "test", MaxOpenConns: 10, MaxIdleConns: 5}
}

type fakeStatsRecorder struct {
	mu    sync.Mutex
	calls []string
	open  int
}

func (f *fakeStatsRecorder) RecordDBConnections(name string, open, idle int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	f.open = open
}

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func TestNewPoolManager(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, gormDB, manager.DB())
	assert.Equal(t, 10, manager.GetStats().MaxOpenConnections)
}

func TestNewPoolManager_Errors(t *testing.T) {
	_, err := NewPoolManager(nil, testPoolConfig(), nil)
	assert.Error(t, err)

	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()
	_, err = NewPoolManager(gormDB, PoolConfig{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pool config")
}

func TestPoolManager_Ping(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, manager.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.ErrorIs(t, manager.Ping(context.Background()), sql.ErrConnDone)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_Close(t *testing.T) {
	_, mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, manager.Close())
	// 第二次关闭不再触达驱动
	require.NoError(t, manager.Close())
	assert.ErrorIs(t, manager.Ping(context.Background()), ErrPoolClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_HealthCheckReportsStats(t *testing.T) {
	_, mock, gormDB := setupTestDB(t)

	cfg := testPoolConfig()
	cfg.HealthCheckInterval = 20 * time.Millisecond
	manager, err := NewPoolManager(gormDB, cfg, zap.NewNop())
	require.NoError(t, err)

	rec := &fakeStatsRecorder{}
	manager.SetRecorder(rec)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 50; i++ {
		mock.ExpectPing()
	}

	assert.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.calls) > 0
	}, time.Second, 10*time.Millisecond)

	mock.ExpectClose()
	require.NoError(t, manager.Close())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "test", rec.calls[0])
}

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  PoolConfig
		wantErr bool
	}{
		{"valid config", PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour}, false},
		{"invalid max open conns", PoolConfig{MaxOpenConns: 0, MaxIdleConns: 5}, true},
		{"invalid max idle conns", PoolConfig{MaxOpenConns: 10, MaxIdleConns: 0}, true},
		{"idle > open", PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPoolConfigFrom(t *testing.T) {
	pc := PoolConfigFrom(config.DatabaseConfig{MaxOpenConns: 4, MaxIdleConns: 8, ConnMaxLifetime: time.Minute})
	assert.Equal(t, 4, pc.MaxOpenConns)
	assert.Equal(t, 4, pc.MaxIdleConns)
	assert.Equal(t, time.Minute, pc.ConnMaxLifetime)
	assert.NoError(t, pc.Validate())

	def := PoolConfigFrom(config.DatabaseConfig{})
	assert.Equal(t, DefaultPoolConfig(), def)
}

// =============================================================================
// 🧪 Open 测试
// =============================================================================

func TestDialector(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql", "sqlite"} {
		d, err := Dialector(config.DatabaseConfig{Driver: driver, Host: "localhost", Port: 5432, Name: "stageflow"})
		require.NoError(t, err, driver)
		assert.NotNil(t, d)
	}

	_, err := Dialector(config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)

	_, err = Dialector(config.DatabaseConfig{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	pm, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: path}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })

	require.NoError(t, pm.Ping(context.Background()))

	rec := &fakeStatsRecorder{}
	pm.SetRecorder(rec)
	pm.checkOnce()
	assert.Equal(t, []string{"sessions"}, rec.calls)
}
