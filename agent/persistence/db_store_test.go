package persistence

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/stageflow/types"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestDBSessionStore_Upsert(t *testing.T) {
	store, err := NewDBSessionStore(openTestDB(t), "")
	require.NoError(t, err)
	ctx := context.Background()

	snap := &Snapshot{
		SessionID:     "s1",
		CurrentStage:  types.StageLiteratureSearch,
		ResearchTopic: "topic",
		Data:          map[string]any{"n": float64(1)},
		Timestamp:     10,
	}
	require.NoError(t, store.Save(ctx, "s1", snap))

	snap.Data["n"] = float64(2)
	snap.CurrentStage = types.StageDataAnalysis
	require.NoError(t, store.Save(ctx, "s1", snap))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestDBSessionStore_MissingAndDelete(t *testing.T) {
	store, err := NewDBSessionStore(openTestDB(t), "custom_sessions")
	require.NoError(t, err)
	ctx := context.Background()

	loaded, err := store.Load(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, store.Save(ctx, "s1", &Snapshot{SessionID: "s1"}))
	require.NoError(t, store.Delete(ctx, "s1"))
	loaded, err = store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.NoError(t, store.Ping(ctx))
}

func TestNewSessionStore_Factory(t *testing.T) {
	cfg := DefaultStoreConfig()

	s, err := NewSessionStore(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemorySessionStore{}, s)

	cfg.Type = StoreTypeFile
	cfg.BaseDir = t.TempDir()
	s, err = NewSessionStore(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileSessionStore{}, s)

	cfg.Type = StoreTypeDatabase
	_, err = NewSessionStore(cfg, nil)
	assert.Error(t, err)
	s, err = NewSessionStore(cfg, openTestDB(t))
	require.NoError(t, err)
	assert.IsType(t, &DBSessionStore{}, s)

	cfg.Type = "etcd"
	_, err = NewSessionStore(cfg, nil)
	assert.Error(t, err)
}
