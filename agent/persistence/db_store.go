package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/stageflow/types"
)

// sessionRecord is the row layout of the sessions table.
type sessionRecord struct {
	SessionID     string `gorm:"primaryKey;size:255"`
	CurrentStage  string `gorm:"size:64"`
	ResearchTopic string `gorm:"type:text"`
	Data          string `gorm:"type:text"`
	Timestamp     int64
	UpdatedAt     time.Time
}

// DBSessionStore stores snapshots in a relational table through GORM.
type DBSessionStore struct {
	db    *gorm.DB
	table string
}

// NewDBSessionStore migrates the sessions table and returns the store.
func NewDBSessionStore(db *gorm.DB, table string) (*DBSessionStore, error) {
	if table == "" {
		table = DefaultStoreConfig().Table
	}
	if err := db.Table(table).AutoMigrate(&sessionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session table: %w", err)
	}
	return &DBSessionStore{db: db, table: table}, nil
}

func (s *DBSessionStore) Save(ctx context.Context, sessionID string, snap *Snapshot) error {
	if err := validateSnapshot(sessionID, snap); err != nil {
		return err
	}
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}
	rec := sessionRecord{
		SessionID:     sessionID,
		CurrentStage:  string(snap.CurrentStage),
		ResearchTopic: snap.ResearchTopic,
		Data:          string(data),
		Timestamp:     snap.Timestamp,
	}
	return s.db.WithContext(ctx).Table(s.table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"current_stage", "research_topic", "data", "timestamp", "updated_at"}),
	}).Create(&rec).Error
}

func (s *DBSessionStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	var rec sessionRecord
	err := s.db.WithContext(ctx).Table(s.table).Where("session_id = ?", sessionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		SessionID:     rec.SessionID,
		CurrentStage:  types.Stage(rec.CurrentStage),
		ResearchTopic: rec.ResearchTopic,
		Timestamp:     rec.Timestamp,
		Data:          map[string]any{},
	}
	if rec.Data != "" {
		if err := json.Unmarshal([]byte(rec.Data), &snap.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
		}
	}
	return snap, nil
}

func (s *DBSessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Table(s.table).Where("session_id = ?", sessionID).Delete(&sessionRecord{}).Error
}

func (s *DBSessionStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Table(s.table).Order("session_id").Pluck("session_id", &ids).Error
	return ids, err
}

// Close is a no-op; the connection pool belongs to the caller.
func (s *DBSessionStore) Close() error { return nil }

func (s *DBSessionStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
