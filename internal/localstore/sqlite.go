package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dealerhub/showroom/internal/repo"
	"github.com/dealerhub/showroom/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one row of the kv_entries table.
type Entry struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Entry) TableName() string { return "kv_entries" }

// SQLite persists values in a local database file.
type SQLite struct {
	repo.Base
	client *db.Client
}

// NewSQLite ensures the kv_entries table exists on client.
func NewSQLite(ctx context.Context, client *db.Client) (*SQLite, error) {
	if client == nil {
		return nil, errors.New("db client is required")
	}
	if err := client.DB().WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}
	return &SQLite{Base: repo.NewBase(client.DB()), client: client}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var entry Entry
	err := s.DB(ctx).Where("key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	entry := Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (s *SQLite) Remove(ctx context.Context, key string) error {
	return s.DB(ctx).Where("key = ?", key).Delete(&Entry{}).Error
}

func (s *SQLite) Close() error {
	return s.client.Close()
}
