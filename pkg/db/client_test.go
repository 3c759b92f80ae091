package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dealerhub/showroom/pkg/config"
	"github.com/dealerhub/showroom/pkg/logger"
)

// stockUnit is a throwaway table keyed by a unique VIN.
type stockUnit struct {
	ID  int
	VIN string `gorm:"uniqueIndex"`
}

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), gormConfig())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&stockUnit{}))
	return conn
}

func TestNewSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "showroom.db")
	client, err := New(context.Background(), config.DBConfig{SQLitePath: path}, true, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.Equal(t, DialectSQLite, client.Dialect())
	require.NoError(t, client.Ping(context.Background()))

	sqlDB, err := client.SQL()
	require.NoError(t, err)
	require.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestNewPostgresRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{}, false, nil)
	require.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	conn := openMemory(t)
	require.NoError(t, conn.Create(&stockUnit{VIN: "dup"}).Error)
	require.True(t, IsUniqueViolation(conn.Create(&stockUnit{VIN: "dup"}).Error, ""))

	pgErr := fmt.Errorf("insert request: %w", &pgconn.PgError{Code: "23505", ConstraintName: "custom_requests_idempotency_key"})
	require.True(t, IsUniqueViolation(pgErr, "custom_requests_idempotency_key"))
	require.False(t, IsUniqueViolation(pgErr, "users_email_key"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	require.False(t, IsUniqueViolation(nil, ""))
}

func TestIsNotFound(t *testing.T) {
	conn := openMemory(t)
	var unit stockUnit
	require.True(t, IsNotFound(conn.First(&unit, "vin = ?", "missing").Error))
	require.False(t, IsNotFound(errors.New("conn reset")))
}
