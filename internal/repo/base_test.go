package repo

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return conn
}

type ctxKey struct{}

func TestBaseDBBindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	withCtx := base.DB(ctx)
	if withCtx.Statement == nil || withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through")
	}
	//nolint:staticcheck // nil ctx is part of the contract
	if base.DB(nil) != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestBaseTransactionRollsBack(t *testing.T) {
	db := newTestDB(t)
	if err := db.Exec(`CREATE TABLE saved_vehicles (id INTEGER PRIMARY KEY, label TEXT)`).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	base := NewBase(db)
	boom := errors.New("boom")

	err := base.Transaction(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Exec(`INSERT INTO saved_vehicles (label) VALUES ('cx-5')`).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int64
	if err := db.Table("saved_vehicles").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, found %d rows", count)
	}
}

func TestBaseNestedTransactionJoinsOuter(t *testing.T) {
	db := newTestDB(t)
	if err := db.Exec(`CREATE TABLE saved_vehicles (id INTEGER PRIMARY KEY, label TEXT)`).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	base := NewBase(db)
	boom := errors.New("boom")

	err := base.Transaction(context.Background(), func(outer *gorm.DB) error {
		inner := base.DB(outer.Statement.Context)
		if inner != outer {
			t.Fatalf("expected DB to return the ambient transaction")
		}
		if err := base.Transaction(outer.Statement.Context, func(tx *gorm.DB) error {
			return tx.Exec(`INSERT INTO saved_vehicles (label) VALUES ('miata')`).Error
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int64
	if err := db.Table("saved_vehicles").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("inner write should roll back with outer, found %d rows", count)
	}
}

func TestLoadErrorClassifies(t *testing.T) {
	if LoadError(nil, "vehicle") != nil {
		t.Fatalf("nil stays nil")
	}
	notFound := LoadError(gorm.ErrRecordNotFound, "vehicle")
	if !pkgerrors.IsCode(notFound, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", notFound)
	}
	internal := LoadError(errors.New("conn reset"), "vehicle")
	if !pkgerrors.IsCode(internal, pkgerrors.CodeInternal) {
		t.Fatalf("expected INTERNAL, got %v", internal)
	}
}
