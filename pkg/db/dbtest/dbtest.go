// Package dbtest opens migrated in-memory SQLite databases for repository tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/dealerhub/showroom/pkg/db"
	"github.com/dealerhub/showroom/pkg/db/models"
	"github.com/dealerhub/showroom/pkg/enums"
	"github.com/dealerhub/showroom/pkg/migrate"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open returns a client over a private in-memory database with every embedded
// migration applied.
func Open(t testing.TB) *db.Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := migrate.Run(context.Background(), sqlDB, db.DialectSQLite, migrate.EmbeddedDir, "up"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db.Wrap(conn)
}

// MustCreateUser inserts an active user with the given role.
func MustCreateUser(t testing.TB, conn *gorm.DB, role enums.Role) *models.User {
	t.Helper()
	user := &models.User{
		Email:        fmt.Sprintf("sr_test_%s@example.com", uuid.NewString()),
		PasswordHash: "hash",
		FullName:     "Repo Tester",
		IsActive:     true,
	}
	if role != "" {
		user.Metadata = map[string]any{models.MetadataKeyRole: string(role)}
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// MustCreateVehicle inserts an available vehicle.
func MustCreateVehicle(t testing.TB, conn *gorm.DB, makeName, model string, price string) *models.Vehicle {
	t.Helper()
	stock := uuid.NewString()[:8]
	vehicle := &models.Vehicle{
		StockNumber: "STK-" + stock,
		VIN:         "VIN" + stock,
		Make:        makeName,
		Model:       model,
		Year:        2024,
		Mileage:     1200,
		Price:       decimal.RequireFromString(price),
		Condition:   enums.VehicleConditionUsed,
		Status:      enums.VehicleStatusAvailable,
	}
	if err := conn.Create(vehicle).Error; err != nil {
		t.Fatalf("create vehicle: %v", err)
	}
	return vehicle
}
