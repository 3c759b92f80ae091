package vehicles

import (
	"context"
	"testing"

	"github.com/dealerhub/showroom/pkg/db/dbtest"
	"github.com/dealerhub/showroom/pkg/db/models"
	"github.com/dealerhub/showroom/pkg/enums"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryListFilters(t *testing.T) {
	client := dbtest.Open(t)
	r := NewRepository(client.DB())
	ctx := context.Background()

	camry := dbtest.MustCreateVehicle(t, client.DB(), "Toyota", "Camry", "29000.00")
	dbtest.MustCreateVehicle(t, client.DB(), "Toyota", "Highlander", "45000.00")
	civic := dbtest.MustCreateVehicle(t, client.DB(), "Honda", "Civic", "24000.00")
	sold := dbtest.MustCreateVehicle(t, client.DB(), "Toyota", "Corolla", "19000.00")
	require.NoError(t, client.DB().Model(&models.Vehicle{}).Where("id = ?", sold.ID).Update("status", enums.VehicleStatusSold).Error)

	rows, _, err := r.List(ctx, ListFilters{Make: "toyota"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	maxPrice := decimal.RequireFromString("30000")
	rows, _, err = r.List(ctx, ListFilters{MaxPrice: &maxPrice})
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{camry.ID, civic.ID}, ids)

	condition := enums.VehicleConditionNew
	rows, _, err = r.List(ctx, ListFilters{Condition: &condition})
	require.NoError(t, err)
	assert.Empty(t, rows)

	soldStatus := enums.VehicleStatusSold
	rows, _, err = r.List(ctx, ListFilters{Status: &soldStatus})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, sold.ID, rows[0].ID)
}

func TestRepositoryListPaginates(t *testing.T) {
	client := dbtest.Open(t)
	r := NewRepository(client.DB())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		dbtest.MustCreateVehicle(t, client.DB(), "Ford", "F-150", "52000.00")
	}

	first, next, err := r.List(ctx, ListFilters{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotEmpty(t, next)

	second, next, err := r.List(ctx, ListFilters{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Empty(t, next)
	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.NotEqual(t, first[1].ID, second[0].ID)

	_, _, err = r.List(ctx, ListFilters{Cursor: "not-a-cursor"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestServiceGet(t *testing.T) {
	client := dbtest.Open(t)
	svc, err := NewService(NewRepository(client.DB()))
	require.NoError(t, err)
	vehicle := dbtest.MustCreateVehicle(t, client.DB(), "Mazda", "CX-5", "31000.00")

	dto, err := svc.Get(context.Background(), vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mazda", dto.Make)
	assert.True(t, dto.Price.Equal(decimal.RequireFromString("31000")))

	_, err = svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestServiceListRejectsBadFilters(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t).DB()))
	require.NoError(t, err)

	negative := decimal.NewFromInt(-1)
	_, err = svc.List(context.Background(), ListFilters{MaxPrice: &negative})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	bogus := enums.VehicleCondition("salvage")
	_, err = svc.List(context.Background(), ListFilters{Condition: &bogus})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
