package vehicles

import (
	"context"
	"fmt"

	"github.com/dealerhub/showroom/internal/repo"
	"github.com/dealerhub/showroom/pkg/db/models"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/types"
	"github.com/google/uuid"
)

// Service exposes the public catalog.
type Service interface {
	List(ctx context.Context, filters ListFilters) (types.Page[VehicleDTO], error)
	Get(ctx context.Context, id uuid.UUID) (*VehicleDTO, error)
}

type vehicleStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	List(ctx context.Context, filters ListFilters) ([]models.Vehicle, string, error)
}

type service struct {
	repo vehicleStore
}

func NewService(repo vehicleStore) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("vehicle repository is required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, filters ListFilters) (types.Page[VehicleDTO], error) {
	if filters.MaxPrice != nil && filters.MaxPrice.IsNegative() {
		return types.Page[VehicleDTO]{}, pkgerrors.New(pkgerrors.CodeValidation, "max_price must not be negative")
	}
	if filters.Condition != nil && !filters.Condition.IsValid() {
		return types.Page[VehicleDTO]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid condition")
	}
	rows, next, err := s.repo.List(ctx, filters)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return types.Page[VehicleDTO]{}, err
		}
		return types.Page[VehicleDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list vehicles")
	}
	items := make([]VehicleDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return types.NewPage(items, next), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*VehicleDTO, error) {
	vehicle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repo.LoadError(err, "vehicle")
	}
	return FromModel(vehicle), nil
}
