package wishlist

import (
	"context"
	"fmt"

	"github.com/dealerhub/showroom/pkg/db/models"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/types"
	"github.com/google/uuid"
)

// Service exposes the signed-in user's saved vehicles.
type Service interface {
	List(ctx context.Context, userID uuid.UUID, cursor string, limit int) (types.Page[ItemDTO], error)
	Add(ctx context.Context, userID, vehicleID uuid.UUID) (*ItemDTO, error)
	Remove(ctx context.Context, userID, itemID uuid.UUID) error
}

type wishlistStore interface {
	AddItem(ctx context.Context, userID, vehicleID uuid.UUID) (*models.WishlistItem, error)
	RemoveItem(ctx context.Context, userID, id uuid.UUID) (bool, error)
	ListItems(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.WishlistItem, string, error)
}

type vehicleChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type service struct {
	repo     wishlistStore
	vehicles vehicleChecker
}

// NewService builds the wishlist service.
func NewService(repo wishlistStore, vehicles vehicleChecker) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wishlist repository is required")
	}
	if vehicles == nil {
		return nil, fmt.Errorf("vehicle checker is required")
	}
	return &service{repo: repo, vehicles: vehicles}, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, cursor string, limit int) (types.Page[ItemDTO], error) {
	rows, next, err := s.repo.ListItems(ctx, userID, cursor, limit)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return types.Page[ItemDTO]{}, err
		}
		return types.Page[ItemDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list wishlist")
	}
	items := make([]ItemDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, fromModel(row))
	}
	return types.NewPage(items, next), nil
}

// Add saves vehicleID for userID. Saving an already saved vehicle returns the
// existing row.
func (s *service) Add(ctx context.Context, userID, vehicleID uuid.UUID) (*ItemDTO, error) {
	if vehicleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle_id is required")
	}
	ok, err := s.vehicles.Exists(ctx, vehicleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check vehicle")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vehicle not found")
	}
	item, err := s.repo.AddItem(ctx, userID, vehicleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add wishlist item")
	}
	dto := fromModel(*item)
	return &dto, nil
}

// Remove is idempotent. Rows owned by other users are never touched.
func (s *service) Remove(ctx context.Context, userID, itemID uuid.UUID) error {
	if _, err := s.repo.RemoveItem(ctx, userID, itemID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove wishlist item")
	}
	return nil
}
