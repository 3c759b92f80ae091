package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/dealerhub/showroom/internal/repo"
	"github.com/dealerhub/showroom/pkg/db/models"
	dbtypes "github.com/dealerhub/showroom/pkg/db/types"
	"github.com/dealerhub/showroom/pkg/enums"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/types"
	"github.com/google/uuid"
)

// Service covers self-service profile reads/updates and admin user management.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*UserDTO, error)
	UpdateMetadata(ctx context.Context, id uuid.UUID, patch map[string]any) (*UserDTO, error)
	SetRole(ctx context.Context, id uuid.UUID, role enums.Role) (*UserDTO, error)
	List(ctx context.Context, filters ListFilters) (types.Page[UserDTO], error)
}

type userStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateMetadata(ctx context.Context, id uuid.UUID, meta dbtypes.JSONMap) error
	List(ctx context.Context, filters ListFilters) ([]models.User, string, error)
}

type service struct {
	repo userStore
}

func NewService(repo userStore) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

// UpdateMetadata merges patch into the user's metadata. Self-service may only
// claim the default role, and only while no role is set.
func (s *service) UpdateMetadata(ctx context.Context, id uuid.UUID, patch map[string]any) (*UserDTO, error) {
	if len(patch) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "metadata patch is required")
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	clean := make(map[string]any, len(patch))
	for k, v := range patch {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "metadata keys must not be blank")
		}
		clean[key] = v
	}
	if raw, ok := clean[models.MetadataKeyRole]; ok {
		role, isString := raw.(string)
		if !isString || enums.Role(role) != enums.RoleUser {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role can only be set to user")
		}
		if user.Role() != "" {
			delete(clean, models.MetadataKeyRole)
		}
	}

	merged := user.Metadata.Merge(clean)
	if err := s.repo.UpdateMetadata(ctx, id, merged); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update metadata")
	}
	user.Metadata = merged
	return FromModel(user), nil
}

// SetRole is the admin path for role changes.
func (s *service) SetRole(ctx context.Context, id uuid.UUID, role enums.Role) (*UserDTO, error) {
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := user.Metadata.Merge(map[string]any{models.MetadataKeyRole: string(role)})
	if err := s.repo.UpdateMetadata(ctx, id, merged); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update role")
	}
	user.Metadata = merged
	return FromModel(user), nil
}

func (s *service) List(ctx context.Context, filters ListFilters) (types.Page[UserDTO], error) {
	rows, next, err := s.repo.List(ctx, filters)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return types.Page[UserDTO]{}, err
		}
		return types.Page[UserDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list users")
	}
	items := make([]UserDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return types.NewPage(items, next), nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repo.LoadError(err, "user")
	}
	return user, nil
}
