package inquiries

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dealerhub/showroom/internal/repo"
	"github.com/dealerhub/showroom/pkg/db"
	"github.com/dealerhub/showroom/pkg/db/models"
	"github.com/dealerhub/showroom/pkg/enums"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service manages shopper inquiries and the staff queue.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*RequestDTO, error)
	ListOwn(ctx context.Context, userID uuid.UUID, cursor string, limit int) (types.Page[RequestDTO], error)
	UpdateOwn(ctx context.Context, userID, id uuid.UUID, update OwnerUpdate) (*RequestDTO, error)
	AdminList(ctx context.Context, filters AdminListFilters) (types.Page[RequestDTO], error)
	SetStatus(ctx context.Context, id uuid.UUID, status enums.RequestStatus) (*RequestDTO, error)
}

type requestStore interface {
	Create(ctx context.Context, req *models.CustomRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CustomRequest, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.CustomRequest, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	List(ctx context.Context, userID *uuid.UUID, status *enums.RequestStatus, cursor string, limit int) ([]models.CustomRequest, string, error)
}

type vehicleChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type service struct {
	repo     requestStore
	vehicles vehicleChecker
}

func NewService(repo requestStore, vehicles vehicleChecker) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("request repository is required")
	}
	if vehicles == nil {
		return nil, fmt.Errorf("vehicle checker is required")
	}
	return &service{repo: repo, vehicles: vehicles}, nil
}

// Create stores a pending request. A repeated idempotency key from the same
// user returns the original record instead of a duplicate.
func (s *service) Create(ctx context.Context, input CreateInput) (*RequestDTO, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header is required")
	}
	if existing, err := s.replay(ctx, input.UserID, key); existing != nil || err != nil {
		return existing, err
	}

	record, err := s.buildRecord(ctx, input.UserID, input.Request)
	if err != nil {
		return nil, err
	}
	record.IdempotencyKey = &key

	if err := s.repo.Create(ctx, record); err != nil {
		if db.IsUniqueViolation(err, "custom_requests_idempotency_key") {
			if existing, replayErr := s.replay(ctx, input.UserID, key); existing != nil || replayErr != nil {
				return existing, replayErr
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create request")
	}
	return fromModel(record), nil
}

func (s *service) replay(ctx context.Context, userID uuid.UUID, key string) (*RequestDTO, error) {
	existing, err := s.repo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup idempotency key")
	}
	if existing.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used")
	}
	return fromModel(existing), nil
}

func (s *service) buildRecord(ctx context.Context, userID uuid.UUID, req CreateRequest) (*models.CustomRequest, error) {
	inquiryType, err := enums.ParseInquiryType(strings.TrimSpace(req.InquiryType))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid inquiry_type")
	}
	subject := strings.TrimSpace(req.Subject)
	message := strings.TrimSpace(req.Message)
	if subject == "" || message == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subject and message are required")
	}
	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}

	record := &models.CustomRequest{
		UserID:         userID,
		InquiryType:    inquiryType,
		Status:         enums.RequestStatusPending,
		Subject:        subject,
		Message:        message,
		VehicleSummary: req.VehicleSummary,
		Quantity:       quantity,
	}
	if req.VehicleID != nil && strings.TrimSpace(*req.VehicleID) != "" {
		vehicleID, err := uuid.Parse(strings.TrimSpace(*req.VehicleID))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vehicle_id")
		}
		ok, err := s.vehicles.Exists(ctx, vehicleID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check vehicle")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vehicle not found")
		}
		record.VehicleID = &vehicleID
	}
	return record, nil
}

func (s *service) ListOwn(ctx context.Context, userID uuid.UUID, cursor string, limit int) (types.Page[RequestDTO], error) {
	return s.list(ctx, &userID, nil, cursor, limit)
}

func (s *service) AdminList(ctx context.Context, filters AdminListFilters) (types.Page[RequestDTO], error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return types.Page[RequestDTO]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	return s.list(ctx, nil, filters.Status, filters.Cursor, filters.Limit)
}

func (s *service) list(ctx context.Context, userID *uuid.UUID, status *enums.RequestStatus, cursor string, limit int) (types.Page[RequestDTO], error) {
	rows, next, err := s.repo.List(ctx, userID, status, cursor, limit)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return types.Page[RequestDTO]{}, err
		}
		return types.Page[RequestDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list requests")
	}
	items := make([]RequestDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *fromModel(&rows[i]))
	}
	return types.NewPage(items, next), nil
}

// UpdateOwn lets the owner edit the message or cancel while the request is
// still open. Requests owned by others read as not found.
func (s *service) UpdateOwn(ctx context.Context, userID, id uuid.UUID, update OwnerUpdate) (*RequestDTO, error) {
	if update.Message == nil && !update.Cancel {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "request not found")
	}
	if record.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "request is already closed")
	}

	fields := map[string]any{}
	if update.Message != nil {
		message := strings.TrimSpace(*update.Message)
		if message == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "message must not be blank")
		}
		fields["message"] = message
		record.Message = message
	}
	if update.Cancel {
		fields["status"] = enums.RequestStatusCancelled
		record.Status = enums.RequestStatusCancelled
	}
	if err := s.repo.Update(ctx, id, fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update request")
	}
	return fromModel(record), nil
}

// SetStatus moves a request through the sales pipeline. Closed and cancelled
// requests are final.
func (s *service) SetStatus(ctx context.Context, id uuid.UUID, status enums.RequestStatus) (*RequestDTO, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status == status {
		return fromModel(record), nil
	}
	if record.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "status change not allowed in current state")
	}
	if err := s.repo.Update(ctx, id, map[string]any{"status": status}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update request status")
	}
	record.Status = status
	return fromModel(record), nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.CustomRequest, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repo.LoadError(err, "request")
	}
	return record, nil
}
