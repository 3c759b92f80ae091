package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dealerhub/showroom/internal/users"
	pkgAuth "github.com/dealerhub/showroom/pkg/auth"
	"github.com/dealerhub/showroom/pkg/auth/session"
	"github.com/dealerhub/showroom/pkg/config"
	"github.com/dealerhub/showroom/pkg/db"
	"github.com/dealerhub/showroom/pkg/db/models"
	"github.com/dealerhub/showroom/pkg/enums"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controller.
type Service interface {
	Signup(ctx context.Context, req SignupRequest) (*TokenResponse, error)
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, userID uuid.UUID, accessID string, req RefreshRequest) (*TokenResponse, error)
	Logout(ctx context.Context, accessID string) error
}

type service struct {
	users       userRepository
	session     sessionManager
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	now         func() time.Time
}

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type sessionManager interface {
	Generate(ctx context.Context, userID uuid.UUID, accessID string) (string, error)
	Rotate(ctx context.Context, userID uuid.UUID, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo       userRepository
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
}

// NewService constructs an auth service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	return &service{
		users:       params.UserRepo,
		session:     params.SessionManager,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Signup(ctx context.Context, req SignupRequest) (*TokenResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full_name is required")
	}
	if err := security.ValidatePasswordStrength(req.Password); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
	}

	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	var phone *string
	if req.Phone != nil && strings.TrimSpace(*req.Phone) != "" {
		trimmed := strings.TrimSpace(*req.Phone)
		phone = &trimmed
	}
	user, err := s.users.Create(ctx, users.CreateUserDTO{
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Phone:        phone,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "users_email_key") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}

	now, err := s.recordLogin(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user, now)
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	now, err := s.recordLogin(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user, now)
}

// Refresh rotates the refresh session tied to accessID and mints a new pair
// from the current user record, so role changes apply on refresh.
func (s *service) Refresh(ctx context.Context, userID uuid.UUID, accessID string, req RefreshRequest) (*TokenResponse, error) {
	newAccessID, refreshToken, err := s.session.Rotate(ctx, userID, accessID, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		_ = s.session.Revoke(ctx, newAccessID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if !user.IsActive {
		_ = s.session.Revoke(ctx, newAccessID)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account disabled")
	}

	now := s.now()
	accessToken, err := s.mint(user, newAccessID, now)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.jwtCfg.AccessTokenTTL()),
		User:         users.FromModel(user),
	}, nil
}

func (s *service) Logout(ctx context.Context, accessID string) error {
	if err := s.session.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) issue(ctx context.Context, user *models.User, now time.Time) (*TokenResponse, error) {
	accessID := session.NewAccessID()
	accessToken, err := s.mint(user, accessID, now)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.session.Generate(ctx, user.ID, accessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refresh token")
	}
	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.jwtCfg.AccessTokenTTL()),
		User:         users.FromModel(user),
	}, nil
}

func (s *service) mint(user *models.User, accessID string, now time.Time) (string, error) {
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   enums.RoleOrDefault(string(user.Role())),
		JTI:    accessID,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return token, nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	input := normalizeEmail(email)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByEmail(ctx, input)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	valid, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return user, nil
}

func (s *service) recordLogin(ctx context.Context, user *models.User) (time.Time, error) {
	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	user.LastLoginAt = &now
	return now, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
