package auth

import (
	"time"

	"github.com/dealerhub/showroom/internal/users"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupRequest creates a shopper account.
type SignupRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	FullName string  `json:"full_name" validate:"required,max=200"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

// RefreshRequest carries the refresh token. The (possibly expired) access
// token travels in the Authorization header.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenResponse is returned by signup, login and refresh.
type TokenResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresAt    time.Time      `json:"expires_at"`
	User         *users.UserDTO `json:"user"`
}
