package auth

import (
	"github.com/dealerhub/showroom/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Role   enums.Role
	// JTI doubles as the refresh session id. Generated when empty.
	JTI string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Email  string     `json:"email,omitempty"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}
