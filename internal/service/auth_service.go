package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the principal resolved upstream by the login service.
type Claims struct {
	jwt.RegisteredClaims
	Role       model.Role `json:"role"`
	UserID     int        `json:"user_id"`
	HomebaseID int        `json:"homebase_id"`
}

// Principal returns the caller identity carried by the claims.
func (c *Claims) Principal() model.Principal {
	return model.Principal{ID: c.UserID, Role: c.Role, HomebaseID: c.HomebaseID}
}

// AuthService validates session tokens. Issuing is only used by operator
// tooling; real logins happen in the school portal.
type AuthService struct {
	secret []byte
	expiry time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(secret string, expiry time.Duration) *AuthService {
	return &AuthService{secret: []byte(secret), expiry: expiry}
}

// IssueToken signs an HS256 token for p.
func (s *AuthService) IssueToken(p model.Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(p.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		Role:       p.Role,
		UserID:     p.ID,
		HomebaseID: p.HomebaseID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a token, returning its claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	switch claims.Role {
	case model.RoleStudent, model.RoleTeacher, model.RoleAdmin:
	default:
		return nil, ErrInvalidToken
	}
	if claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Principal validates tokenStr and returns the caller it identifies.
func (s *AuthService) Principal(tokenStr string) (model.Principal, error) {
	claims, err := s.ValidateToken(tokenStr)
	if err != nil {
		return model.Principal{}, err
	}
	return claims.Principal(), nil
}
