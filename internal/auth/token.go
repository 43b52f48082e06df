package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

type Role string

const (
	RoleUndefined   Role = ""
	RoleParticipant Role = "participant"
	RoleOrganizer   Role = "organizer"
)

func (r Role) IsValid() bool {
	return r == RoleParticipant || r == RoleOrganizer
}

// TokenSecretKey signs and verifies every token. It is set once at startup.
var TokenSecretKey string

// TokenClaims carries the caller role. Subject holds the user id the caller acts as.
type TokenClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(role Role, subject string, dur time.Duration) (string, error) {
	if !role.IsValid() {
		return "", errors.Wrap(ErrUnknownRole, string(role))
	}

	now := time.Now()
	claims := TokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(dur)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(TokenSecretKey))
}

func VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Wrap(ErrInvalidSigningMethod, token.Method.Alg())
		}
		return []byte(TokenSecretKey), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Role.IsValid() {
		return nil, errors.Wrap(ErrUnknownRole, string(claims.Role))
	}
	return claims, nil
}

func IsValidToken(tokenString string) (*TokenClaims, bool) {
	claims, err := VerifyToken(tokenString)
	if err != nil {
		return nil, false
	}
	return claims, true
}
