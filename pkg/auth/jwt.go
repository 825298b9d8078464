package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
	ErrMissingToken  = errors.New("missing authentication token")
)

// Claims are the player-identity claims carried in a bearer token. The
// subject is the player id; mutating game requests must be made by the
// authenticated player.
type Claims struct {
	jwt.RegisteredClaims
	PlayerID string `json:"player_id"`
}

// JWTConfig holds token service configuration.
type JWTConfig struct {
	SecretKey   string
	Issuer      string
	TokenExpiry time.Duration
}

// DefaultJWTConfig returns sensible defaults. SecretKey must be set from
// the environment.
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		Issuer:      "gridlock",
		TokenExpiry: 24 * time.Hour,
	}
}

// JWTService signs and validates player tokens with HS256.
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a token service.
func NewJWTService(config JWTConfig) (*JWTService, error) {
	if config.SecretKey == "" {
		return nil, errors.New("JWT secret key is required")
	}
	return &JWTService{config: config}, nil
}

// GenerateToken issues a token for a player.
func (s *JWTService) GenerateToken(playerID string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenExpiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
		PlayerID: playerID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.SecretKey))
}

// ValidateToken validates a token and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.config.SecretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.PlayerID == "" {
		claims.PlayerID = claims.Subject
	}
	return claims, nil
}
