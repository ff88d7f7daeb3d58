// Package auth provides authentication and authorization for Makazi
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aethra/makazi/internal/config"
	"github.com/aethra/makazi/internal/models"
)

// Token types carried in Claims.TokenType
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// Claims represents JWT claims for Makazi
type Claims struct {
	UserID    uint        `json:"user_id"`
	Username  string      `json:"username,omitempty"`
	Role      models.Role `json:"role,omitempty"`
	TokenType string      `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair represents access and refresh tokens
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

// JWTService handles JWT operations
type JWTService struct {
	secretKey          []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	issuer             string
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.AuthConfig, logger *zap.Logger) *JWTService {
	secret := cfg.JWTSecret
	if secret == "" {
		secret = generateRandomSecret()
		if logger != nil {
			logger.Warn("JWT_SECRET not set, using a random secret; tokens will not survive a restart")
		}
	}

	accessExpiry := cfg.AccessExpiry
	if accessExpiry <= 0 {
		accessExpiry = 8 * time.Hour
	}
	refreshExpiry := cfg.RefreshExpiry
	if refreshExpiry <= 0 {
		refreshExpiry = 7 * 24 * time.Hour
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "makazi"
	}

	return &JWTService{
		secretKey:          []byte(secret),
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
		issuer:             issuer,
	}
}

// GenerateTokenPair generates access and refresh tokens
func (s *JWTService) GenerateTokenPair(user *models.User) (*TokenPair, error) {
	now := time.Now()
	accessExpiresAt := now.Add(s.accessTokenExpiry)

	accessToken, err := s.sign(&Claims{
		UserID:           user.ID,
		Username:         user.Username,
		Role:             user.Role,
		TokenType:        TokenAccess,
		RegisteredClaims: s.registered(user.ID, now, accessExpiresAt),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	// Refresh token carries identity only; role is re-read on refresh
	refreshToken, err := s.sign(&Claims{
		UserID:           user.ID,
		TokenType:        TokenRefresh,
		RegisteredClaims: s.registered(user.ID, now, now.Add(s.refreshTokenExpiry)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExpiresAt,
		TokenType:    "Bearer",
	}, nil
}

func (s *JWTService) registered(userID uint, now, expires time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    s.issuer,
		Subject:   strconv.FormatUint(uint64(userID), 10),
		ID:        uuid.New().String(),
	}
}

func (s *JWTService) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
}

// ValidateToken validates a JWT token and returns the claims
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// ValidateAccessToken is ValidateToken restricted to access tokens
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenAccess {
		return nil, fmt.Errorf("invalid token: not an access token")
	}
	return claims, nil
}

// ValidateRefreshToken is ValidateToken restricted to refresh tokens
func (s *JWTService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenRefresh {
		return nil, fmt.Errorf("invalid token: not a refresh token")
	}
	return claims, nil
}

// generateRandomSecret generates a random 32-byte secret
func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return base64.StdEncoding.EncodeToString(bytes)
}
