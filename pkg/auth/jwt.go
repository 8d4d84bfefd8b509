// Package auth issues and validates the control plane's bearer tokens.
// It has no bearing on the bridge's own X-Bridge-Secret check (pkg/secret).
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const TokenTypeAccess = "access"

type TokenClaims struct {
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
	TokenType  string `json:"token_type"`
	jwt.RegisteredClaims
}

// GenerateAccessToken creates a JWT access token for control-plane callers
// (operations staff and automation hitting /v1/sessions, /v1/calls/initiate).
func GenerateAccessToken(operatorID, role, jwtSecret, issuer, audience string, ttlMinutes int) (string, time.Time, error) {
	if ttlMinutes <= 0 {
		ttlMinutes = 15
	}
	expiresAt := time.Now().Add(time.Duration(ttlMinutes) * time.Minute)

	claims := TokenClaims{
		OperatorID: operatorID,
		Role:       role,
		TokenType:  TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
			Audience:  []string{audience},
			ID:        generateTokenID(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ParseToken parses and validates a control-plane JWT.
func ParseToken(tokenString, jwtSecret string) (*TokenClaims, error) {
	claims := &TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims.TokenType != TokenTypeAccess {
		return nil, fmt.Errorf("invalid token type: expected access token")
	}

	return claims, nil
}

func generateTokenID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
