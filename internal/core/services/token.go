package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
)

// TokenService verifies the bearer token presented at the WebSocket
// handshake and extracts the caller's identity. Token issuance belongs
// to the auth collaborator; Issue exists for that service and for tests.
type TokenService struct {
	secretKey []byte
	issuer    string
	ttl       time.Duration
}

func NewTokenService(secret, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{
		secretKey: []byte(secret),
		issuer:    issuer,
		ttl:       ttl,
	}
}

func (s *TokenService) Issue(userID, role string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(s.ttl).Unix(),
		"iss":  s.issuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// Verify parses and validates the token, returning the embedded claims.
// Any failure maps to ErrAuthenticationFailed; callers close the
// connection without admitting it.
func (s *TokenService) Verify(tokenStr string) (domain.Claims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil || !token.Valid {
		return domain.Claims{}, domain.ErrAuthenticationFailed
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Claims{}, domain.ErrAuthenticationFailed
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return domain.Claims{}, domain.ErrAuthenticationFailed
	}
	role, _ := claims["role"].(string)
	return domain.Claims{UserID: sub, Role: role}, nil
}
