package service

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "beeper/backend/internal/errors"
)

// AuthService mints and verifies the bearer tokens that guard the API.
// Tokens are signed with the shared API secret.
type AuthService struct {
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func NewAuthService(secret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

type TokenResult struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *AuthService) IssueToken(subject string) (*TokenResult, *apperrors.APIError) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, apperrors.BadRequest("invalid_subject", "token subject is required")
	}
	if len(s.secret) == 0 {
		return nil, apperrors.Internal("api secret is not configured")
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, apperrors.Internal("failed to sign token")
	}
	return &TokenResult{Token: signed, Subject: subject, ExpiresAt: expiresAt}, nil
}

// Exchange issues a token to a client that presents the shared secret.
func (s *AuthService) Exchange(secret, subject string) (*TokenResult, *apperrors.APIError) {
	if len(s.secret) == 0 || subtle.ConstantTimeCompare([]byte(secret), s.secret) != 1 {
		return nil, apperrors.Unauthorized("invalid secret")
	}
	return s.IssueToken(subject)
}

func (s *AuthService) ParseToken(tokenString string) (string, *apperrors.APIError) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", apperrors.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return "", apperrors.Unauthorized("invalid token")
	}

	if claims.Subject == "" {
		return "", apperrors.Unauthorized("invalid token subject")
	}

	return claims.Subject, nil
}
