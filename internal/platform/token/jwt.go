// Package token issues and validates the HS256 bearer tokens holders use for
// self-service routes (locks, approvals, claims). Wallet and session
// management live outside this service; the token is the trust handoff.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
)

// Claims are the JWT claims carried by holder access tokens.
type Claims struct {
	Account string `json:"account"`
	jwt.RegisteredClaims
}

// Service signs and validates holder tokens.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewService(signingKey, issuer, audience string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// Generate signs an access token for the given account.
func (s *Service) Generate(account id.AccountID, expiresIn time.Duration) (string, error) {
	now := time.Now()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Account: account.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signed, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Validate parses a bearer token and returns the account it authenticates.
func (s *Service) Validate(tokenString string) (id.AccountID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.AccountID{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return id.AccountID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return id.AccountID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	account, err := id.ParseAccountID(claims.Account)
	if err != nil {
		return id.AccountID{}, dErrors.New(dErrors.CodeUnauthorized, "token has no valid account")
	}
	return account, nil
}
