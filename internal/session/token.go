package session

import (
	"errors"
	"fmt"
	"time"

	"talentchat/backend/internal/models"

	jwt "github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "talentchat-api"

var (
	// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
	ErrInvalidToken = errors.New("session: invalid token")

	errMissingSecret = errors.New("signing secret is required")
)

// Claims is the JWT payload: sub carries the user id.
type Claims struct {
	Role string `json:"role"`
	Pro  bool   `json:"pro"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewTokenIssuer returns an issuer for the shared secret.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errMissingSecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, clock: time.Now}, nil
}

// Issue signs a token for the user.
func (i *TokenIssuer) Issue(userID string, role models.Role, isPro bool) (string, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return "", err
	}
	if userID == "" {
		return "", fmt.Errorf("%w: missing user id", ErrInvalidSession)
	}
	now := i.clock()
	claims := Claims{
		Role: string(role),
		Pro:  isPro,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks the signature and expiry and builds an initialised session.
func (i *TokenIssuer) Verify(raw string) (*Context, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	sess, err := New(claims.Subject, models.Role(claims.Role), claims.Pro)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return sess, nil
}
