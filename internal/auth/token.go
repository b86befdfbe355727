// Package auth issues and verifies player identity tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	Issuer     = "royale"
	DefaultTTL = 24 * time.Hour
	maxAddress = 64
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidAddress = errors.New("invalid player address")
)

type Claims struct {
	jwt.RegisteredClaims
}

// Signer signs HS256 tokens whose subject is the player address.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// ValidAddress reports whether addr can be used as a player identity.
func ValidAddress(addr string) error {
	if addr == "" || len(addr) > maxAddress {
		return fmt.Errorf("%w: must be 1-%d characters", ErrInvalidAddress, maxAddress)
	}
	if strings.IndexFunc(addr, func(r rune) bool { return unicode.IsSpace(r) || !unicode.IsPrint(r) }) >= 0 {
		return fmt.Errorf("%w: must not contain spaces", ErrInvalidAddress)
	}
	return nil
}

func (s *Signer) Issue(address string) (string, time.Time, error) {
	if err := ValidAddress(address); err != nil {
		return "", time.Time{}, err
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   address,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies token and returns the player address it was issued for.
func (s *Signer) Parse(token string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
