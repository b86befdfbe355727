package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-test"

func TestIssueAndParse(t *testing.T) {
	s, err := NewSigner(testSecret, time.Hour)
	require.NoError(t, err)

	tok, exp, err := s.Issue("0xAlice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	addr, err := s.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "0xAlice", addr)
}

func TestParseRejects(t *testing.T) {
	s, _ := NewSigner(testSecret, time.Hour)
	other, _ := NewSigner("another-secret-of-enough-length", time.Hour)

	tok, _, err := other.Issue("bob")
	require.NoError(t, err)
	_, err = s.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	past := &Signer{secret: []byte(testSecret), ttl: time.Minute, now: func() time.Time { return time.Now().Add(-time.Hour) }}
	expired, _, err := past.Issue("carol")
	require.NoError(t, err)
	_, err = s.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Issuer: Issuer, Subject: "eve"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Parse(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidAddress(t *testing.T) {
	assert.NoError(t, ValidAddress("0x52908400098527886E0F7030069857D2E4169EE7"))
	assert.ErrorIs(t, ValidAddress(""), ErrInvalidAddress)
	assert.ErrorIs(t, ValidAddress("has space"), ErrInvalidAddress)
	assert.ErrorIs(t, ValidAddress(strings.Repeat("a", 65)), ErrInvalidAddress)

	_, err := NewSigner("short", 0)
	assert.Error(t, err)
}
