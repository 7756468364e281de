package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-signing-secret")

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*Service, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := NewService(Config{Secret: testSecret, Issuer: "myflix", TTL: time.Hour}, WithClock(c.Now))
	require.NoError(t, err)
	return s, c
}

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	var ae *AuthError
	require.True(t, errors.As(err, &ae), "expected *AuthError, got %T: %v", err, err)
	return ae.Kind
}

func TestMintVerifyRoundTrip(t *testing.T) {
	s, c := newTestService(t)

	tok, err := s.Mint("2d4f8d1e-identity")
	require.NoError(t, err)

	claims, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "2d4f8d1e-identity", claims.Subject)
	assert.True(t, claims.IssuedAt.Equal(c.t))
	assert.True(t, claims.ExpiresAt.Equal(c.t.Add(time.Hour)))
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
}

func TestVerifyAtExpiryInstantStillValid(t *testing.T) {
	s, c := newTestService(t)
	tok, err := s.Mint("u1")
	require.NoError(t, err)

	c.Advance(time.Hour)
	_, err = s.Verify(tok)
	require.NoError(t, err)
}

func TestVerifyExpired(t *testing.T) {
	s, c := newTestService(t)
	tok, err := s.Mint("u1")
	require.NoError(t, err)

	c.Advance(time.Hour + time.Second)
	_, err = s.Verify(tok)
	require.Error(t, err)
	assert.Equal(t, Expired, kindOf(t, err))
	assert.ErrorIs(t, err, ErrExpired)
	assert.NotErrorIs(t, err, ErrBadSignature)
}

func TestVerifyTamperedPayload(t *testing.T) {
	s, _ := newTestService(t)
	tok, err := s.Mint("u1")
	require.NoError(t, err)
	parts := strings.Split(tok, ".")

	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"admin","iss":"myflix","iat":1709294400,"exp":9999999999}`))
	flipped := []byte(parts[1])
	if flipped[5] == 'A' {
		flipped[5] = 'B'
	} else {
		flipped[5] = 'A'
	}

	payloads := map[string]string{
		"forged claims":   forged,
		"flipped byte":    string(flipped),
		"not base64":      "!!!not-base64!!!",
		"not json":        base64.RawURLEncoding.EncodeToString([]byte("hello")),
		"empty":           "",
		"appended":        parts[1] + "AA",
		"original+space":  parts[1] + " ",
		"truncated":       parts[1][:len(parts[1])-2],
		"other subject":   base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u2"}`)),
		"expired payload": base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u1","exp":1}`)),
	}
	for name, p := range payloads {
		t.Run(name, func(t *testing.T) {
			_, err := s.Verify(parts[0] + "." + p + "." + parts[2])
			require.Error(t, err)
			assert.Equal(t, BadSignature, kindOf(t, err))
		})
	}
}

func TestVerifyTamperedAndExpiredIsBadSignature(t *testing.T) {
	s, c := newTestService(t)
	tok, err := s.Mint("u1")
	require.NoError(t, err)
	c.Advance(48 * time.Hour)

	parts := strings.Split(tok, ".")
	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u1","exp":9999999999}`))
	_, err = s.Verify(parts[0] + "." + forged + "." + parts[2])
	assert.Equal(t, BadSignature, kindOf(t, err))
}

func TestVerifyWrongSecret(t *testing.T) {
	s, _ := newTestService(t)
	other, err := NewService(Config{Secret: []byte("another-secret"), Issuer: "myflix", TTL: time.Hour})
	require.NoError(t, err)

	tok, err := other.Mint("u1")
	require.NoError(t, err)
	_, err = s.Verify(tok)
	assert.Equal(t, BadSignature, kindOf(t, err))
}

func TestVerifyNoneAlgorithm(t *testing.T) {
	s, _ := newTestService(t)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = s.Verify(tok)
	assert.Equal(t, BadSignature, kindOf(t, err))
}

func TestVerifyMalformed(t *testing.T) {
	s, _ := newTestService(t)
	for _, raw := range []string{"", "garbage", "a.b", "a.b.c.d", "a.b.***"} {
		_, err := s.Verify(raw)
		require.Error(t, err, raw)
		assert.Equal(t, Malformed, kindOf(t, err), raw)
	}
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	s, _ := newTestService(t)
	other, err := NewService(Config{Secret: testSecret, Issuer: "someone-else", TTL: time.Hour})
	require.NoError(t, err)

	tok, err := other.Mint("u1")
	require.NoError(t, err)
	_, err = s.Verify(tok)
	assert.Equal(t, Malformed, kindOf(t, err))
}

func TestNewServiceRequiresSecretAndTTL(t *testing.T) {
	_, err := NewService(Config{TTL: time.Hour})
	assert.ErrorIs(t, err, ErrNoSecret)

	_, err = NewService(Config{Secret: testSecret})
	assert.ErrorIs(t, err, ErrNoTTL)
}

func TestMintRejectsEmptySubject(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Mint("")
	assert.Error(t, err)
}

func TestAuthErrorKindsAreDistinct(t *testing.T) {
	err := NewAuthError(SubjectGone, errors.New("user deleted"))
	assert.ErrorIs(t, err, ErrSubjectGone)
	assert.NotErrorIs(t, err, ErrMissing)
	assert.Equal(t, "auth: subject_gone: user deleted", err.Error())
	assert.Equal(t, "auth: missing", ErrMissing.Error())
}
