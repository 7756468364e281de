// Package token mints and verifies the stateless bearer tokens handed out at
// login. Tokens are HS256 JWTs whose subject is the identity id.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSecret = errors.New("token: signing secret not configured")
	ErrNoTTL    = errors.New("token: validity window must be positive")
)

var signingMethod = jwt.SigningMethodHS256

type Config struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// Claims is what a verified token tells the caller.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrNoSecret
	}
	if cfg.TTL <= 0 {
		return nil, ErrNoTTL
	}
	s := &Service{
		secret: append([]byte(nil), cfg.Secret...),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		// exp is inclusive: a token is still good during its expiry instant.
		jwt.WithLeeway(time.Nanosecond),
	}
	if s.issuer != "" {
		popts = append(popts, jwt.WithIssuer(s.issuer))
	}
	s.parser = jwt.NewParser(popts...)
	return s, nil
}

// TTL is the validity window applied to minted tokens.
func (s *Service) TTL() time.Duration { return s.ttl }

// Mint returns a signed token for subject valid for the configured window.
func (s *Service) Mint(subject string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	if subject == "" {
		return "", errors.New("token: empty subject")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify checks the signature before looking at the payload, so any change
// to a signed token is reported as BadSignature whatever it did to the
// claims. The returned error is always an *AuthError.
func (s *Service) Verify(raw string) (Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Claims{}, NewAuthError(Malformed, errors.New("token must have three segments"))
	}
	sig, err := s.parser.DecodeSegment(parts[2])
	if err != nil {
		return Claims{}, NewAuthError(Malformed, err)
	}
	if err := signingMethod.Verify(parts[0]+"."+parts[1], sig, s.secret); err != nil {
		return Claims{}, NewAuthError(BadSignature, err)
	}

	var rc jwt.RegisteredClaims
	if _, err := s.parser.ParseWithClaims(raw, &rc, s.keyFunc); err != nil {
		return Claims{}, classify(err)
	}
	if rc.Subject == "" {
		return Claims{}, NewAuthError(Malformed, errors.New("token has no subject"))
	}

	c := Claims{Subject: rc.Subject}
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, nil
}

func (s *Service) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != signingMethod.Alg() {
		return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
	}
	return s.secret, nil
}

func classify(err error) *AuthError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return NewAuthError(Expired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return NewAuthError(BadSignature, err)
	default:
		return NewAuthError(Malformed, err)
	}
}
