package token

import "fmt"

// Kind classifies why a request failed authentication. Kinds are for logs
// and metrics; clients only ever see a generic unauthorized response.
type Kind int

const (
	Missing Kind = iota + 1
	Malformed
	BadSignature
	Expired
	SubjectGone
)

func (k Kind) String() string {
	switch k {
	case Missing:
		return "missing"
	case Malformed:
		return "malformed"
	case BadSignature:
		return "bad_signature"
	case Expired:
		return "expired"
	case SubjectGone:
		return "subject_gone"
	default:
		return "unknown"
	}
}

type AuthError struct {
	Kind Kind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "auth: " + e.Kind.String()
	}
	return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches any *AuthError of the same kind, so errors.Is(err, token.ErrExpired)
// works on wrapped errors.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrMissing      = &AuthError{Kind: Missing}
	ErrMalformed    = &AuthError{Kind: Malformed}
	ErrBadSignature = &AuthError{Kind: BadSignature}
	ErrExpired      = &AuthError{Kind: Expired}
	ErrSubjectGone  = &AuthError{Kind: SubjectGone}
)

// NewAuthError wraps err with an authentication failure kind.
func NewAuthError(k Kind, err error) *AuthError {
	return &AuthError{Kind: k, Err: err}
}
