// internal/admin/admin.go
//
// Admin credential checks.
// Responsibilities:
//   - Verify the shared admin code, either plain (constant-time compare) or
//     as a bcrypt hash from ADMIN_CODE_HASH.
//   - Issue and validate short-lived HS256 admin tokens so a client that
//     verified once can reset without resending the code.
//
// With no code configured every credential is rejected.

package admin

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenIssuer  = "wordly"
	tokenSubject = "admin"
)

// Config configures an Authenticator.
type Config struct {
	Code     string        // plain admin code
	CodeHash string        // bcrypt hash; takes precedence over Code
	Secret   string        // token signing key; random per process when empty
	TTL      time.Duration // token lifetime
	Now      func() time.Time
}

// Authenticator checks admin codes and tokens. Safe for concurrent use.
type Authenticator struct {
	code   []byte
	hash   []byte
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New builds an Authenticator from cfg.
func New(cfg Config) (*Authenticator, error) {
	a := &Authenticator{
		code: []byte(strings.TrimSpace(cfg.Code)),
		hash: []byte(strings.TrimSpace(cfg.CodeHash)),
		ttl:  cfg.TTL,
		now:  cfg.Now,
	}
	if len(a.hash) > 0 {
		if _, err := bcrypt.Cost(a.hash); err != nil {
			return nil, fmt.Errorf("ADMIN_CODE_HASH is not a bcrypt hash: %w", err)
		}
	}
	if a.ttl <= 0 {
		a.ttl = 15 * time.Minute
	}
	if a.now == nil {
		a.now = time.Now
	}
	if cfg.Secret != "" {
		a.secret = []byte(cfg.Secret)
	} else {
		a.secret = make([]byte, 32)
		if _, err := rand.Read(a.secret); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
	}
	return a, nil
}

// Enabled reports whether any admin code is configured.
func (a *Authenticator) Enabled() bool { return len(a.hash) > 0 || len(a.code) > 0 }

// CheckCode reports whether code matches the configured admin code.
func (a *Authenticator) CheckCode(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	if len(a.hash) > 0 {
		return bcrypt.CompareHashAndPassword(a.hash, []byte(code)) == nil
	}
	if len(a.code) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a.code, []byte(code)) == 1
}

// IssueToken signs an admin token valid for the configured TTL.
func (a *Authenticator) IssueToken() (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    tokenIssuer,
		Subject:   tokenSubject,
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return ss, exp, nil
}

// ValidateToken returns nil when tok is an unexpired admin token signed by a.
func (a *Authenticator) ValidateToken(tok string) error {
	if tok == "" {
		return errors.New("empty token")
	}
	claims := &jwt.RegisteredClaims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	},
		jwt.WithTimeFunc(a.now),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithSubject(tokenSubject),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return err
	}
	if !t.Valid {
		return errors.New("invalid token")
	}
	return nil
}

// Authorize accepts either the admin code or a valid admin token.
func (a *Authenticator) Authorize(credential string) bool {
	if !a.Enabled() {
		return false
	}
	if a.CheckCode(credential) {
		return true
	}
	return a.ValidateToken(credential) == nil
}

// HashCode returns a bcrypt hash suitable for ADMIN_CODE_HASH.
func HashCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.New("empty admin code")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	return string(b), err
}
