// Package csrf issues and checks per-resource anti-forgery tokens.
//
// A token is scoped to an id such as "song_42": the token rendered next to
// the delete button of song 42 is useless for song 43. Tokens are HS256 JWTs:
//
//	sub = the scope id ("song_42")
//	jti = a random nonce stored in the visitor's session
//	exp = issue time + TTL
//
// Binding the nonce to the session means a token lifted from another
// visitor's page does not validate in yours. Nothing per-token is stored
// server side, so a page may carry any number of tokens.
package csrf

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
	"golang.org/x/crypto/hkdf"

	"github.com/sakif/song-catalog/internal/apperror"
)

const (
	// FieldName is the form field carrying the token.
	FieldName = "_csrf_token"

	issuer     = "song-catalog"
	nonceKey   = "csrf.nonce"
	keyInfo    = "song-catalog csrf signing key"
	minSecret  = 16
	DefaultTTL = 2 * time.Hour
)

// Manager issues and validates tokens for the session carried by a request
// context (scs.SessionManager.LoadAndSave must run before any handler that
// uses it).
type Manager struct {
	key      []byte
	sessions *scs.SessionManager
	ttl      time.Duration
	now      func() time.Time
}

type claims struct {
	jwt.RegisteredClaims
}

// NewManager derives the signing key from secret with HKDF-SHA256, so the
// application secret itself never signs anything directly.
func NewManager(secret string, sessions *scs.SessionManager, ttl time.Duration) (*Manager, error) {
	if len(secret) < minSecret {
		return nil, fmt.Errorf("csrf: secret must be at least %d characters", minSecret)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("csrf: deriving key: %w", err)
	}

	return &Manager{
		key:      key,
		sessions: sessions,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Token returns a fresh token for id, creating the session nonce on first use.
func (m *Manager) Token(ctx context.Context, id string) (string, error) {
	nonce := m.sessions.GetString(ctx, nonceKey)
	if nonce == "" {
		nonce = xid.New().String()
		m.sessions.Put(ctx, nonceKey, nonce)
	}

	now := m.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id,
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("csrf: signing token: %w", err)
	}
	return signed, nil
}

// Verify checks supplied against id and the current session. Every failure
// is an apperror.ErrForbidden carrying a short reason.
func (m *Manager) Verify(ctx context.Context, id, supplied string) error {
	if supplied == "" {
		return apperror.Forbidden("missing security token")
	}

	nonce := m.sessions.GetString(ctx, nonceKey)
	if nonce == "" {
		return apperror.Forbidden("no security token was issued in this session")
	}

	var c claims
	_, err := jwt.ParseWithClaims(supplied, &c,
		func(*jwt.Token) (any, error) { return m.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithSubject(id),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return apperror.Forbidden("security token expired")
		}
		return apperror.Forbidden("invalid security token")
	}

	if c.ID != nonce {
		return apperror.Forbidden("security token belongs to another session")
	}
	return nil
}
