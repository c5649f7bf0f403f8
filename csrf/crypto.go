package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"time"
)

const (
	// SecretSize is the required length of the symmetric secret key.
	SecretSize = 32

	nonceSize      = 16
	macSize        = sha256.Size
	credentialSize = 8 + nonceSize + macSize
)

// Role tags provide domain separation between the two MACs computed over the
// same (nonce, issuedAt) payload, so a cookie's bytes can never be replayed
// as a token or vice versa. The NUL byte separates the tag from the payload
// to avoid ambiguity.
var (
	roleCookie = []byte("cookie\x00")
	roleToken  = []byte("token\x00")
)

// Credential is the decoded form of a CSRF cookie or token: a random nonce,
// the time it was issued, and a role-tagged MAC binding both to the secret.
type Credential struct {
	Nonce    [nonceSize]byte
	IssuedAt time.Time
	mac      [macSize]byte
}

// Engine generates and verifies bound (cookie, token) credential pairs.
//
// All state (secret key, lifetime) is fixed at construction and never
// mutated, so a single Engine is safe for unsynchronized concurrent use
// across requests. Verification is stateless: everything needed is embedded
// in the credential bytes plus the shared secret.
type Engine struct {
	key [SecretSize]byte
	ttl time.Duration
	now func() time.Time
}

// NewEngine creates an Engine with the given 32-byte secret and credential
// lifetime.
func NewEngine(key [SecretSize]byte, ttl time.Duration) *Engine {
	return &Engine{key: key, ttl: ttl, now: time.Now}
}

// GeneratePair draws a fresh random nonce, captures the current time and
// returns the wire-encoded cookie and token credentials. The two differ only
// in the role tag under which their MACs are computed.
//
// Returns:
// - cookie and token bytes (fixed layout: issuedAt | nonce | mac), or an
// error if the system randomness source fails.
func (e *Engine) GeneratePair() (cookie, token []byte, err error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, nil, err
	}
	issuedAt := e.now().Unix()
	cookie = encodeCredential(issuedAt, nonce, e.sum(roleCookie, issuedAt, nonce))
	token = encodeCredential(issuedAt, nonce, e.sum(roleToken, issuedAt, nonce))
	return cookie, token, nil
}

// ParseCookie decodes raw cookie bytes and validates the cookie-role MAC.
// Returns ErrMalformed on a bad layout and ErrInvalidMAC on an
// authentication failure. Expiry is not checked here; VerifyTokenPair
// re-checks freshness independently.
func (e *Engine) ParseCookie(b []byte) (Credential, error) {
	return e.parse(b, roleCookie)
}

// ParseToken decodes raw token bytes and validates the token-role MAC.
// A cookie's bytes presented as a token fail here because the roles are
// domain-separated.
func (e *Engine) ParseToken(b []byte) (Credential, error) {
	return e.parse(b, roleToken)
}

func (e *Engine) parse(b []byte, role []byte) (Credential, error) {
	if len(b) != credentialSize {
		return Credential{}, ErrMalformed
	}
	var c Credential
	issuedAt := int64(binary.BigEndian.Uint64(b[:8]))
	copy(c.Nonce[:], b[8:8+nonceSize])
	copy(c.mac[:], b[8+nonceSize:])
	expected := e.sum(role, issuedAt, c.Nonce)
	if !hmac.Equal(c.mac[:], expected[:]) {
		return Credential{}, ErrInvalidMAC
	}
	c.IssuedAt = time.Unix(issuedAt, 0)
	return c, nil
}

// VerifyTokenPair reports whether token is the bound counterpart of cookie
// and the pair is still fresh. Any failure means the caller must treat the
// request as a violation; there is no partial pass.
func (e *Engine) VerifyTokenPair(token, cookie Credential) bool {
	return e.CheckPair(token, cookie) == nil
}

// CheckPair is VerifyTokenPair with a reason. It recomputes the expected
// token-role MAC from the cookie's nonce and issue time and compares it
// against the token's committed MAC in constant time, returning
// ErrBindingMismatch when they differ and ErrExpired when the configured
// lifetime has elapsed.
func (e *Engine) CheckPair(token, cookie Credential) error {
	expected := e.sum(roleToken, cookie.IssuedAt.Unix(), cookie.Nonce)
	if !hmac.Equal(token.mac[:], expected[:]) {
		return ErrBindingMismatch
	}
	if e.now().After(cookie.IssuedAt.Add(e.ttl)) {
		return ErrExpired
	}
	return nil
}

// TokenForCookie re-mints the token bytes bound to an existing cookie, so a
// still-valid cookie can be reused across responses without resetting it.
func (e *Engine) TokenForCookie(cookie Credential) []byte {
	issuedAt := cookie.IssuedAt.Unix()
	return encodeCredential(issuedAt, cookie.Nonce, e.sum(roleToken, issuedAt, cookie.Nonce))
}

// Expired reports whether the credential's lifetime has elapsed.
func (e *Engine) Expired(c Credential) bool {
	return e.now().After(c.IssuedAt.Add(e.ttl))
}

func (e *Engine) sum(role []byte, issuedAt int64, nonce [nonceSize]byte) [macSize]byte {
	mac := hmac.New(sha256.New, e.key[:])
	mac.Write(role)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(issuedAt))
	mac.Write(ts[:])
	mac.Write(nonce[:])
	var out [macSize]byte
	mac.Sum(out[:0])
	return out
}

// randomSecret returns a fresh process-lifetime random key.
func randomSecret() []byte {
	b := make([]byte, SecretSize)
	if _, err := rand.Read(b); err != nil {
		panic(err) // rand.Read does not fail on a healthy system
	}
	return b
}

func encodeCredential(issuedAt int64, nonce [nonceSize]byte, mac [macSize]byte) []byte {
	b := make([]byte, credentialSize)
	binary.BigEndian.PutUint64(b[:8], uint64(issuedAt))
	copy(b[8:], nonce[:])
	copy(b[8+nonceSize:], mac[:])
	return b
}
