package csrf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testEngine(t *testing.T, key byte, ttl time.Duration) *Engine {
	t.Helper()
	var k [SecretSize]byte
	for i := range k {
		k[i] = key
	}
	return NewEngine(k, ttl)
}

func TestEngineGenerateAndVerify(t *testing.T) {
	t.Parallel()

	t.Run("fresh pair verifies immediately", func(t *testing.T) {
		t.Parallel()

		e := testEngine(t, 0x42, time.Hour)
		cookieBytes, tokenBytes, err := e.GeneratePair()
		require.NoError(t, err)

		cookie, err := e.ParseCookie(cookieBytes)
		require.NoError(t, err)
		token, err := e.ParseToken(tokenBytes)
		require.NoError(t, err)

		require.True(t, e.VerifyTokenPair(token, cookie))
	})

	t.Run("pair fails once the lifetime elapsed", func(t *testing.T) {
		t.Parallel()

		e := testEngine(t, 0x42, time.Hour)
		cookieBytes, tokenBytes, err := e.GeneratePair()
		require.NoError(t, err)

		cookie, err := e.ParseCookie(cookieBytes)
		require.NoError(t, err)
		token, err := e.ParseToken(tokenBytes)
		require.NoError(t, err)

		e.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		require.False(t, e.VerifyTokenPair(token, cookie))
		require.True(t, e.Expired(cookie))
	})

	t.Run("round trip preserves structured fields", func(t *testing.T) {
		t.Parallel()

		e := testEngine(t, 0x42, time.Hour)
		issued := time.Unix(1_700_000_000, 0)
		e.now = func() time.Time { return issued }

		cookieBytes, tokenBytes, err := e.GeneratePair()
		require.NoError(t, err)

		cookie, err := e.ParseCookie(cookieBytes)
		require.NoError(t, err)
		token, err := e.ParseToken(tokenBytes)
		require.NoError(t, err)

		require.Equal(t, issued.Unix(), cookie.IssuedAt.Unix())
		require.Equal(t, issued.Unix(), token.IssuedAt.Unix())
		require.Equal(t, cookie.Nonce, token.Nonce)
	})

	t.Run("nonces are unique per pair", func(t *testing.T) {
		t.Parallel()

		e := testEngine(t, 0x42, time.Hour)
		a, _, err := e.GeneratePair()
		require.NoError(t, err)
		b, _, err := e.GeneratePair()
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})
}

func TestEngineCrossSecret(t *testing.T) {
	t.Parallel()

	t.Run("credentials from another secret never parse", func(t *testing.T) {
		t.Parallel()

		a := testEngine(t, 0x01, time.Hour)
		b := testEngine(t, 0x02, time.Hour)

		cookieBytes, tokenBytes, err := a.GeneratePair()
		require.NoError(t, err)

		_, err = b.ParseCookie(cookieBytes)
		require.ErrorIs(t, err, ErrInvalidMAC)
		_, err = b.ParseToken(tokenBytes)
		require.ErrorIs(t, err, ErrInvalidMAC)
	})

	t.Run("mixed pair across secrets never verifies", func(t *testing.T) {
		t.Parallel()

		a := testEngine(t, 0x01, time.Hour)
		b := testEngine(t, 0x02, time.Hour)

		cookieBytesA, _, err := a.GeneratePair()
		require.NoError(t, err)
		_, tokenBytesB, err := b.GeneratePair()
		require.NoError(t, err)

		cookie, err := a.ParseCookie(cookieBytesA)
		require.NoError(t, err)
		token, err := b.ParseToken(tokenBytesB)
		require.NoError(t, err)

		// Binding check against the cookie's engine fails: the token was
		// minted under a different secret.
		require.False(t, a.VerifyTokenPair(token, cookie))
	})

	t.Run("separate engines sharing a secret are compatible", func(t *testing.T) {
		t.Parallel()

		a := testEngine(t, 0x07, time.Hour)
		b := testEngine(t, 0x07, time.Hour)

		cookieBytes, tokenBytes, err := a.GeneratePair()
		require.NoError(t, err)

		cookie, err := b.ParseCookie(cookieBytes)
		require.NoError(t, err)
		token, err := b.ParseToken(tokenBytes)
		require.NoError(t, err)
		require.True(t, b.VerifyTokenPair(token, cookie))
	})
}

func TestEngineCheckPair(t *testing.T) {
	t.Parallel()

	t.Run("mismatched binding", func(t *testing.T) {
		t.Parallel()

		e := testEngine(t, 0x42, time.Hour)
		cookieBytes, _, err := e.GeneratePair()
		require.NoError(t, err)
		_, otherTokenBytes, err := e.GeneratePair()
		require.NoError(t, err)

		cookie, err := e.ParseCookie(cookieBytes)
		require.NoError(t, err)
		token, err := e.ParseToken(otherTokenBytes)
		require.NoError(t, err)

		require.ErrorIs(t, e.CheckPair(token, cookie), ErrBindingMismatch)
	})

	t.Run("elapsed lifetime", func(t *testing.T) {
		t.Parallel()

		e := testEngine(t, 0x42, time.Hour)
		cookieBytes, tokenBytes, err := e.GeneratePair()
		require.NoError(t, err)

		cookie, err := e.ParseCookie(cookieBytes)
		require.NoError(t, err)
		token, err := e.ParseToken(tokenBytes)
		require.NoError(t, err)

		e.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		require.ErrorIs(t, e.CheckPair(token, cookie), ErrExpired)
	})
}

func TestEngineRoleSeparation(t *testing.T) {
	t.Parallel()

	e := testEngine(t, 0x42, time.Hour)
	cookieBytes, tokenBytes, err := e.GeneratePair()
	require.NoError(t, err)

	// A cookie's bytes cannot be replayed as a token, nor the reverse.
	_, err = e.ParseToken(cookieBytes)
	require.ErrorIs(t, err, ErrInvalidMAC)
	_, err = e.ParseCookie(tokenBytes)
	require.ErrorIs(t, err, ErrInvalidMAC)
}

func TestEngineMalformedInput(t *testing.T) {
	t.Parallel()

	e := testEngine(t, 0x42, time.Hour)

	t.Run("wrong length", func(t *testing.T) {
		t.Parallel()

		for _, b := range [][]byte{nil, {}, make([]byte, credentialSize-1), make([]byte, credentialSize+1)} {
			_, err := e.ParseCookie(b)
			require.ErrorIs(t, err, ErrMalformed)
			_, err = e.ParseToken(b)
			require.ErrorIs(t, err, ErrMalformed)
		}
	})

	t.Run("any single flipped byte is rejected", func(t *testing.T) {
		t.Parallel()

		cookieBytes, tokenBytes, err := e.GeneratePair()
		require.NoError(t, err)

		for i := range cookieBytes {
			mutated := append([]byte(nil), cookieBytes...)
			mutated[i] ^= 0x01
			_, err := e.ParseCookie(mutated)
			require.ErrorIs(t, err, ErrInvalidMAC, "cookie byte %d", i)
		}
		for i := range tokenBytes {
			mutated := append([]byte(nil), tokenBytes...)
			mutated[i] ^= 0x01
			_, err := e.ParseToken(mutated)
			require.ErrorIs(t, err, ErrInvalidMAC, "token byte %d", i)
		}
	})
}

func TestEngineTokenForCookie(t *testing.T) {
	t.Parallel()

	e := testEngine(t, 0x42, time.Hour)
	cookieBytes, tokenBytes, err := e.GeneratePair()
	require.NoError(t, err)

	cookie, err := e.ParseCookie(cookieBytes)
	require.NoError(t, err)

	// Re-minting from the cookie reproduces the original token bytes.
	require.Equal(t, tokenBytes, e.TokenForCookie(cookie))
}
