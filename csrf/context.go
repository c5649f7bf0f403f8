package csrf

import "context"

// tokenKey is the context key under which the encoded token travels with a
// request.
type tokenKey struct{}

// contextWithToken returns a derived context carrying the encoded CSRF token
// for the current client.
func contextWithToken(ctx context.Context, tok string) context.Context {
	return context.WithValue(ctx, tokenKey{}, tok)
}

// tokenFromContext extracts the encoded CSRF token from ctx, if present.
func tokenFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(tokenKey{}).(string)
	return s, ok && s != ""
}
