package csrf

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
)

// Methods that require CSRF protection
var unsafeMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Protector enforces the double-submit-cookie scheme: every mutating request
// must present a cookie and a token that decode, authenticate under the
// shared secret, bind to each other and are still fresh. Violating requests
// are rerouted, and outgoing HTML responses get the token injected into
// their forms.
//
// A Protector is immutable after New and safe for concurrent use.
type Protector struct {
	cfg           Config
	engine        *Engine
	defaultTarget *Pattern
	exceptions    []compiledException
}

type compiledException struct {
	source *Pattern
	target *Pattern
	method string
}

// New builds a Protector from cfg. Configuration problems (wrong secret
// size, invalid path templates, a default target referencing a capture other
// than <uri>) surface here, before any traffic is served.
func New(cfg Config) (*Protector, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Secret) != SecretSize {
		return nil, fmt.Errorf("%w: secret must be exactly %d bytes, got %d", ErrConfig, SecretSize, len(cfg.Secret))
	}
	var key [SecretSize]byte
	copy(key[:], cfg.Secret)

	defaultTarget, err := compileTarget(cfg.DefaultTarget)
	if err != nil {
		return nil, err
	}

	exceptions := make([]compiledException, 0, len(cfg.Exceptions))
	for _, exc := range cfg.Exceptions {
		source, err := CompilePattern(exc.Source)
		if err != nil {
			return nil, err
		}
		target, err := CompilePattern(exc.Target)
		if err != nil {
			return nil, err
		}
		method := exc.Method
		if method == "" {
			method = http.MethodGet
		}
		exceptions = append(exceptions, compiledException{source: source, target: target, method: method})
	}

	return &Protector{
		cfg:           cfg,
		engine:        NewEngine(key, cfg.TokenTTL),
		defaultTarget: defaultTarget,
		exceptions:    exceptions,
	}, nil
}

// Engine exposes the underlying credential engine for hosts that integrate
// at their own lifecycle points instead of using Protect.
func (p *Protector) Engine() *Engine { return p.engine }

// Protect wraps next and enforces CSRF protection.
//
// Behavior:
//   - Safe methods (GET/HEAD/OPTIONS/...): ensure a valid pair exists, set
//     the cookie when needed, inject the token into the request context and,
//     for HTML responses, into every form of the response body.
//   - Unsafe methods (POST/PUT/PATCH/DELETE): verify the presented pair;
//     on any failure reroute the request to the first matching exception or
//     to the default violation target. Requests carrying no cookies at all
//     bypass enforcement: there is no ambient credential to forge.
//
// Verified and rerouted responses go through the same pair issuance and HTML
// rewriting as safe ones, so a form page served after a violation always
// comes back resubmittable.
func (p *Protector) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !unsafeMethods[r.Method] {
			p.serve(next, w, r)
			return
		}

		if len(r.Cookies()) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		if p.verifyRequest(r) {
			p.serve(next, w, r)
			return
		}

		p.reroute(next, w, r)
	})
}

// serve dispatches to next with a usable pair in place: issue or refresh the
// cookie, expose the token via the request context, and pipe the response
// through the injector when it turns out to be HTML. Safe requests, verified
// mutating requests and reroute targets all land here.
func (p *Protector) serve(next http.Handler, w http.ResponseWriter, r *http.Request) {
	token, err := p.ensurePair(w, r)
	if err != nil {
		http.Error(w, "failed to issue CSRF credentials", http.StatusInternalServerError)
		return
	}

	encoded := base64.RawURLEncoding.EncodeToString(token)
	r = r.WithContext(contextWithToken(r.Context(), encoded))

	if p.cfg.DisableAutoInsert || p.skipInsert(r.URL.Path) {
		next.ServeHTTP(w, r)
		return
	}

	iw := newInjectingWriter(w, p.cfg.FormField, token, p.cfg.MaxBufferSize)
	next.ServeHTTP(iw, r)
	if err := iw.finish(); err != nil {
		p.cfg.Logger.Debug("csrf: response injection aborted", "error", err)
	}
}

// ensurePair returns the raw token bytes bound to the client's CSRF cookie,
// reusing a still-valid cookie or generating and setting a fresh pair.
func (p *Protector) ensurePair(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if c, err := r.Cookie(p.cfg.CookieName); err == nil {
		if raw, err := base64.RawURLEncoding.DecodeString(c.Value); err == nil {
			if cred, err := p.engine.ParseCookie(raw); err == nil && !p.engine.Expired(cred) {
				return p.engine.TokenForCookie(cred), nil
			}
		}
	}

	cookie, token, err := p.engine.GeneratePair()
	if err != nil {
		return nil, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     p.cfg.CookieName,
		Value:    base64.RawURLEncoding.EncodeToString(cookie),
		Path:     p.cfg.CookiePath,
		Domain:   p.cfg.CookieDomain,
		MaxAge:   int(p.cfg.TokenTTL.Seconds()),
		SameSite: p.cfg.CookieSameSite,
		Secure:   p.cfg.CookieSecure,
		HttpOnly: true,
	})

	return token, nil
}

// verifyRequest decodes and authenticates both halves of the pair presented
// by a mutating request. Any decode, authentication, binding or freshness
// failure yields false; the caller treats false as a violation.
func (p *Protector) verifyRequest(r *http.Request) bool {
	c, err := r.Cookie(p.cfg.CookieName)
	if err != nil {
		return false
	}
	rawCookie, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return false
	}
	cookie, err := p.engine.ParseCookie(rawCookie)
	if err != nil {
		return false
	}

	presented := extractClientToken(r, p.cfg.HeaderName, p.cfg.FormField)
	if presented == "" {
		return false
	}
	rawToken, err := base64.RawURLEncoding.DecodeString(presented)
	if err != nil {
		return false
	}
	token, err := p.engine.ParseToken(rawToken)
	if err != nil {
		return false
	}

	if err := p.engine.CheckPair(token, cookie); err != nil {
		p.cfg.Logger.Debug("csrf: pair rejected", "path", r.URL.Path, "reason", err)
		return false
	}
	return true
}

// reroute dispatches a violating request to the first matching exception
// target, or to the default target with <uri> bound to the percent-encoded
// original URI. The request is mutated in place and re-enters the wrapped
// handler under the configured method, mirroring an internal redirect.
func (p *Protector) reroute(next http.Handler, w http.ResponseWriter, r *http.Request) {
	// Match against the escaped path so percent-decoding happens exactly
	// once, inside Match.
	for _, exc := range p.exceptions {
		captures, ok := exc.source.Match(r.URL.EscapedPath())
		if !ok {
			continue
		}
		destination, ok := exc.target.Render(captures)
		if !ok {
			continue
		}
		u, err := url.ParseRequestURI(destination)
		if err != nil {
			continue
		}
		p.cfg.Logger.Debug("csrf: violation rerouted", "from", r.URL.Path, "to", destination, "method", exc.method)
		r.URL = u
		r.RequestURI = ""
		r.Method = exc.method
		p.serve(next, w, r)
		return
	}

	destination, ok := p.defaultTarget.Render(map[string]string{"uri": r.URL.RequestURI()})
	if !ok {
		// Unreachable: the default target is validated at New time.
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	u, err := url.ParseRequestURI(destination)
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	p.cfg.Logger.Debug("csrf: violation rerouted", "from", r.URL.Path, "to", destination, "method", p.cfg.DefaultTargetMethod)
	r.URL = u
	r.RequestURI = ""
	r.Method = p.cfg.DefaultTargetMethod
	p.serve(next, w, r)
}

func (p *Protector) skipInsert(path string) bool {
	for _, prefix := range p.cfg.SkipInsertPrefix {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// TokenFromContext returns the encoded CSRF token stored in ctx, if present.
// Handlers can embed it in templates or hand it to SPA clients.
func TokenFromContext(ctx context.Context) (string, bool) {
	return tokenFromContext(ctx)
}

// TokenHandler returns an HTTP handler that writes the current encoded CSRF
// token. Useful for SPAs fetching the token to attach to later requests.
func (p *Protector) TokenHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok, ok := TokenFromContext(r.Context()); ok {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte(tok))
			return
		}
		http.Error(w, "no token", http.StatusInternalServerError)
	})
}
