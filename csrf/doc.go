// Package csrf protects stateful web applications against request forgery
// using the double-submit cookie pattern with cryptographically bound,
// time-limited (cookie, token) pairs.
//
// How it works
//   - Safe methods (GET, HEAD, OPTIONS): ensure a CSRF cookie exists, mint
//     the matching token, inject it into the request context (see
//     TokenFromContext) and into every form of an outgoing HTML response.
//   - Unsafe methods (POST, PUT, PATCH, DELETE): require both halves of the
//     pair — the cookie plus a token from header, form field or multipart
//     part. Both must decode, both MACs must validate against the shared
//     secret, the token must bind to the cookie, and the pair must still be
//     fresh. Anything less is a violation and the request is rerouted; the
//     page it lands on is served with a usable pair so its forms can be
//     resubmitted.
//
// Unlike a plain random-value double submit, each half carries an HMAC with
// a distinct role tag, so a stolen cookie can never be replayed as a token
// (or vice versa), and verification is stateless: nothing is stored server
// side.
//
// # Configuration
//
// All behavior is driven by Config. Key fields include:
//   - Secret (32 bytes) and TokenTTL
//   - CookieName, CookiePath, CookieDomain, CookieSecure, CookieSameSite
//   - HeaderName (default: "X-CSRF-Token") and FormField (default: "csrf-token")
//   - DefaultTarget / DefaultTargetMethod and Exceptions for violation
//     rerouting; path templates may capture single segments as <name>, and
//     the default target may reference <uri> to receive the original URI
//   - DisableAutoInsert, SkipInsertPrefix and MaxBufferSize for response
//     rewriting
//
// Typical usage
//
//	cfg, err := csrf.LoadConfig(nil) // CSRF_SECRET_KEY, or random fallback
//	if err != nil {
//		log.Fatal(err)
//	}
//	cfg.DefaultTarget = "/csrf-violation"
//	p, err := csrf.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	http.ListenAndServe(":8080", p.Protect(appMux))
//
// In handlers, the encoded token is available from the request context:
//
//	if tok, ok := csrf.TokenFromContext(r.Context()); ok {
//	    // render it into a template or return it to an SPA
//	}
//
// Server-rendered forms normally need nothing at all: the middleware rewrites
// text/html responses on the fly, inserting
//
//	<input type="hidden" name="csrf-token" value="..."/>
//
// after every opening <form> tag. Small bodies are rewritten in place;
// large or unknown-length bodies are streamed with bounded memory.
package csrf
