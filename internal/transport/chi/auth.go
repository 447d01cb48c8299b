package chi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// publicPaths are the routes the probes themselves hit, plus the scrape endpoint.
var publicPaths = map[string]struct{}{
	"/":             {},
	"/api/health":   {},
	"/api/status":   {},
	"/openapi.json": {},
	"/openapi.yaml": {},
	"/ws":           {},
	"/metrics":      {},
}

const bearerChallenge = `Bearer realm="cvgen"`

// BearerAuthMiddleware guards every non-public route with a static API key.
// With no non-empty keys configured the middleware is a pass-through.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	var keys [][]byte
	for _, k := range apiKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := publicPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token, msg := bearerToken(r.Header.Get("Authorization"))
			if msg == "" && !knownKey(keys, token) {
				msg = "invalid api key"
			}
			if msg != "" {
				w.Header().Set("WWW-Authenticate", bearerChallenge)
				writeError(w, http.StatusUnauthorized, ErrorResponseCodeUnauthorized, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the credential. The scheme is matched case-insensitively.
func bearerToken(header string) (token, problem string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, cred, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "authorization header must use Bearer scheme"
	}
	return strings.TrimSpace(cred), ""
}

func knownKey(keys [][]byte, token string) bool {
	if token == "" {
		return false
	}
	t := []byte(token)
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare(k, t)
	}
	return match == 1
}
