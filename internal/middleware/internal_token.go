package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/mwork/socialgraph-api/internal/pkg/response"
)

// InternalTokenHeader carries the shared secret of service-to-service calls.
const InternalTokenHeader = "X-Internal-Token"

// InternalToken guards routes called by sibling services. An empty token
// leaves the routes open, which is only accepted outside production.
func InternalToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(InternalTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				response.Unauthorized(w, "Invalid internal token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
