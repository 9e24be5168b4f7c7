package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/cuemby/cascade/pkg/apierr"
	"github.com/cuemby/cascade/pkg/credential"
	"github.com/cuemby/cascade/pkg/types"
)

type contextKey string

const nodeContextKey contextKey = "cascade.node"

// requireWorkerAuth resolves the request's AK/SK header to an active
// node. The resolved node is bound into the request context for
// downstream handlers.
func (s *Server) requireWorkerAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessKey, secret, ok := credential.ParseAuthHeader(r.Header.Get("Authorization"))
		if !ok {
			apierr.WriteError(w, apierr.Auth())
			return
		}

		node, err := s.cred.Verify(accessKey, secret)
		if err != nil {
			apierr.WriteError(w, apierr.Auth())
			return
		}

		ctx := context.WithValue(r.Context(), nodeContextKey, node)
		next(w, r.WithContext(ctx))
	}
}

// requireOperatorAuth checks a static bearer token against the
// configured operator token, constant-time, the same way
// requireWorkerAuth never discloses which credential field failed.
func (s *Server) requireOperatorAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const scheme = "Bearer "
		header := r.Header.Get("Authorization")
		if len(header) <= len(scheme) || header[:len(scheme)] != scheme {
			apierr.WriteError(w, apierr.Auth())
			return
		}
		token := header[len(scheme):]
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.operatorToken)) != 1 {
			apierr.WriteError(w, apierr.Auth())
			return
		}
		next(w, r)
	}
}

// nodeFromContext returns the node bound by requireWorkerAuth.
func nodeFromContext(r *http.Request) *types.Node {
	node, _ := r.Context().Value(nodeContextKey).(*types.Node)
	return node
}
