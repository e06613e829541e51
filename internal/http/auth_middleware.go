package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type authContextKey string

type authInfo struct {
	UserID string
}

const contextKeyAuth authContextKey = "reelview-auth-info"

var (
	errNoToken         = errors.New("missing authorization header")
	errMalformedHeader = errors.New("invalid authorization header format")
)

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request carries a verifiable token before invoking
// the handler. A missing token is a 401, an unverifiable one a 403.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the Authorization header and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, authInfo, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if errors.Is(err, errNoToken) {
		writeError(w, http.StatusUnauthorized, "No token")
		return req.Context(), authInfo{}, false
	}
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusForbidden, "Invalid token")
		return req.Context(), authInfo{}, false
	}
	session, err := r.auth.Verify(token)
	if err != nil {
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		r.writeServiceError(w, req, err)
		return req.Context(), authInfo{}, false
	}
	info := authInfo{UserID: session.UserID}
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	return ctx, info, true
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

// bearerToken accepts "Bearer <token>" and, for older clients, the bare token.
func bearerToken(header string) (string, error) {
	parts := strings.Fields(header)
	switch {
	case len(parts) == 0:
		return "", errNoToken
	case len(parts) == 1:
		if strings.EqualFold(parts[0], "Bearer") {
			return "", errNoToken
		}
		return parts[0], nil
	case len(parts) == 2 && strings.EqualFold(parts[0], "Bearer"):
		return parts[1], nil
	default:
		return "", errMalformedHeader
	}
}
