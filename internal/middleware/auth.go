package middleware

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/cashflow/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// UserIDKey is the context key for storing the authenticated user ID.
	UserIDKey contextKey = "user_id"
	// EmailKey is the context key for storing the authenticated user's email.
	EmailKey contextKey = "email"
)

// GetUserID extracts the user ID from the context.
// Returns empty string if not found.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// GetEmail extracts the user email from the context.
// Returns empty string if not found.
func GetEmail(ctx context.Context) string {
	email, _ := ctx.Value(EmailKey).(string)
	return email
}

// WithUser returns a context carrying an authenticated user.
func WithUser(ctx context.Context, userID, email string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, EmailKey, email)
}

// RequireAuth rejects every call without a valid bearer token.
func RequireAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return authInterceptor(jwtManager, func(string) bool { return true })
}

// OptionalAuth attaches the user when a valid bearer token is present and
// lets every call through otherwise.
func OptionalAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return authInterceptor(jwtManager, func(string) bool { return false })
}

// ProtectProcedures requires a valid token for the named procedures only.
// Other procedures behave as with OptionalAuth.
func ProtectProcedures(jwtManager *auth.JWTManager, procedures ...string) connect.UnaryInterceptorFunc {
	protected := make(map[string]bool, len(procedures))
	for _, p := range procedures {
		protected[p] = true
	}
	return authInterceptor(jwtManager, func(procedure string) bool { return protected[procedure] })
}

func authInterceptor(jwtManager *auth.JWTManager, required func(procedure string) bool) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			mustAuth := required(req.Spec().Procedure)

			token, ok := bearerToken(req.Header().Get("Authorization"))
			if !ok {
				if mustAuth {
					return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
				}
				return next(ctx, req)
			}

			claims, err := jwtManager.Validate(token)
			if err != nil {
				if mustAuth {
					return nil, connect.NewError(connect.CodeUnauthenticated, err)
				}
				// Invalid tokens on open procedures are treated as anonymous.
				return next(ctx, req)
			}

			return next(WithUser(ctx, claims.UserID, claims.Email), req)
		}
	}
}

// bearerToken parses an "Authorization: Bearer <token>" header value.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
