package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"butce/internal/log"
)

const SessionCookie = "session"

type contextKey string

const userIDKey contextKey = "user_id"

func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext returns the authenticated user, if any.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// UserKey returns the user id as a string for rate limit keys, "" when anonymous.
func UserKey(r *http.Request) string {
	if id, ok := UserIDFromContext(r.Context()); ok {
		return id.String()
	}
	return ""
}

// TokenFromRequest reads a bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// Middleware requires a valid session. Rejections are logged at warn without
// token material and answered through onUnauthorized.
func Middleware(tokens *TokenService, logger *log.Logger, onUnauthorized func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentAuth)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				logger.WarnContext(r.Context(), "Missing session", log.FieldPath, r.URL.Path)
				reject(w, r, onUnauthorized)
				return
			}

			userID, err := tokens.ParseToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "Invalid session", log.FieldPath, r.URL.Path, log.FieldError, err.Error())
				reject(w, r, onUnauthorized)
				return
			}

			ctx := WithUserID(r.Context(), userID)
			ctx = log.WithLogger(ctx, log.FromContext(ctx).With(log.FieldUserID, userID.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, onUnauthorized func(http.ResponseWriter, *http.Request)) {
	if onUnauthorized != nil {
		onUnauthorized(w, r)
		return
	}
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
