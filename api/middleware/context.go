package middleware

import "context"

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxRole     contextKey = "actor_role"
	ctxAccessID contextKey = "access_id"
)

func UserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserID)
}

func RoleFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxRole)
}

// AccessIDFromContext returns the jti of the presented access token. It names
// the refresh session in Redis.
func AccessIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxAccessID)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole injects the actor role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}
