package auth

import "context"

const roleKey contextKey = "role"

// RoleAdmin は管理者ロール
const RoleAdmin = "admin"

// WithRole stores the user's role in the context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

// RoleFromContext returns the role set by RequireAdmin, or "".
func RoleFromContext(ctx context.Context) string {
	v, _ := ctx.Value(roleKey).(string)
	return v
}

// IsAdminFromContext reports whether the authenticated user is an admin.
// Returns false when not set.
func IsAdminFromContext(ctx context.Context) bool {
	return RoleFromContext(ctx) == RoleAdmin
}
