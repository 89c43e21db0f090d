package compass

import "context"

type contextKey string

const (
	keyTenantID   contextKey = "compass_tenant_id"
	keyUserID     contextKey = "compass_user_id"
	keyRole       contextKey = "compass_role"
	keyMode       contextKey = "compass_mode"
	keyPrivileged contextKey = "compass_privileged"
)

func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyTenantID, id)
}

func GetTenantID(ctx context.Context) string {
	if v, ok := ctx.Value(keyTenantID).(string); ok {
		return v
	}
	return ""
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyUserID, id)
}

func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(keyUserID).(string); ok {
		return v
	}
	return ""
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, keyRole, role)
}

func GetRole(ctx context.Context) string {
	if v, ok := ctx.Value(keyRole).(string); ok {
		return v
	}
	return ""
}

func WithMode(ctx context.Context, mode string) context.Context {
	return context.WithValue(ctx, keyMode, mode)
}

func GetMode(ctx context.Context) string {
	if v, ok := ctx.Value(keyMode).(string); ok {
		return v
	}
	return ""
}

// WithPrivileged records whether the caller may see cost and margin fields.
// Absent means not privileged.
func WithPrivileged(ctx context.Context, privileged bool) context.Context {
	return context.WithValue(ctx, keyPrivileged, privileged)
}

func IsPrivileged(ctx context.Context) bool {
	if v, ok := ctx.Value(keyPrivileged).(bool); ok {
		return v
	}
	return false
}
