package access

import (
	"context"
	"database/sql"
	"errors"

	"freightline/api_compass/internal/compass"
	"freightline/api_compass/pkg/database"
	"freightline/api_compass/pkg/logging"
)

// Restricted fields carry carrier cost and margin data. Only privileged
// callers may see them; everyone else gets retail-only views.
var restrictedFields = map[string]bool{
	"carrier_cost":   true,
	"total_cost":     true,
	"cost_per_mile":  true,
	"margin":         true,
	"margin_percent": true,
}

// IsRestrictedField reports whether a column name carries cost or margin data.
func IsRestrictedField(field string) bool {
	return restrictedFields[field]
}

// RestrictedFields returns the restricted column names in a stable order for
// prompt assembly.
func RestrictedFields() []string {
	return []string{"carrier_cost", "total_cost", "cost_per_mile", "margin", "margin_percent"}
}

func privilegedRole(role string) bool {
	switch role {
	case "admin", "broker", "manager":
		return true
	}
	return false
}

// Checker resolves whether a user may see cost and margin fields.
type Checker struct {
	db     database.PostgresConn
	logger logging.Logger
}

func NewChecker(db database.PostgresConn, logger logging.Logger) *Checker {
	return &Checker{db: db, logger: logger}
}

// IsPrivileged reports cost visibility for the calling user. The role claim
// on the request context is used as a fast path; otherwise the role is read
// from the users table. Any lookup failure resolves to not privileged.
func (c *Checker) IsPrivileged(ctx context.Context, userID string) bool {
	if role := compass.GetRole(ctx); role != "" {
		return privilegedRole(role)
	}
	if userID == "" {
		return false
	}

	var role string
	err := c.db.QueryRowContext(ctx, `
		SELECT role
		FROM compass.users
		WHERE user_id = $1 AND tenant_id = $2`,
		userID, compass.GetTenantID(ctx),
	).Scan(&role)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.WithFields(logging.Fields{
				"user_id": userID,
				"error":   err,
			}).Warn("Role lookup failed, denying cost visibility")
		}
		return false
	}
	return privilegedRole(role)
}
