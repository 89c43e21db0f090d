package access

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"freightline/api_compass/internal/compass"
	"freightline/api_compass/pkg/logging"
)

func newTestChecker(t *testing.T) (*Checker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewChecker(db, logging.NewLogger()), mock
}

func TestIsPrivilegedRoleClaimFastPath(t *testing.T) {
	checker, mock := newTestChecker(t)

	for role, want := range map[string]bool{
		"admin":    true,
		"broker":   true,
		"manager":  true,
		"customer": false,
	} {
		ctx := compass.WithRole(context.Background(), role)
		if got := checker.IsPrivileged(ctx, "u1"); got != want {
			t.Errorf("role %q: privileged = %v, want %v", role, got, want)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("role claim path must not touch the database: %v", err)
	}
}

func TestIsPrivilegedRoleLookup(t *testing.T) {
	checker, mock := newTestChecker(t)

	mock.ExpectQuery("SELECT role").
		WithArgs("u1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("broker"))

	ctx := compass.WithTenantID(context.Background(), "t1")
	if !checker.IsPrivileged(ctx, "u1") {
		t.Error("broker row should confer cost visibility")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestIsPrivilegedCustomerRow(t *testing.T) {
	checker, mock := newTestChecker(t)

	mock.ExpectQuery("SELECT role").
		WithArgs("u2", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("customer"))

	ctx := compass.WithTenantID(context.Background(), "t1")
	if checker.IsPrivileged(ctx, "u2") {
		t.Error("customer role must not see cost fields")
	}
}

func TestIsPrivilegedNoRow(t *testing.T) {
	checker, mock := newTestChecker(t)

	mock.ExpectQuery("SELECT role").
		WithArgs("u3", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))

	ctx := compass.WithTenantID(context.Background(), "t1")
	if checker.IsPrivileged(ctx, "u3") {
		t.Error("unknown user must resolve to not privileged")
	}
}

func TestIsPrivilegedFailsClosed(t *testing.T) {
	checker, mock := newTestChecker(t)

	mock.ExpectQuery("SELECT role").
		WithArgs("u4", "t1").
		WillReturnError(errors.New("connection reset"))

	ctx := compass.WithTenantID(context.Background(), "t1")
	if checker.IsPrivileged(ctx, "u4") {
		t.Error("lookup failure must deny cost visibility")
	}
}

func TestIsPrivilegedEmptyUser(t *testing.T) {
	checker, mock := newTestChecker(t)

	if checker.IsPrivileged(context.Background(), "") {
		t.Error("missing user id must resolve to not privileged")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no query expected: %v", err)
	}
}

func TestIsRestrictedField(t *testing.T) {
	for _, field := range []string{"carrier_cost", "total_cost", "cost_per_mile", "margin", "margin_percent"} {
		if !IsRestrictedField(field) {
			t.Errorf("%s should be restricted", field)
		}
	}
	for _, field := range []string{"total_retail", "shipment_count", "retail_per_mile"} {
		if IsRestrictedField(field) {
			t.Errorf("%s should not be restricted", field)
		}
	}
}
