package knowledge

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestFetchContextSplitsGlobalAndTenant(t *testing.T) {
	store, mock := newTestStore(t)

	items := `[
		{"id":"k1","type":"term","key":"otd","label":"On-time delivery","definition":"Delivered by the promised date","instructions":"","usage_count":4,"is_global":true},
		{"id":"k2","type":"field","key":"retail","label":"Retail price","definition":"Customer-facing price","instructions":"use for cost questions","usage_count":9,"is_global":true},
		{"id":"k3","type":"term","key":"hot","label":"Hot load","definition":"Expedited shipment","instructions":"","usage_count":1,"is_global":false}
	]`
	profile := `{"priorities":["on-time delivery"],"key_markets":["CA","TX"],"terminology":{"reefer":"refrigerated trailer"},"notes":"Produce shipper"}`
	docs := `[{"title":"Accessorial guide","body":"Detention billed after 2 hours."}]`

	// the whole bundle arrives on one row of one query
	mock.ExpectQuery("FROM compass.knowledge_items").
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"items", "profile", "documents"}).
			AddRow([]byte(items), []byte(profile), []byte(docs)))

	bundle, err := store.FetchContext(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(bundle.Global) != 2 || len(bundle.Tenant) != 1 {
		t.Fatalf("expected 2 global + 1 tenant, got %d + %d", len(bundle.Global), len(bundle.Tenant))
	}
	if bundle.Tenant[0].Label != "Hot load" {
		t.Errorf("tenant item = %+v", bundle.Tenant[0])
	}
	if bundle.Profile == nil || bundle.Profile.Terminology["reefer"] != "refrigerated trailer" {
		t.Errorf("profile = %+v", bundle.Profile)
	}
	if len(bundle.Documents) != 1 || bundle.Documents[0].Title != "Accessorial guide" {
		t.Errorf("documents = %+v", bundle.Documents)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestFetchContextNoProfile(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("FROM compass.knowledge_items").
		WithArgs("tenant-2").
		WillReturnRows(sqlmock.NewRows([]string{"items", "profile", "documents"}).
			AddRow([]byte(`[]`), nil, []byte(`[]`)))

	bundle, err := store.FetchContext(context.Background(), "tenant-2")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if bundle.Profile != nil {
		t.Errorf("expected nil profile, got %+v", bundle.Profile)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("one query expected: %v", err)
	}
}

func TestFetchContextRequiresTenant(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.FetchContext(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty tenant")
	}
}

func TestIncrementUsage(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("UPDATE compass.knowledge_items").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := store.IncrementUsage(context.Background(), []string{"k1", "k2"}); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestIncrementUsageNoIDs(t *testing.T) {
	store, mock := newTestStore(t)
	if err := store.IncrementUsage(context.Background(), nil); err != nil {
		t.Fatalf("increment with no ids should be a no-op: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no query expected: %v", err)
	}
}
