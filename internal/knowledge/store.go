package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Item is a stored term/product/field/rule definition used to bias the
// model's reading of domain language. Scope is either global (every tenant)
// or tenant-specific.
type Item struct {
	ID           string
	Type         string // term | product | field | rule
	Key          string
	Label        string
	Definition   string
	Instructions string
	UsageCount   int
}

// TenantProfile carries the free-form business context a tenant has filled
// in: what they care about, where they ship, and how they talk about it.
type TenantProfile struct {
	Priorities  []string          `json:"priorities"`
	KeyMarkets  []string          `json:"key_markets"`
	Terminology map[string]string `json:"terminology"`
	Notes       string            `json:"notes"`
}

type Document struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ContextBundle is everything the compiler needs for one request, fetched in
// one round trip.
type ContextBundle struct {
	Global    []Item
	Tenant    []Item
	Profile   *TenantProfile
	Documents []Document
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FetchContext loads global and tenant knowledge, the tenant profile, and
// reference documents for one request in a single round trip. Global items
// have a NULL tenant_id. Each arm of the select aggregates to JSON so one row
// carries the whole bundle.
func (s *Store) FetchContext(ctx context.Context, tenantID string) (ContextBundle, error) {
	if tenantID == "" {
		return ContextBundle{}, errors.New("tenant id is required")
	}

	var itemsJSON, profileJSON, docsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((
				SELECT json_agg(json_build_object(
					'id', ki.id,
					'type', ki.item_type,
					'key', ki.item_key,
					'label', ki.label,
					'definition', ki.definition,
					'instructions', COALESCE(ki.ai_instructions, ''),
					'usage_count', ki.usage_count,
					'is_global', ki.tenant_id IS NULL
				) ORDER BY ki.tenant_id IS NULL DESC, ki.item_type, ki.label)
				FROM compass.knowledge_items ki
				WHERE ki.tenant_id IS NULL OR ki.tenant_id = $1
			), '[]') AS items,
			(
				SELECT json_build_object(
					'priorities', tp.priorities,
					'key_markets', tp.key_markets,
					'terminology', tp.terminology,
					'notes', COALESCE(tp.notes, '')
				)
				FROM compass.tenant_profiles tp
				WHERE tp.tenant_id = $1
			) AS profile,
			COALESCE((
				SELECT json_agg(json_build_object('title', rd.title, 'body', rd.body) ORDER BY rd.title)
				FROM compass.reference_documents rd
				WHERE rd.tenant_id IS NULL OR rd.tenant_id = $1
			), '[]') AS documents
	`, tenantID).Scan(&itemsJSON, &profileJSON, &docsJSON)
	if err != nil {
		return ContextBundle{}, fmt.Errorf("fetch knowledge context: %w", err)
	}
	return decodeBundle(itemsJSON, profileJSON, docsJSON)
}

type itemRecord struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Key          string `json:"key"`
	Label        string `json:"label"`
	Definition   string `json:"definition"`
	Instructions string `json:"instructions"`
	UsageCount   int    `json:"usage_count"`
	IsGlobal     bool   `json:"is_global"`
}

func decodeBundle(itemsJSON, profileJSON, docsJSON []byte) (ContextBundle, error) {
	var bundle ContextBundle

	var items []itemRecord
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return ContextBundle{}, fmt.Errorf("decode knowledge items: %w", err)
	}
	for _, rec := range items {
		item := Item{
			ID:           rec.ID,
			Type:         rec.Type,
			Key:          rec.Key,
			Label:        rec.Label,
			Definition:   rec.Definition,
			Instructions: rec.Instructions,
			UsageCount:   rec.UsageCount,
		}
		if rec.IsGlobal {
			bundle.Global = append(bundle.Global, item)
		} else {
			bundle.Tenant = append(bundle.Tenant, item)
		}
	}

	// No profile row yields a NULL column, not an empty object.
	if len(profileJSON) > 0 {
		var profile TenantProfile
		if err := json.Unmarshal(profileJSON, &profile); err != nil {
			return ContextBundle{}, fmt.Errorf("decode tenant profile: %w", err)
		}
		bundle.Profile = &profile
	}

	if err := json.Unmarshal(docsJSON, &bundle.Documents); err != nil {
		return ContextBundle{}, fmt.Errorf("decode reference documents: %w", err)
	}
	return bundle, nil
}

// IncrementUsage bumps the usage counter on every item that made it into a
// compiled context. Loss-tolerant: callers fire it once per run and only log
// failures.
func (s *Store) IncrementUsage(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE compass.knowledge_items
		SET usage_count = usage_count + 1
		WHERE id = ANY($1)
	`, pq.Array(ids)); err != nil {
		return fmt.Errorf("increment knowledge usage: %w", err)
	}
	return nil
}
