package insight

import (
	"context"
	"errors"
	"testing"

	"freightline/api_compass/pkg/llm"
	"freightline/api_compass/pkg/logging"
)

func TestFallbackFiltersRoundTrip(t *testing.T) {
	compiler := NewFilterCompiler(nil, logging.NewLogger())

	out := compiler.Compile(context.Background(), "shipments over $500 from CA", "", false)
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if len(out.Filters) != 2 {
		t.Fatalf("filters = %+v", out.Filters)
	}
	if out.Filters[0].Field != "retail" || out.Filters[0].Operator != "gt" || out.Filters[0].Value != 500.0 {
		t.Errorf("amount filter = %+v", out.Filters[0])
	}
	if out.Filters[1].Field != "origin_state" || out.Filters[1].Operator != "eq" || out.Filters[1].Value != "CA" {
		t.Errorf("origin filter = %+v", out.Filters[1])
	}
}

func TestFallbackFiltersConstructions(t *testing.T) {
	cases := []struct {
		question string
		field    string
		operator string
		value    any
	}{
		{"delivered shipments under $1,200.50", "retail", "lt", 1200.50},
		{"loads to TX this week", "destination_state", "eq", "TX"},
		{"delivered freight", "status_name", "eq", "Delivered"},
		{"late shipments", "is_late", "eq", true},
	}
	for _, tc := range cases {
		filters, err := FallbackFilters(tc.question)
		if err != nil {
			t.Errorf("%q: %v", tc.question, err)
			continue
		}
		found := false
		for _, filter := range filters {
			if filter.Field == tc.field && filter.Operator == tc.operator && filter.Value == tc.value {
				found = true
			}
		}
		if !found {
			t.Errorf("%q: missing %s %s %v in %+v", tc.question, tc.field, tc.operator, tc.value, filters)
		}
	}
}

func TestFallbackFiltersRegion(t *testing.T) {
	filters, err := FallbackFilters("west coast shipments")
	if err != nil {
		t.Fatal(err)
	}
	if filters[0].Field != "origin_state" || filters[0].Operator != "in" {
		t.Fatalf("filters = %+v", filters)
	}
	states := filters[0].Value.([]string)
	if len(states) != 3 || states[0] != "CA" {
		t.Errorf("states = %v", states)
	}
}

func TestFallbackFiltersNeverGuesses(t *testing.T) {
	if _, err := FallbackFilters("tell me something interesting"); err == nil {
		t.Fatal("unrecognized prompt must error, not guess")
	}
}

func TestCompileModelPrimary(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.Chunk{textChunks(
		`{"filters":[{"field":"total_cost","operator":"gt","value":250},`,
		`{"field":"origin_state","operator":"eq","value":"West Coast"}],`,
		`"reasoning":"amount plus region","confidence":0.9}`,
	)}}
	compiler := NewFilterCompiler(provider, logging.NewLogger())

	out := compiler.Compile(context.Background(), "west coast shipments costing over 250", "", false)
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Filters[0].Field != "retail" {
		t.Errorf("restricted cost field must compile to retail, got %q", out.Filters[0].Field)
	}
	if out.Filters[1].Operator != "in" {
		t.Errorf("region value must expand to an in filter, got %+v", out.Filters[1])
	}
	states := out.Filters[1].Value.([]string)
	if len(states) != 3 {
		t.Errorf("states = %v", states)
	}
	if out.Confidence != 0.9 {
		t.Errorf("confidence = %v", out.Confidence)
	}
}

func TestCompilePrivilegedKeepsCostField(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.Chunk{textChunks(
		`{"filters":[{"field":"total_cost","operator":"gt","value":250}],"confidence":1}`,
	)}}
	compiler := NewFilterCompiler(provider, logging.NewLogger())

	out := compiler.Compile(context.Background(), "cost over 250", "", true)
	if !out.Success || out.Filters[0].Field != "total_cost" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestCompileMalformedJSONFallsBack(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.Chunk{textChunks("I think you want expensive shipments")}}
	compiler := NewFilterCompiler(provider, logging.NewLogger())

	out := compiler.Compile(context.Background(), "shipments over $100", "", false)
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Filters[0].Field != "retail" || out.Filters[0].Value != 100.0 {
		t.Errorf("filters = %+v", out.Filters)
	}
}

func TestCompileUnknownOperatorFallsBack(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.Chunk{textChunks(
		`{"filters":[{"field":"status_name","operator":"like","value":"Delivered"}]}`,
	)}}
	compiler := NewFilterCompiler(provider, logging.NewLogger())

	out := compiler.Compile(context.Background(), "delivered shipments", "", false)
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Filters[0].Field != "status_name" || out.Filters[0].Operator != "eq" {
		t.Errorf("filters = %+v", out.Filters)
	}
}

func TestCompileNoModelNoMatchErrors(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("model down")}
	compiler := NewFilterCompiler(provider, logging.NewLogger())

	out := compiler.Compile(context.Background(), "tell me a story", "", false)
	if out.Success || out.Error == "" {
		t.Fatalf("outcome = %+v", out)
	}
}
