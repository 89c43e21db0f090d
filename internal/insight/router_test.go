package insight

import "testing"

func TestRouteExplicitMode(t *testing.T) {
	decision := Route("anything at all", &Preferences{Mode: ModeReport})
	if decision.Mode != ModeReport || decision.Confidence != 1.0 || decision.Reason != "explicit" {
		t.Fatalf("decision = %+v", decision)
	}
}

func TestRouteLegacyHints(t *testing.T) {
	cases := map[string]string{
		"quick":  ModeQuestion,
		"deep":   ModeAnalyze,
		"visual": ModeWidget,
	}
	for hint, want := range cases {
		decision := Route("how many shipments", &Preferences{LegacyTierHint: hint})
		if decision.Mode != want || decision.Confidence != 0.9 {
			t.Errorf("hint %q: decision = %+v, want mode %s", hint, decision, want)
		}
	}
}

func TestRouteCascade(t *testing.T) {
	cases := []struct {
		question string
		want     string
	}{
		{"compile this into a filter", ModeCompile},
		{"filter for shipments from texas", ModeCompile},
		{"generate report on carrier spend", ModeReport},
		{"show me a chart of spend by mode", ModeWidget},
		{"build a widget of top lanes", ModeWidget},
		{"why did costs spike last month", ModeAnalyze},
		{"compare reefer versus dry van rates", ModeAnalyze},
		{"what is driving the increase in detention", ModeAnalyze},
		{"how many shipments did we have", ModeQuestion},
		{"list my open shipments", ModeQuestion},
	}
	for _, tc := range cases {
		decision := Route(tc.question, nil)
		if decision.Mode != tc.want {
			t.Errorf("Route(%q) = %s, want %s", tc.question, decision.Mode, tc.want)
		}
	}
}

func TestRouteDefaultConfidence(t *testing.T) {
	decision := Route("list my open shipments", nil)
	if decision.Confidence != 0.7 {
		t.Errorf("default confidence = %v", decision.Confidence)
	}
}

func TestRouteIsDeterministic(t *testing.T) {
	first := Route("why did spend increase", nil)
	for i := 0; i < 10; i++ {
		if got := Route("why did spend increase", nil); got != first {
			t.Fatalf("nondeterministic route: %+v vs %+v", got, first)
		}
	}
}
