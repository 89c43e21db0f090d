package insight

import "strings"

// The selector is deliberately conservative: a fast answer that is wrong
// costs more than a capable answer that is slow, so ambiguity always
// resolves to the capable tier.

type complexRule struct {
	matches func(q string) bool
	reason  string
}

var complexRules = []complexRule{
	{anySubstring("why", "driving", "causing", "because", "reason"), "causal language"},
	{anySubstring("compare", "versus", " vs ", "vs.", "difference between"), "comparative language"},
	{anySubstring("analyze", "analyse", "investigate", "deep dive", "breakdown of the trend"), "analytical language"},
	{anySubstring("recommend", "should i", "should we", "what would you", "suggest"), "recommendation request"},
	{anySubstring("best", "worst", "most profitable", "least profitable", "outlier"), "superlative ranking"},
	{anySubstring("what if", "if we", "projection", "forecast"), "hypothetical"},
	{anySubstring("correlat", "relationship between", "impact of"), "correlation"},
	{anySubstring("unusual", "anomal", "spike", "drop in", "out of the ordinary"), "anomaly hunting"},
	{matchesPattern(`\b(carrier|customer|lane)s?\b.*\band\b.*\b(carrier|customer|lane)s?\b`), "multi-entity question"},
}

type simpleTemplate struct {
	matches func(q string) bool
	reason  string
}

var simpleTemplates = []simpleTemplate{
	{matchesPattern(`\b(total|overall)\b.+\b(spend|cost|revenue|shipments?|loads?|miles)\b`), "total aggregation"},
	{matchesPattern(`\bhow many\b`), "plain count"},
	{matchesPattern(`\b(average|avg|mean)\b`), "plain average"},
	{matchesPattern(`\b\w+\s+by\s+\w+\b`), "X by Y breakdown"},
	{matchesPattern(`\btop\s+\d+\b|\btop\b\s+(carriers?|customers?|lanes?)`), "top-N request"},
	{matchesPattern(`\bsum of\b|\btotal number\b`), "plain sum"},
	{anySubstring("by mode", "by equipment", "per mode", "per equipment"), "mode/equipment breakdown"},
}

// SelectModel picks a model tier for a question. Orthogonal to Route: tier
// is about how hard the synthesis is, not what artifact the caller wants.
func SelectModel(question, mode string) TierDecision {
	if mode == ModeAnalyze || mode == ModeReport {
		return TierDecision{Tier: TierCapable, Confidence: 1.0, Reason: "mode requires synthesis"}
	}

	q := strings.ToLower(question)
	for _, rule := range complexRules {
		if rule.matches(q) {
			return TierDecision{Tier: TierCapable, Confidence: 0.9, Reason: rule.reason}
		}
	}
	for _, tmpl := range simpleTemplates {
		if tmpl.matches(q) {
			return TierDecision{Tier: TierFast, Confidence: 0.95, Reason: tmpl.reason}
		}
	}
	return TierDecision{Tier: TierCapable, Confidence: 0.7, Reason: "unrecognized pattern"}
}
