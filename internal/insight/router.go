package insight

import (
	"regexp"
	"strings"
)

// routeRule is one entry in the classification cascade. Rules are evaluated
// in order against the lower-cased question; first match wins.
type routeRule struct {
	matches    func(q string) bool
	mode       string
	confidence float64
	reason     string
}

func anySubstring(markers ...string) func(string) bool {
	return func(q string) bool {
		for _, marker := range markers {
			if strings.Contains(q, marker) {
				return true
			}
		}
		return false
	}
}

func matchesPattern(pattern string) func(string) bool {
	re := regexp.MustCompile(pattern)
	return re.MatchString
}

var routeRules = []routeRule{
	{
		matches:    anySubstring("compile", "filter for", "convert to"),
		mode:       ModeCompile,
		confidence: 0.9,
		reason:     "filter compilation language",
	},
	{
		matches:    anySubstring("generate report", "report"),
		mode:       ModeReport,
		confidence: 0.9,
		reason:     "report request",
	},
	{
		matches:    anySubstring("widget", "chart", "visualization", "visualisation", "graph"),
		mode:       ModeWidget,
		confidence: 0.9,
		reason:     "visualization request",
	},
	{
		matches: matchesPattern(
			`\bwhy\b|\binvestigate\b|\banalyze\b|\banalyse\b|\bcompare\b|\bversus\b|\bvs\.?\b|\bdriving\b|\bcausing\b`),
		mode:       ModeAnalyze,
		confidence: 0.9,
		reason:     "analytical language",
	},
}

var legacyHints = map[string]string{
	"quick":  ModeQuestion,
	"deep":   ModeAnalyze,
	"visual": ModeWidget,
}

// Route classifies a question into an operating mode. Pure and deterministic.
func Route(question string, prefs *Preferences) RouteDecision {
	if prefs != nil && prefs.Mode != "" {
		return RouteDecision{Mode: prefs.Mode, Confidence: 1.0, Reason: "explicit"}
	}
	if prefs != nil && prefs.LegacyTierHint != "" {
		if mode, ok := legacyHints[strings.ToLower(prefs.LegacyTierHint)]; ok {
			return RouteDecision{Mode: mode, Confidence: 0.9, Reason: "legacy tier hint"}
		}
	}

	q := strings.ToLower(question)
	for _, rule := range routeRules {
		if rule.matches(q) {
			return RouteDecision{Mode: rule.mode, Confidence: rule.confidence, Reason: rule.reason}
		}
	}
	return RouteDecision{Mode: ModeQuestion, Confidence: 0.7, Reason: "default"}
}
