package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"freightline/api_compass/internal/access"
	"freightline/api_compass/pkg/logging"
)

// CompiledContext is the system prompt assembled for one request, plus the
// item ids it used (for usage tracking) and a rough token estimate.
type CompiledContext struct {
	Prompt        string
	KnowledgeIDs  []string
	TokenEstimate int
}

// PromptSection is one typed block of the system prompt. Sections are
// appended in order and serialized once, so presence and ordering stay
// testable independent of formatting.
type PromptSection struct {
	Title string
	Lines []string
}

func (s PromptSection) render() string {
	var b strings.Builder
	if s.Title != "" {
		b.WriteString(s.Title)
		b.WriteString("\n")
	}
	b.WriteString(strings.Join(s.Lines, "\n"))
	return b.String()
}

const preamble = `You are Compass, the analytics assistant for a freight brokerage dashboard.
You answer questions about shipments, carriers, customers, lanes, and spend by
calling the data tools provided. Rules:
- Always discover tables and fields before querying unfamiliar data.
- Prefer aggregate queries over fetching raw rows when the user asks for totals, counts, or averages.
- Never fabricate numbers; every figure in your answer must come from a tool result.
- Keep answers concise and lead with the number or finding the user asked for.`

// ContextStore is the read side the compiler depends on.
type ContextStore interface {
	FetchContext(ctx context.Context, tenantID string) (ContextBundle, error)
}

type Compiler struct {
	store  ContextStore
	logger logging.Logger
}

func NewCompiler(store ContextStore, logger logging.Logger) *Compiler {
	return &Compiler{store: store, logger: logger}
}

// Compile assembles the system prompt for one request. On store failure it
// degrades to the preamble plus the access clause rather than failing the
// request.
func (c *Compiler) Compile(ctx context.Context, tenantID string, privileged bool) CompiledContext {
	sections := []PromptSection{
		{Lines: []string{preamble}},
		accessSection(privileged),
	}
	var ids []string

	bundle, err := c.store.FetchContext(ctx, tenantID)
	if err != nil {
		if c.logger != nil {
			c.logger.WithFields(logging.Fields{
				"tenant_id": tenantID,
				"error":     err,
			}).Warn("Knowledge fetch failed, using minimal context")
		}
		return serialize(sections, nil)
	}

	if section, used := knowledgeSection("Domain knowledge", bundle.Global); len(section.Lines) > 0 {
		sections = append(sections, section)
		ids = append(ids, used...)
	}
	if section, used := knowledgeSection("This customer's terminology (overrides the defaults above)", bundle.Tenant); len(section.Lines) > 0 {
		sections = append(sections, section)
		ids = append(ids, used...)
	}
	for _, doc := range bundle.Documents {
		sections = append(sections, PromptSection{
			Title: "Reference: " + doc.Title,
			Lines: []string{doc.Body},
		})
	}
	if section := profileSection(bundle.Profile); len(section.Lines) > 0 {
		sections = append(sections, section)
	}

	return serialize(sections, ids)
}

func serialize(sections []PromptSection, ids []string) CompiledContext {
	rendered := make([]string, 0, len(sections))
	for _, section := range sections {
		rendered = append(rendered, section.render())
	}
	prompt := strings.Join(rendered, "\n\n")
	return CompiledContext{
		Prompt:        prompt,
		KnowledgeIDs:  ids,
		TokenEstimate: (len(prompt) + 3) / 4,
	}
}

func accessSection(privileged bool) PromptSection {
	if privileged {
		return PromptSection{
			Title: "Access level",
			Lines: []string{"This user may see carrier cost and margin fields (" +
				strings.Join(access.RestrictedFields(), ", ") + ")."},
		}
	}
	return PromptSection{
		Title: "Access level",
		Lines: []string{
			"This user must NOT see these fields: " + strings.Join(access.RestrictedFields(), ", ") + ".",
			"When the user says \"cost\" or \"spend\" they mean the retail price; query the retail field.",
		},
	}
}

// knowledgeSection renders items grouped by type. Rendering varies per type:
// terms read as definitions, products as search hints, fields as column
// guidance.
func knowledgeSection(title string, items []Item) (PromptSection, []string) {
	if len(items) == 0 {
		return PromptSection{}, nil
	}
	byType := map[string][]Item{}
	for _, item := range items {
		byType[item.Type] = append(byType[item.Type], item)
	}

	section := PromptSection{Title: title}
	var ids []string
	for _, group := range []struct {
		itemType string
		heading  string
	}{
		{"term", "Terms:"},
		{"product", "Products:"},
		{"field", "Fields:"},
		{"rule", "Rules:"},
	} {
		grouped := byType[group.itemType]
		if len(grouped) == 0 {
			continue
		}
		section.Lines = append(section.Lines, group.heading)
		for _, item := range grouped {
			section.Lines = append(section.Lines, renderItem(item))
			ids = append(ids, item.ID)
		}
	}
	return section, ids
}

func renderItem(item Item) string {
	switch item.Type {
	case "product":
		return fmt.Sprintf("- %s: search for %q", item.Label, item.Definition)
	case "field":
		line := fmt.Sprintf("- %s: %s", item.Label, item.Definition)
		if item.Instructions != "" {
			line += " -> " + item.Instructions
		}
		return line
	default:
		line := fmt.Sprintf("- %s: %s", item.Label, item.Definition)
		if item.Instructions != "" {
			line += " (" + item.Instructions + ")"
		}
		return line
	}
}

func profileSection(profile *TenantProfile) PromptSection {
	if profile == nil {
		return PromptSection{}
	}
	section := PromptSection{Title: "About this customer"}
	if len(profile.Priorities) > 0 {
		section.Lines = append(section.Lines, "Priorities: "+strings.Join(profile.Priorities, ", "))
	}
	if len(profile.KeyMarkets) > 0 {
		section.Lines = append(section.Lines, "Key markets: "+strings.Join(profile.KeyMarkets, ", "))
	}
	for _, pair := range sortedTermPairs(profile.Terminology) {
		section.Lines = append(section.Lines, fmt.Sprintf("%q = %s", pair[0], pair[1]))
	}
	if profile.Notes != "" {
		section.Lines = append(section.Lines, "Notes: "+profile.Notes)
	}
	return section
}

func sortedTermPairs(terminology map[string]string) [][2]string {
	if len(terminology) == 0 {
		return nil
	}
	terms := make([]string, 0, len(terminology))
	for term := range terminology {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	pairs := make([][2]string, 0, len(terms))
	for _, term := range terms {
		pairs = append(pairs, [2]string{term, terminology[term]})
	}
	return pairs
}
