package insight

import (
	"strings"

	"github.com/google/uuid"

	"freightline/api_compass/pkg/llm"
)

// Per-mode instructions appended after the compiled knowledge context. The
// tone guidance matters: answers land in a dashboard panel, not a chat log.
var modeInstructionText = map[string]string{
	ModeQuestion: `Answer the question directly and concisely. Use the data tools to ground every number you state. If the data cannot answer the question, say so plainly.`,
	ModeWidget: `The user wants a dashboard widget. Query the data needed for a single chart or stat, then describe what the widget shows in one or two sentences. Prefer aggregate queries over raw row listings.`,
	ModeReport: `Produce a structured report: a short headline summary, then sections covering volume, spend, and service performance. Ground each section in tool data. Close with anything unusual worth the reader's attention.`,
	ModeAnalyze: `Investigate the question thoroughly. Form a hypothesis, query the data to test it, and follow up on anomalies with further queries before concluding. State what is driving the numbers, not just what they are.`,
}

func modeInstructions(mode string, qctx *QueryContext) string {
	var b strings.Builder
	if text, ok := modeInstructionText[mode]; ok {
		b.WriteString(text)
	}
	if qctx != nil {
		if qctx.WidgetType != "" {
			b.WriteString("\nThe dashboard slot expects a " + qctx.WidgetType + " widget.")
		}
		if len(qctx.AvailableFields) > 0 {
			b.WriteString("\nFields already on screen: " + strings.Join(qctx.AvailableFields, ", ") + ".")
		}
	}
	return b.String()
}

// buildTranscript assembles the model conversation: compiled system prompt,
// trimmed history, then the current question.
func buildTranscript(systemPrompt string, history []HistoryTurn, question string, maxHistory int) []llm.Message {
	if maxHistory > 0 && len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	for _, turn := range history {
		role := turn.Role
		if role != "user" && role != "assistant" {
			continue
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: question})
	return messages
}

var followUpTemplates = map[string][]string{
	ModeQuestion: {
		"How does that compare to the previous period?",
		"Break that down by carrier.",
		"Show me the trend over the last six months.",
	},
	ModeWidget: {
		"Turn this into a report.",
		"Filter this widget to a single lane.",
	},
	ModeReport: {
		"Why did spend move versus last month?",
		"Which carriers drove the service numbers?",
	},
	ModeAnalyze: {
		"What should we do about it?",
		"Is the same pattern visible in other lanes?",
	},
}

func followUpsFor(mode string) []FollowUp {
	templates := followUpTemplates[mode]
	if templates == nil {
		templates = followUpTemplates[ModeQuestion]
	}
	followUps := make([]FollowUp, 0, len(templates))
	for _, question := range templates {
		followUps = append(followUps, FollowUp{ID: uuid.New().String(), Question: question})
	}
	return followUps
}
