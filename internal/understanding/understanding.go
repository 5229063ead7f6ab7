// Package understanding implements the Query Understanding Agent
// (spec §4.2): classify the query, detect casual small-talk that should
// short-circuit the pipeline, and extract keywords for lexical retrieval.
package understanding

import (
	"context"
	"regexp"
	"strings"

	"github.com/docuqa-dev/docuqa/internal/llmclient"
	"github.com/docuqa-dev/docuqa/pkg/docuqa"
)

// Output is the Understanding Agent's context delta.
type Output struct {
	Intent    string
	QueryType docuqa.QueryType
	Keywords  []string
	IsCasual  bool
}

// Agent classifies queries without ever calling the model for casual
// input, and tolerates model failure for typed-classification
// disambiguation by falling back to the regex result.
type Agent struct {
	LLM *llmclient.Client // optional; nil disables model-assisted disambiguation
}

var casualPattern = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|thanks|thank you|bye|goodbye|good (morning|afternoon|evening))\b[\s!.,]*$`)

var comparators = []string{"compare", " vs ", "versus", "vs."}
var enumerators = []string{"list all", "every ", "each "}
var analyticalWords = []string{"why", "how"}
var factualWords = []string{"what", "when", "who"}
var unitTokens = []string{"meter", "meters", "kg", "percent", "%", "degrees", "mm", "cm", "km", "seconds", "minutes", "hours"}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true,
	"from": true, "this": true, "have": true, "what": true, "when": true,
	"where": true, "which": true, "about": true, "into": true, "your": true,
	"there": true, "their": true, "does": true, "should": true, "would": true,
}

// Execute classifies query and returns the context delta.
func (a *Agent) Execute(ctx context.Context, query string) Output {
	normalized := strings.TrimSpace(query)
	tokens := strings.Fields(normalized)

	if isCasual(normalized, tokens) {
		return Output{QueryType: docuqa.QueryCasual, IsCasual: true, Intent: "casual_greeting"}
	}

	qType, intent := classify(normalized)

	if a.LLM != nil {
		if refined, ok := a.disambiguate(ctx, normalized, qType); ok {
			qType = refined
		}
	}

	return Output{
		Intent:    intent,
		QueryType: qType,
		Keywords:  keywords(tokens),
		IsCasual:  false,
	}
}

func isCasual(normalized string, tokens []string) bool {
	if casualPattern.MatchString(normalized) {
		return true
	}
	if len(tokens) < 3 && !hasDomainTerm(tokens) {
		return true
	}
	return false
}

func hasDomainTerm(tokens []string) bool {
	for _, t := range tokens {
		if len(t) >= 4 && !stopwords[strings.ToLower(t)] && !casualPattern.MatchString(t) {
			return true
		}
	}
	return false
}

func classify(q string) (docuqa.QueryType, string) {
	lower := strings.ToLower(q)

	for _, c := range comparators {
		if strings.Contains(lower, c) {
			return docuqa.QueryComparison, "comparison"
		}
	}
	for _, e := range enumerators {
		if strings.Contains(lower, e) {
			return docuqa.QueryExtraction, "extraction"
		}
	}
	if hasUnitToken(lower) && hasQuestionForm(lower) {
		return docuqa.QueryNumerical, "numerical"
	}
	for _, w := range analyticalWords {
		if strings.HasPrefix(lower, w) || strings.Contains(lower, " "+w+" ") {
			return docuqa.QueryAnalytical, "analytical"
		}
	}
	for _, w := range factualWords {
		if strings.HasPrefix(lower, w) || strings.Contains(lower, " "+w+" ") {
			return docuqa.QueryFactual, "factual"
		}
	}
	return docuqa.QueryResearch, "research"
}

// HasUnitToken reports whether q mentions a measurement unit, the same
// check used during classification and reused by retrieval's table boost.
func HasUnitToken(q string) bool {
	return hasUnitToken(strings.ToLower(q))
}

func hasUnitToken(lower string) bool {
	for _, u := range unitTokens {
		if strings.Contains(lower, u) {
			return true
		}
	}
	return false
}

func hasQuestionForm(lower string) bool {
	return strings.Contains(lower, "how many") || strings.Contains(lower, "how much") ||
		strings.HasSuffix(strings.TrimSpace(lower), "?") || regexp.MustCompile(`\d`).MatchString(lower)
}

func keywords(tokens []string) []string {
	out := make([]string, 0, 8)
	for _, t := range tokens {
		clean := strings.Trim(strings.ToLower(t), ".,!?;:\"'()")
		if len(clean) < 4 || stopwords[clean] {
			continue
		}
		out = append(out, clean)
		if len(out) == 8 {
			break
		}
	}
	return out
}

// disambiguate asks the model to confirm the regex-derived query type,
// tolerating any failure by reporting ok=false so the caller keeps the
// regex result.
func (a *Agent) disambiguate(ctx context.Context, query string, fallback docuqa.QueryType) (docuqa.QueryType, bool) {
	prompt := "Classify the following question into exactly one category: comparison, extraction, numerical, analytical, factual, research. Question: " + query + "\nCategory:"
	// A compliant reply is one category word ("factual" is 7 characters),
	// well under the client's default 20-character floor for prose answers.
	result := a.LLM.Generate(ctx, prompt, 16, nil, llmclient.WithMinLength(1))
	if !result.Success {
		return fallback, false
	}
	candidate := docuqa.QueryType(strings.ToLower(strings.TrimSpace(result.Text)))
	switch candidate {
	case docuqa.QueryComparison, docuqa.QueryExtraction, docuqa.QueryNumerical, docuqa.QueryAnalytical, docuqa.QueryFactual, docuqa.QueryResearch:
		return candidate, true
	default:
		return fallback, false
	}
}
