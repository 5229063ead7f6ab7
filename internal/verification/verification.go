// Package verification implements the Verification Agent (spec §4.5): an
// LLM judgement combined with three heuristic multipliers, clamped to
// produce a final confidence score and verified flag.
//
// The judge-prompt-plus-heuristic-multiplier shape has no direct teacher
// analogue; it follows spec §4.5 exactly, using internal/llmclient as the
// sole path to the model per the teacher's "one choke point" convention.
package verification

import (
	"context"
	"strconv"
	"strings"

	"github.com/docuqa-dev/docuqa/internal/llmclient"
)

const verifiedThreshold = 0.7

// Agent assigns a confidence score and verified flag to a candidate
// answer, cross-checked against the evidence it was built from.
type Agent struct {
	LLM *llmclient.Client
}

// Result is the Verification Agent's context delta.
type Result struct {
	Confidence float64
	Verified   bool
}

// Execute scores answer against context (the concatenated evidence text).
func (a *Agent) Execute(ctx context.Context, query, answer, contextText string) Result {
	overlap := overlapRatio(answer, contextText)

	judged, err := a.judge(ctx, query, answer, contextText)
	if err != nil {
		confidence := clamp(0.5 * overlap)
		if confidence > 0.7 {
			confidence = 0.7
		}
		return Result{Confidence: confidence, Verified: false}
	}

	confidence := judged
	if len(answer) < 50 {
		confidence *= 0.8
	}
	confidence *= overlap
	if mentionsCitation(answer) {
		confidence *= 1.05
	}
	confidence = clamp(confidence)

	return Result{Confidence: confidence, Verified: confidence >= verifiedThreshold}
}

// judge asks the model for a [0,1] support score; any non-numeric or
// failed response is treated as a judge failure.
func (a *Agent) judge(ctx context.Context, query, answer, contextText string) (float64, error) {
	prompt := "Is this answer supported by the context? Give a number in [0,1] only.\n\n" +
		"Context: " + contextText + "\n\nQuestion: " + query + "\n\nAnswer: " + answer + "\n\nScore:"

	// A compliant judge reply is a bare score like "0.85" - well under the
	// client's default 20-character floor for ordinary prose answers, so
	// this call lowers it to just "not empty".
	result := a.LLM.Generate(ctx, prompt, 8, nil, llmclient.WithMinLength(1))
	if !result.Success {
		if result.Err != nil {
			return 0, result.Err
		}
		return 0, errJudgeFailed
	}

	score, err := parseScore(result.Text)
	if err != nil {
		return 0, err
	}
	return score, nil
}

type judgeError string

func (e judgeError) Error() string { return string(e) }

var errJudgeFailed = judgeError("judge returned no usable score")

func parseScore(text string) (float64, error) {
	fields := strings.Fields(text)
	for _, f := range fields {
		f = strings.Trim(f, "[](){}.,;:")
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			return clamp(v), nil
		}
	}
	return 0, judgeError("no numeric score found in judge response")
}

// overlapRatio is |tokens(answer) ∩ tokens(context)| / |tokens(answer)|,
// clamped to [0,1].
func overlapRatio(answer, contextText string) float64 {
	answerTokens := tokenSet(answer)
	if len(answerTokens) == 0 {
		return 0
	}
	contextTokens := tokenSet(contextText)

	matched := 0
	for t := range answerTokens {
		if contextTokens[t] {
			matched++
		}
	}
	return clamp(float64(matched) / float64(len(answerTokens)))
}

func tokenSet(text string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()")
		if tok != "" {
			out[tok] = true
		}
	}
	return out
}

func mentionsCitation(answer string) bool {
	lower := strings.ToLower(answer)
	return strings.Contains(lower, "source:") || strings.Contains(lower, "page")
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
