// Package orchestrator owns the pipeline state machine (spec §4.1):
// translation pre-step, cache lookup, the four agents in order, the
// bounded refinement loop, the artifact decision, and final Response
// assembly.
//
// The straight-line state-machine shape with a soft end-to-end deadline
// is grounded on the teacher's internal/orchestration.BaseOrchestrator
// request-handling loop; this orchestrator replaces the teacher's
// generic named-agent Runtime.Call dispatch with direct calls to the
// four concrete agent packages, since the pipeline's stage sequence is
// fixed rather than data-driven.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/docuqa-dev/docuqa/internal/errs"
	"github.com/docuqa-dev/docuqa/internal/observability"
	"github.com/docuqa-dev/docuqa/internal/reasoning"
	"github.com/docuqa-dev/docuqa/internal/retrieval"
	"github.com/docuqa-dev/docuqa/internal/understanding"
	"github.com/docuqa-dev/docuqa/internal/verification"
	"github.com/docuqa-dev/docuqa/pkg/cache"
	"github.com/docuqa-dev/docuqa/pkg/docuqa"
	"github.com/docuqa-dev/docuqa/pkg/markdown"
	obs "github.com/docuqa-dev/docuqa/pkg/observability"
	"github.com/docuqa-dev/docuqa/pkg/translation"
	"github.com/docuqa-dev/docuqa/pkg/vectorstore"
)

const (
	softDeadline   = 90 * time.Second
	maxRefinements = 2
	longQueryTokens = 10
	longQueryTopK   = 15
	shortQueryTopK  = 10
)

var casualRedirect = "Hi! I can answer questions grounded in the documents you've loaded. Ask me something about their content."

// artifactSignalWords are matched token-by-token (not as a contiguous
// phrase) against the query: "create a comprehensive report about X"
// must trigger an artifact on the word "report" alone, independent of
// what words surround it.
var artifactSignalWords = map[string]bool{
	"report":   true,
	"summary":  true,
	"analysis": true,
}

// artifactIntents are the intents understanding.classify actually emits
// ("comparison", "extraction", "numerical", "analytical", "factual",
// "research", "casual_greeting") that should produce an artifact on
// their own, independent of any signal word.
var artifactIntents = map[string]bool{
	"comparison": true,
	"extraction": true,
}

// Orchestrator wires the four agents and the ambient collaborators
// (cache, vector index, translation) into the full pipeline.
type Orchestrator struct {
	Understanding *understanding.Agent
	Retrieval     *retrieval.Agent
	Reasoning     *reasoning.Agent
	Verification  *verification.Agent

	Index      vectorstore.VectorIndex
	Cache      cache.Cache
	Translator *translation.Chain

	SoftDeadline   time.Duration // 0 defaults to 90s
	MaxRefinements int           // 0 defaults to 2
}

// Run executes the full pipeline for one query and returns the terminal
// Response. It never panics and never returns an error; every failure
// mode is represented inside the Response itself.
func (o *Orchestrator) Run(ctx context.Context, q docuqa.Query) docuqa.Response {
	start := time.Now()
	outcome := "error"
	defer func() { obs.RecordQuery(outcome, time.Since(start)) }()

	if strings.TrimSpace(q.Text) == "" {
		return failureResponse(docuqa.ErrEmptyQuery, "Please enter a question.")
	}

	ctx, span := observability.StartStageSpan(ctx, "query", q.Text)
	defer span.End()

	deadline := o.SoftDeadline
	if deadline == 0 {
		deadline = softDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ec := docuqa.NewExecutionContext(q)
	ec.Language = "en"
	if q.LanguageHint != "" {
		ec.Language = q.LanguageHint
	}

	if translation.NeedsTranslation(q.Text) && o.Translator != nil {
		translated, detected := o.Translator.Translate(ctx, q.Text, q.LanguageHint, "en")
		ec.UserQuery = translated
		if detected != "" {
			ec.Language = detected
		}
	}

	fingerprint, fpErr := o.fingerprint(ctx)
	var cacheKey string
	if fpErr == nil && o.Cache != nil {
		cacheKey = cache.Key(cache.Normalize(ec.UserQuery), fingerprint)
		resp, hit, err := o.Cache.Get(ctx, cacheKey)
		if err == nil {
			obs.RecordCacheLookup(hit)
		}
		if err == nil && hit {
			resp.FromCache = true
			outcome = "success"
			return resp
		}
	}

	if ctx.Err() != nil {
		return deadlineResponse(ec)
	}

	understandStart := time.Now()
	understood := o.Understanding.Execute(ctx, ec.UserQuery)
	obs.RecordStage("understanding", time.Since(understandStart))
	ec.Intent = understood.Intent
	ec.QueryType = understood.QueryType
	ec.Keywords = understood.Keywords
	ec.IsCasual = understood.IsCasual

	if ec.IsCasual {
		outcome = "success"
		return docuqa.Response{
			Success:      true,
			Answer:       casualRedirect,
			Confidence:   1,
			Verified:     true,
			Language:     ec.Language,
			FallbackUsed: docuqa.FallbackNone,
		}
	}

	ec.TopK = q.TopKOverride
	if ec.TopK <= 0 {
		ec.TopK = shortQueryTopK
		if len(strings.Fields(ec.UserQuery)) > longQueryTokens {
			ec.TopK = longQueryTopK
		}
	}

	if ctx.Err() != nil {
		return deadlineResponse(ec)
	}

	if o.Index != nil {
		if count, err := o.Index.Count(ctx); err == nil && count == 0 {
			outcome = "no_documents"
			return failureResponse(docuqa.ErrNoDocuments, "No documents have been loaded yet.")
		}
	}

	retrievalStart := time.Now()
	evidence, err := o.Retrieval.Execute(ctx, ec.UserQuery, ec.Keywords, ec.QueryType, ec.TopK)
	obs.RecordStage("retrieval", time.Since(retrievalStart))
	if err != nil {
		return failureResponseFrom(errs.New(docuqa.ErrInternal, "The document index could not be searched right now.", err))
	}
	ec.RetrievedDocs = evidence
	recordSourceMix(evidence)

	if len(evidence) == 0 {
		outcome = "no_evidence"
		return failureResponse(docuqa.ErrNoEvidence, "I couldn't find anything in the documents related to your question.")
	}

	if ctx.Err() != nil {
		return deadlineResponse(ec)
	}

	used := evidence
	reasoningStart := time.Now()
	draft := o.Reasoning.Execute(ctx, ec.UserQuery, ec.Keywords, used)
	obs.RecordStage("reasoning", time.Since(reasoningStart))
	ec.UsedEvidence = used
	ec.Answer = draft
	ec.FallbackUsed = draft.Fallback
	ec.Sources = draft.Citations
	ec.Images = draft.Images

	verificationStart := time.Now()
	verResult := o.Verification.Execute(ctx, ec.UserQuery, draft.Text, evidenceText(used))
	obs.RecordStage("verification", time.Since(verificationStart))
	ec.Confidence = verResult.Confidence
	ec.Verified = verResult.Verified

	for ec.Confidence < 0.7 && ec.RefinementCount < o.refinementCap() && len(evidence) > len(used) {
		ec.RefinementCount++
		widened := widen(evidence, len(used))
		draft = o.Reasoning.Execute(ctx, ec.UserQuery, ec.Keywords, widened)
		used = widened
		ec.UsedEvidence = used
		ec.Answer = draft
		ec.FallbackUsed = draft.Fallback
		ec.Sources = draft.Citations
		ec.Images = draft.Images

		verResult = o.Verification.Execute(ctx, ec.UserQuery, draft.Text, evidenceText(used))
		ec.Confidence = verResult.Confidence
		ec.Verified = verResult.Verified
	}

	obs.RecordFallbackLevel(string(draft.Fallback))
	obs.RecordVerificationConfidence(ec.Confidence)

	var artifact *docuqa.Artifact
	if wantsArtifact(ec) {
		artifact = buildArtifact(ec)
	}
	ec.Artifact = artifact

	resp := docuqa.Response{
		Success:      true,
		Answer:       draft.Text,
		Confidence:   ec.Confidence,
		Verified:     ec.Verified,
		Sources:      ec.Sources,
		Images:       ec.Images,
		Artifact:     artifact,
		Language:     ec.Language,
		FallbackUsed: ec.FallbackUsed,
	}

	if o.Cache != nil && cacheKey != "" && resp.Success && resp.Confidence >= 0.7 {
		_ = o.Cache.Put(ctx, cacheKey, resp)
	}

	outcome = "success"
	return resp
}

func recordSourceMix(evidence docuqa.EvidenceSet) {
	counts := make(map[string]int, 3)
	for _, e := range evidence {
		for _, s := range e.Sources {
			counts[string(s)]++
		}
	}
	for source, count := range counts {
		obs.RecordRetrievalSourceHits(source, count)
	}
}

func (o *Orchestrator) refinementCap() int {
	if o.MaxRefinements > 0 {
		return o.MaxRefinements
	}
	return maxRefinements
}

func (o *Orchestrator) fingerprint(ctx context.Context) (string, error) {
	if o.Index == nil {
		return "", nil
	}
	return vectorstore.FingerprintIndex(ctx, o.Index)
}

// widen re-slices the evidence set to include more entries than used,
// up to the full set, for the refinement loop.
func widen(evidence docuqa.EvidenceSet, currentSize int) docuqa.EvidenceSet {
	next := currentSize * 2
	if next <= currentSize {
		next = currentSize + 1
	}
	if next > len(evidence) {
		next = len(evidence)
	}
	return evidence[:next]
}

func evidenceText(evidence docuqa.EvidenceSet) string {
	var b strings.Builder
	for _, e := range evidence {
		b.WriteString(e.Document)
		b.WriteString(" ")
	}
	return b.String()
}

// wantsArtifact implements the artifact rule of spec §4.1.
func wantsArtifact(ec *docuqa.ExecutionContext) bool {
	if hasArtifactSignalWord(ec.UserQuery) {
		return true
	}
	if artifactIntents[ec.Intent] {
		return true
	}
	if ec.Answer != nil && len(ec.Answer.Text) > 1500 && hasStructuralFeatures(ec.Answer.Text) {
		return true
	}
	return false
}

// hasArtifactSignalWord reports whether any token of query is an artifact
// signal word, regardless of adjacent phrasing.
func hasArtifactSignalWord(query string) bool {
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		clean := strings.Trim(tok, ".,!?;:\"'()")
		if artifactSignalWords[clean] {
			return true
		}
	}
	return false
}

func hasStructuralFeatures(text string) bool {
	if strings.Contains(text, "#") || strings.Contains(text, "\n- ") || strings.Contains(text, "\n* ") {
		return true
	}
	return strings.Contains(text, "|") && strings.Count(text, "|") > 3
}

func buildArtifact(ec *docuqa.ExecutionContext) *docuqa.Artifact {
	artifactType := docuqa.ArtifactReport
	if ec.Intent == "data_extraction" || ec.QueryType == docuqa.QueryExtraction {
		artifactType = docuqa.ArtifactData
	}

	title := "Answer"
	if ec.Answer != nil {
		title = firstLine(ec.Answer.Text)
	}

	body := ""
	if ec.Answer != nil {
		body = ec.Answer.Text
	}

	html, err := markdown.RenderArtifact(title, ec.OriginalQuery, body)
	if err != nil {
		html = body
	}

	return &docuqa.Artifact{Title: title, Type: artifactType, Content: html}
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimPrefix(text, "# ")
	if len(text) > 80 {
		text = text[:80]
	}
	return text
}

func failureResponse(kind docuqa.ErrorKind, message string) docuqa.Response {
	return docuqa.Response{Success: false, Error: errs.New(kind, message, nil)}
}

func failureResponseFrom(e *docuqa.ResponseError) docuqa.Response {
	return docuqa.Response{Success: false, Error: e}
}

func deadlineResponse(ec *docuqa.ExecutionContext) docuqa.Response {
	return docuqa.Response{
		Success: false,
		Error:   errs.New(docuqa.ErrInternal, "This question took too long to answer; please try again.", nil),
		Sources: ec.Sources,
		Images:  ec.Images,
	}
}
