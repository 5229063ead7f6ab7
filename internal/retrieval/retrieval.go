// Package retrieval implements the Hybrid Retrieval Agent (spec §4.3):
// three independent sub-searches fused into one ranked evidence set.
//
// The concurrent sub-search pattern (goroutines feeding result channels,
// collected after all finish) is adapted from the teacher's
// internal/orchestration/rag.go hybridRetrieve; the fusion arithmetic and
// table-boost rule are new, spec-shaped logic with no teacher analogue.
package retrieval

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docuqa-dev/docuqa/internal/understanding"
	"github.com/docuqa-dev/docuqa/pkg/docuqa"
	"github.com/docuqa-dev/docuqa/pkg/embeddings"
	"github.com/docuqa-dev/docuqa/pkg/vectorstore"
)

// subSearchTimeout bounds each of the three sub-searches independently.
const subSearchTimeout = 10 * time.Second

const (
	weightVector  = 0.6
	weightKeyword = 0.3
	weightSection = 0.1
	tableBoost    = 1.5
)

// Agent runs the three sub-searches and fuses their results.
type Agent struct {
	Index     vectorstore.VectorIndex
	Embedder  embeddings.EmbeddingService
	CandidateMultiplier int // how many candidates each sub-search pulls before fusion; 0 defaults to 4
}

type subResult struct {
	source docuqa.SearchSource
	hits   []scoredDoc
	err    error
}

type scoredDoc struct {
	doc   vectorstore.Document
	score float64
}

// Execute runs the three sub-searches concurrently, fuses their scores,
// applies the table boost, dedups, and truncates to topK. An empty index
// yields an empty EvidenceSet, never an error; Execute only fails if every
// sub-search fails.
func (a *Agent) Execute(ctx context.Context, query string, keywords []string, qType docuqa.QueryType, topK int) (docuqa.EvidenceSet, error) {
	count, err := a.Index.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return docuqa.EvidenceSet{}, nil
	}

	candidates := a.CandidateMultiplier
	if candidates <= 0 {
		candidates = 4
	}
	pullSize := topK * candidates
	if pullSize <= 0 {
		pullSize = topK
	}

	resultCh := make(chan subResult, 3)

	go func() { resultCh <- a.denseSearch(ctx, query, pullSize) }()
	go func() { resultCh <- a.lexicalSearch(ctx, keywords, pullSize) }()
	go func() { resultCh <- a.sectionSearch(ctx, keywords, pullSize) }()

	results := make(map[docuqa.SearchSource]subResult, 3)
	for i := 0; i < 3; i++ {
		r := <-resultCh
		results[r.source] = r
	}

	if results[docuqa.SourceVector].err != nil &&
		results[docuqa.SourceKeyword].err != nil &&
		results[docuqa.SourceSection].err != nil {
		return nil, results[docuqa.SourceVector].err
	}

	fused := fuse(results, boostsTable(qType, keywords))
	sort.Slice(fused, func(i, j int) bool { return rankLess(fused[i], fused[j]) })

	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

func (a *Agent) denseSearch(ctx context.Context, query string, k int) subResult {
	ctx, cancel := context.WithTimeout(ctx, subSearchTimeout)
	defer cancel()

	embedding, err := a.Embedder.Embed(ctx, query)
	if err != nil {
		return subResult{source: docuqa.SourceVector, err: err}
	}
	matches, err := a.Index.Search(ctx, embedding, k)
	if err != nil {
		return subResult{source: docuqa.SourceVector, err: err}
	}
	hits := make([]scoredDoc, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, scoredDoc{doc: m.Document, score: float64(m.Similarity)})
	}
	return subResult{source: docuqa.SourceVector, hits: hits}
}

func (a *Agent) lexicalSearch(ctx context.Context, keywords []string, k int) subResult {
	ctx, cancel := context.WithTimeout(ctx, subSearchTimeout)
	defer cancel()

	docs, err := a.Index.Documents(ctx)
	if err != nil {
		return subResult{source: docuqa.SourceKeyword, err: err}
	}

	hits := make([]scoredDoc, 0, k)
	for _, d := range docs {
		score := keywordScore(d.Content, keywords)
		if score > 0 {
			hits = append(hits, scoredDoc{doc: d, score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return subResult{source: docuqa.SourceKeyword, hits: hits}
}

func (a *Agent) sectionSearch(ctx context.Context, keywords []string, k int) subResult {
	ctx, cancel := context.WithTimeout(ctx, subSearchTimeout)
	defer cancel()

	docs, err := a.Index.Documents(ctx)
	if err != nil {
		return subResult{source: docuqa.SourceSection, err: err}
	}

	hits := make([]scoredDoc, 0, k)
	for _, d := range docs {
		score := keywordScore(d.Metadata.Section, keywords)
		if score > 0 {
			hits = append(hits, scoredDoc{doc: d, score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return subResult{source: docuqa.SourceSection, hits: hits}
}

// keywordScore is (matched/total)*0.5 + 0.5 when at least one keyword
// matches, else 0 (spec §4.3).
func keywordScore(text string, keywords []string) float64 {
	if len(keywords) == 0 || text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	return (float64(matched)/float64(len(keywords)))*0.5 + 0.5
}

// boostsTable decides whether the table boost applies to this query.
func boostsTable(qType docuqa.QueryType, keywords []string) bool {
	if qType == docuqa.QueryNumerical || qType == docuqa.QueryExtraction {
		return true
	}
	for _, kw := range keywords {
		if understanding.HasUnitToken(kw) {
			return true
		}
	}
	return false
}

// fuse combines the three sub-searches' scores with weights renormalized
// over only the sub-searches that actually succeeded, applies the table
// boost, and dedups by (filename, page, chunk_index): duplicate hits within
// one sub-search count only once, at the higher of their scores, while
// source tags are unioned.
func fuse(results map[docuqa.SearchSource]subResult, boostTables bool) docuqa.EvidenceSet {
	weights := map[docuqa.SearchSource]float64{
		docuqa.SourceVector:  weightVector,
		docuqa.SourceKeyword: weightKeyword,
		docuqa.SourceSection: weightSection,
	}

	var totalWeight float64
	for source, w := range weights {
		if results[source].err == nil {
			totalWeight += w
		}
	}
	if totalWeight == 0 {
		return docuqa.EvidenceSet{}
	}

	type accum struct {
		doc         vectorstore.Document
		score       float64
		vectorScore float64
		sources     map[docuqa.SearchSource]bool
		perSource   map[docuqa.SearchSource]float64
	}
	byID := make(map[string]*accum)

	for source, w := range weights {
		r := results[source]
		if r.err != nil {
			continue
		}
		normW := w / totalWeight
		for _, hit := range r.hits {
			id := chunkID(toMetadata(hit.doc))
			entry, ok := byID[id]
			if !ok {
				entry = &accum{doc: hit.doc, sources: map[docuqa.SearchSource]bool{}, perSource: map[docuqa.SearchSource]float64{}}
				byID[id] = entry
			}
			prev, seen := entry.perSource[source]
			if seen && prev >= hit.score {
				continue
			}
			entry.score += (hit.score - prev) * normW
			entry.perSource[source] = hit.score
			entry.sources[source] = true
			if source == docuqa.SourceVector {
				entry.vectorScore = hit.score
			}
		}
	}

	out := make(docuqa.EvidenceSet, 0, len(byID))
	for _, entry := range byID {
		score := entry.score
		if boostTables && entry.doc.Metadata.Type == docuqa.ChunkTable {
			score *= tableBoost
			if score > 1 {
				score = 1
			}
		}
		sources := make([]docuqa.SearchSource, 0, len(entry.sources))
		for s := range entry.sources {
			sources = append(sources, s)
		}
		sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

		out = append(out, docuqa.SearchResult{
			Document:    entry.doc.Content,
			Metadata:    entry.doc.Metadata,
			Score:       score,
			Sources:     sources,
			VectorScore: entry.vectorScore,
		})
	}
	return out
}

// rankLess orders fused evidence by score descending, breaking ties
// first by raw vector similarity (descending) and finally by chunk id,
// per spec §4.3.
func rankLess(a, b docuqa.SearchResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.VectorScore != b.VectorScore {
		return a.VectorScore > b.VectorScore
	}
	return chunkID(a.Metadata) < chunkID(b.Metadata)
}

func toMetadata(d vectorstore.Document) docuqa.ChunkMetadata { return d.Metadata }

func chunkID(m docuqa.ChunkMetadata) string {
	return m.Filename + "|" + strconv.Itoa(m.Page) + "|" + strconv.Itoa(m.ChunkIndex)
}
