package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuqa-dev/docuqa/pkg/docuqa"
	"github.com/docuqa-dev/docuqa/pkg/vectorstore"
	"github.com/docuqa-dev/docuqa/pkg/vectorstore/memory"
)

type fakeEmbedder struct {
	vec []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}
func (f *fakeEmbedder) Dimensions() int   { return len(f.vec) }
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Close() error      { return nil }

func TestExecuteReturnsEmptyEvidenceOnEmptyIndex(t *testing.T) {
	idx := memory.New()
	a := &Agent{Index: idx, Embedder: &fakeEmbedder{vec: []float32{1, 0}}}

	evidence, err := a.Execute(context.Background(), "what is the refund policy", []string{"refund", "policy"}, docuqa.QueryFactual, 10)
	require.NoError(t, err)
	require.Empty(t, evidence)
}

func TestExecuteFusesAndDedups(t *testing.T) {
	idx := memory.New()
	require.NoError(t, idx.Add(toDoc("doc-1", "the refund policy allows returns within 30 days", 0, 0, "Policies", docuqa.ChunkText, []float32{1, 0})))
	require.NoError(t, idx.Add(toDoc("doc-2", "unrelated content about shipping", 1, 0, "Shipping", docuqa.ChunkText, []float32{0, 1})))

	a := &Agent{Index: idx, Embedder: &fakeEmbedder{vec: []float32{1, 0}}}
	evidence, err := a.Execute(context.Background(), "refund policy", []string{"refund", "policy"}, docuqa.QueryFactual, 10)
	require.NoError(t, err)
	require.NotEmpty(t, evidence)
	require.Equal(t, "a.pdf", evidence[0].Metadata.Filename)
	require.Greater(t, evidence[0].Score, evidence[len(evidence)-1].Score)
}

func TestExecuteAppliesTableBoostForNumericalQuery(t *testing.T) {
	idx := memory.New()
	require.NoError(t, idx.Add(toDoc("table-1", "revenue 42 percent", 0, 0, "Financials", docuqa.ChunkTable, []float32{1, 0})))
	require.NoError(t, idx.Add(toDoc("text-1", "revenue grew significantly this year percent", 0, 1, "Financials", docuqa.ChunkText, []float32{1, 0})))

	a := &Agent{Index: idx, Embedder: &fakeEmbedder{vec: []float32{1, 0}}}
	evidence, err := a.Execute(context.Background(), "what was the revenue percent", []string{"revenue", "percent"}, docuqa.QueryNumerical, 10)
	require.NoError(t, err)
	require.NotEmpty(t, evidence)
	require.Equal(t, docuqa.ChunkTable, evidence[0].Metadata.Type)
}

func TestRankLessBreaksScoreTiesByVectorScoreThenChunkID(t *testing.T) {
	lower := docuqa.SearchResult{Score: 0.5, VectorScore: 0.2, Metadata: docuqa.ChunkMetadata{Filename: "z.pdf"}}
	higher := docuqa.SearchResult{Score: 0.5, VectorScore: 0.8, Metadata: docuqa.ChunkMetadata{Filename: "a.pdf"}}
	require.True(t, rankLess(higher, lower))
	require.False(t, rankLess(lower, higher))

	tiedA := docuqa.SearchResult{Score: 0.5, VectorScore: 0.2, Metadata: docuqa.ChunkMetadata{Filename: "a.pdf"}}
	tiedB := docuqa.SearchResult{Score: 0.5, VectorScore: 0.2, Metadata: docuqa.ChunkMetadata{Filename: "b.pdf"}}
	require.True(t, rankLess(tiedA, tiedB))
	require.False(t, rankLess(tiedB, tiedA))
}

func toDoc(id, content string, page, chunkIdx int, section string, typ docuqa.ChunkType, embedding []float32) vectorstore.Document {
	return vectorstore.Document{
		ID: id, Content: content, Embedding: embedding,
		Metadata: docuqa.ChunkMetadata{Filename: "a.pdf", Page: page, ChunkIndex: chunkIdx, Section: section, Type: typ},
	}
}
