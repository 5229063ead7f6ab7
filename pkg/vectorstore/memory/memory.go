// Package memory is an in-memory VectorIndex, the default backing store
// for tests and standalone/demo runs since the persistent vector index
// itself is out of this spec's scope (spec §1).
//
// The brute-force cosine-similarity search and mutex-guarded map are
// adapted from the teacher's pkg/vectorstore/memory (a much larger
// multi-collection, TTL-cleanup store); this version drops collections
// and TTL entirely since nothing in the document-QA pipeline needs them —
// a single flat index is what spec §6's contract describes.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/docuqa-dev/docuqa/pkg/vectorstore"
)

// Index is a thread-safe, brute-force in-memory VectorIndex.
type Index struct {
	mu   sync.RWMutex
	docs map[string]vectorstore.Document
}

// New builds an empty Index.
func New() *Index {
	return &Index{docs: make(map[string]vectorstore.Document)}
}

// Add inserts or replaces a document. Not part of the VectorIndex
// contract (writes belong to the ingestion collaborator) but needed to
// populate the index in tests and demo runs.
func (idx *Index) Add(doc vectorstore.Document) error {
	if err := vectorstore.ValidateDocument(&doc); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docs[doc.ID] = doc
	return nil
}

// Search returns the k nearest neighbours of embedding by cosine
// similarity.
func (idx *Index) Search(ctx context.Context, embedding []float32, k int) ([]vectorstore.Match, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matches := make([]vectorstore.Match, 0, len(idx.docs))
	for _, d := range idx.docs {
		sim := cosineSimilarity(embedding, d.Embedding)
		matches = append(matches, vectorstore.Match{Document: d, Similarity: sim})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Document.ID < matches[j].Document.ID
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Documents returns every stored chunk.
func (idx *Index) Documents(ctx context.Context) ([]vectorstore.Document, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]vectorstore.Document, 0, len(idx.docs))
	for _, d := range idx.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Count reports how many chunks are indexed.
func (idx *Index) Count(ctx context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs), nil
}

// DeleteByFileHash removes every chunk whose ID is prefixed with the
// given hash (the convention this in-memory index uses to group a source
// file's chunks; a real index would key this off stored file metadata).
func (idx *Index) DeleteByFileHash(ctx context.Context, hash string) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	deleted := false
	for id, d := range idx.docs {
		if len(id) >= len(hash) && id[:len(hash)] == hash {
			delete(idx.docs, id)
			_ = d
			deleted = true
		}
	}
	return deleted, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	return float32(sim)
}
