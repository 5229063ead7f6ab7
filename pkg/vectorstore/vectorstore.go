// Package vectorstore defines the vector index collaborator contract
// (spec §6): the Hybrid Retrieval Agent's dense sub-search reads through
// this interface, and nothing in the query path may write to it — writes
// are the document-ingestion collaborator's job, explicitly out of scope.
//
// Types and validation are adapted from the teacher's
// pkg/vectorstore/vectorstore.go (NaN/Inf checks, path-traversal-safe
// document IDs); the interface itself is narrowed from the teacher's
// Upsert/Search/Delete/Get/Close surface to the four read-mostly
// operations spec §6 names, and the metadata field is typed to spec's
// fixed chunk schema instead of the teacher's open map[string]interface{}.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/docuqa-dev/docuqa/pkg/docuqa"
)

// VectorIndex is the read path the orchestrator's retrieval stage depends
// on. Concurrent readers are always safe; writes belong to the ingestion
// collaborator and are not part of this contract.
type VectorIndex interface {
	// Search returns the k nearest neighbours of embedding.
	Search(ctx context.Context, embedding []float32, k int) ([]Match, error)

	// Documents iterates every stored chunk, for the Hybrid Retrieval
	// Agent's lexical and section sub-searches.
	Documents(ctx context.Context) ([]Document, error)

	// Count reports how many chunks are indexed.
	Count(ctx context.Context) (int, error)

	// DeleteByFileHash removes every chunk belonging to a given source
	// file, identified by its content hash.
	DeleteByFileHash(ctx context.Context, hash string) (bool, error)
}

// Document is one indexed chunk with its embedding and metadata.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  docuqa.ChunkMetadata
}

// Match is one Search result: a document plus its similarity to the
// query embedding.
type Match struct {
	Document   Document
	Similarity float32 // [0,1], higher is more similar
}

// ValidateDocument checks a document is safe and well-formed before
// storage, mirroring the teacher's NaN/Inf and ID-injection checks.
func ValidateDocument(doc *Document) error {
	if err := ValidateDocumentID(doc.ID); err != nil {
		return fmt.Errorf("invalid document ID: %w", err)
	}
	if doc.Content == "" {
		return fmt.Errorf("document content cannot be empty")
	}
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("document embedding cannot be empty")
	}
	for i, val := range doc.Embedding {
		if isNaN(val) || isInf(val) {
			return fmt.Errorf("embedding contains invalid value at index %d: %f", i, val)
		}
	}
	return nil
}

// ValidateDocumentID prevents path-traversal and control-character
// injection via a document ID.
func ValidateDocumentID(id string) error {
	if id == "" {
		return fmt.Errorf("document ID cannot be empty")
	}
	if len(id) > 512 {
		return fmt.Errorf("document ID too long: maximum 512 characters, got %d", len(id))
	}
	if id == "." || id == ".." {
		return fmt.Errorf("document ID cannot be '.' or '..'")
	}
	for i, r := range id {
		if r < 0x20 || r == 0x7F {
			return fmt.Errorf("document ID contains control character at position %d", i)
		}
		if r == '/' || r == '\\' || r == 0 {
			return fmt.Errorf("document ID contains a path separator or null byte at position %d", i)
		}
	}
	return nil
}

func isNaN(f float32) bool { return f != f }

func isInf(f float32) bool { return f > maxFloat32 || f < -maxFloat32 }

const maxFloat32 = 3.40282346638528859811704183484516925440e+38
