package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint computes a short hex digest over the index's observable
// state (document count, sum of chunk indices, latest modification time),
// per spec §6. It changes whenever any of the three inputs changes, which
// is the property the orchestrator's cache key depends on.
func Fingerprint(count int, chunkSum int64, latestModUnix int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%d:%d", count, chunkSum, latestModUnix)))
	return hex.EncodeToString(sum[:])[:16]
}

// FingerprintIndex derives the fingerprint straight from a VectorIndex by
// reading every document once. Intended for small/demo indexes; a
// production ingestion collaborator would track these fields
// incrementally instead of recomputing them on every call. Documents carry
// no modification time, so the latest-modification input is always 0 here:
// the result changes only when the document count or the sum of chunk
// indices changes, not when a chunk's content is replaced in place.
func FingerprintIndex(ctx context.Context, idx VectorIndex) (string, error) {
	docs, err := idx.Documents(ctx)
	if err != nil {
		return "", fmt.Errorf("fingerprint: list documents: %w", err)
	}

	var chunkSum int64
	var latestMod int64
	for _, d := range docs {
		chunkSum += int64(d.Metadata.ChunkIndex)
	}

	return Fingerprint(len(docs), chunkSum, latestMod), nil
}
