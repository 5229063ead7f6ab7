package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuqa-dev/docuqa/pkg/docuqa"
)

func TestNormalizeCollapsesWhitespaceAndCase(t *testing.T) {
	require.Equal(t, "refund policy", Normalize("  Refund   Policy  "))
}

func TestKeyIsDeterministicAndFingerprintSensitive(t *testing.T) {
	k1 := Key("refund policy", "fp-a")
	k2 := Key("refund policy", "fp-a")
	k3 := Key("refund policy", "fp-b")
	require.Equal(t, k1, k2)
	require.NotEqual(t, k1, k3)
}

func TestInMemoryCacheRoundTrip(t *testing.T) {
	c := NewInMemory()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	resp := docuqa.Response{Success: true, Answer: "30 days", Confidence: 0.9}
	require.NoError(t, c.Put(ctx, "k1", resp))

	got, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, resp.Answer, got.Answer)
}

func TestSQLiteCacheRoundTrip(t *testing.T) {
	c, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	resp := docuqa.Response{Success: true, Answer: "30 days", Confidence: 0.85, Verified: true}
	require.NoError(t, c.Put(ctx, "k1", resp))

	got, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, resp.Answer, got.Answer)
	require.Equal(t, resp.Verified, got.Verified)

	updated := resp
	updated.Answer = "updated answer"
	require.NoError(t, c.Put(ctx, "k1", updated))

	got2, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "updated answer", got2.Answer)
}
