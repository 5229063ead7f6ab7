package translation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	out string
	src string
	err error
}

func (s stubProvider) Translate(ctx context.Context, text, src, dst string) (string, string, error) {
	return s.out, s.src, s.err
}

func TestNeedsTranslationDetectsNonLatinScript(t *testing.T) {
	require.True(t, NeedsTranslation("你好，请问退款政策是什么"))
	require.False(t, NeedsTranslation("Quelle est la politique de remboursement é"))
	require.False(t, NeedsTranslation("what is the refund policy"))
}

func TestChainFallsBackToSecondaryProvider(t *testing.T) {
	chain := &Chain{Providers: []Provider{
		stubProvider{err: errors.New("primary down")},
		stubProvider{out: "refund policy", src: "fr"},
	}}
	out, detected := chain.Translate(context.Background(), "politique de remboursement", "", "en")
	require.Equal(t, "refund policy", out)
	require.Equal(t, "fr", detected)
}

func TestChainPassesThroughWhenAllProvidersFail(t *testing.T) {
	chain := &Chain{Providers: []Provider{
		stubProvider{err: errors.New("down")},
		stubProvider{err: errors.New("also down")},
	}}
	out, _ := chain.Translate(context.Background(), "original text", "", "en")
	require.Equal(t, "original text", out)
}

func TestLLMProviderReturnsGeneratedTranslation(t *testing.T) {
	p := NewLLMProvider(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "translated text", nil
	})
	out, _, err := p.Translate(context.Background(), "texte original", "fr", "en")
	require.NoError(t, err)
	require.Equal(t, "translated text", out)
}
