package verification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuqa-dev/docuqa/internal/llmclient"
)

func TestOverlapRatioFullMatch(t *testing.T) {
	ratio := overlapRatio("the refund window is 30 days", "the refund window is 30 days from purchase")
	require.Equal(t, 1.0, ratio)
}

func TestOverlapRatioNoMatch(t *testing.T) {
	ratio := overlapRatio("completely unrelated text here", "refund policy document content")
	require.Equal(t, 0.0, ratio)
}

func TestOverlapRatioEmptyAnswer(t *testing.T) {
	require.Equal(t, 0.0, overlapRatio("", "some context"))
}

func TestMentionsCitationDetectsSourceOrPage(t *testing.T) {
	require.True(t, mentionsCitation("See Source: policy.pdf"))
	require.True(t, mentionsCitation("Found on Page 3"))
	require.False(t, mentionsCitation("No citation mentioned at all"))
}

func TestParseScoreExtractsFirstNumber(t *testing.T) {
	score, err := parseScore("0.85")
	require.NoError(t, err)
	require.Equal(t, 0.85, score)
}

func TestParseScoreClampsOutOfRangeValues(t *testing.T) {
	score, err := parseScore("1.5")
	require.NoError(t, err)
	require.Equal(t, 1.0, score)
}

func TestParseScoreFailsWithNoNumber(t *testing.T) {
	_, err := parseScore("not a number")
	require.Error(t, err)
}

func TestClampBounds(t *testing.T) {
	require.Equal(t, 0.0, clamp(-1))
	require.Equal(t, 1.0, clamp(2))
	require.Equal(t, 0.5, clamp(0.5))
}

// TestExecuteReachesVerifiedTrueWithCompliantJudgeReply covers the
// happy path: a judge that follows the prompt's "give a number in [0,1]
// only" instruction replies with a bare score, well under the client's
// 20-character floor for ordinary prose. judge must still accept it so
// Verified/Confidence >= 0.7 is reachable (spec §8.1 scenario 2).
func TestExecuteReachesVerifiedTrueWithCompliantJudgeReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": "0.95"}`))
	}))
	defer srv.Close()

	llm := llmclient.New(llmclient.Config{BaseURL: srv.URL, MaxRetries: 0})
	a := &Agent{LLM: llm}

	answer := "The refund window is 30 days from the date of purchase. Source: policy.pdf Page 2."
	contextText := "The refund window is 30 days from the date of purchase per the policy document."

	out := a.Execute(context.Background(), "what is the refund window", answer, contextText)
	require.True(t, out.Verified)
	require.GreaterOrEqual(t, out.Confidence, 0.7)
}
