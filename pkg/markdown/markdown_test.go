package markdown

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToHTMLRendersHeaderAndList(t *testing.T) {
	out, err := ToHTML("# Title\n\n- one\n- two\n")
	require.NoError(t, err)
	require.Contains(t, out, "<h1>Title</h1>")
	require.Contains(t, out, "<li>one</li>")
}

func TestRenderArtifactWrapsInShellWithSubtitle(t *testing.T) {
	out, err := RenderArtifact("Quarterly Report", "generate a report on Q3 revenue", "# Revenue\n\nUp 12%.")
	require.NoError(t, err)
	require.Contains(t, out, "<h1>Quarterly Report</h1>")
	require.Contains(t, out, "generate a report on Q3 revenue")
	require.Contains(t, out, "<h1>Revenue</h1>")
}

func TestToHTMLEscapesNothingUnexpected(t *testing.T) {
	out, err := ToHTML("plain paragraph")
	require.NoError(t, err)
	require.Contains(t, out, "<p>plain paragraph</p>")
}
