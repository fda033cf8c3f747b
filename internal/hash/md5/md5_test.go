package md5

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNameIsDeterministic(t *testing.T) {
	t.Parallel()

	n := New()
	url := "http://example.com/a.pdf"
	first := n.Name(url)
	for range 10 {
		require.Equal(t, first, n.Name(url))
	}
	require.Len(t, first, 32)
}

func TestNameDistinguishesURLs(t *testing.T) {
	t.Parallel()

	n := New()
	require.NotEqual(t, n.Name("http://example.com/a.pdf"), n.Name("http://example.com/b.pdf"))
}

func TestNameMatchesKnownDigest(t *testing.T) {
	t.Parallel()

	// md5("http://example.com/a.pdf")
	require.Equal(t, "bcbb2952507baa4f2090e2df9bc63733", New().Name("http://example.com/a.pdf"))
}
