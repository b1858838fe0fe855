package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLForSeries(t *testing.T) {
	e, ok := ByID("bbr3")
	require.True(t, ok)

	url := e.URLForSeries("6.12")
	assert.Contains(t, url, "/6.12/")
	assert.NotContains(t, url, "{series}")
	assert.Equal(t, "bbr3-6.12.patch", e.FilenameForSeries("6.12"))
}

func TestForSeries(t *testing.T) {
	for _, e := range ForSeries("6.10") {
		assert.True(t, e.SupportsSeries("6.10"), "entry %s", e.ID)
	}

	// Nothing in the catalog targets a made-up series.
	assert.Empty(t, ForSeries("9.99"))
}

func TestByIDMissing(t *testing.T) {
	_, ok := ByID("no-such-patch")
	assert.False(t, ok)
}

func TestEntriesWellFormed(t *testing.T) {
	seen := make(map[string]bool)
	for _, e := range All() {
		assert.False(t, seen[e.ID], "duplicate id %s", e.ID)
		seen[e.ID] = true

		assert.NotEmpty(t, e.Name, "entry %s", e.ID)
		assert.NotEmpty(t, e.SupportedSeries, "entry %s", e.ID)
		assert.True(t, strings.HasPrefix(e.URLTemplate, "https://"), "entry %s", e.ID)
		assert.True(t, strings.HasSuffix(e.FilenameTemplate, ".patch"), "entry %s", e.ID)
	}
}
