package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrimLower(t *testing.T) {
	t.Run("trims, lowercases and dedupes preserving order", func(t *testing.T) {
		got := DedupeAndTrimLower([]string{"  @Corp.COM ", "@co.com", "@corp.com", "", "  "})
		assert.Equal(t, []string{"@corp.com", "@co.com"}, got)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, DedupeAndTrimLower(nil))
	})
}
