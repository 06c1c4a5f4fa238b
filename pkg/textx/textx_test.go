package textx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hello world", SanitizeText("  hello world  "))
	assert.Equal(t, "a\nb\tc", SanitizeText("a\nb\tc"))
	assert.Equal(t, "ab", SanitizeText("a\x00\x01b"))
	assert.Equal(t, "résumé", SanitizeText("résumé"))
	assert.Empty(t, SanitizeText("\x00\x1f"))
}

func TestCollapseSpaces(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a b c", CollapseSpaces("  a \n\n b\t c "))
	assert.Empty(t, CollapseSpaces("   "))
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab…", Truncate("abcdef", 2))
	assert.Empty(t, Truncate("abc", 0))
	// Rune-aligned, never mid-character.
	assert.Equal(t, "ré…", Truncate("résumé", 2))
}
