package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCombineStripsMarkupAndSkipsEmptyFields(t *testing.T) {
	t.Parallel()

	combined := Combine(
		"<p>Outbreak in <b>Chad</b></p>",
		"",
		"  plain text  ",
	)

	assert.Equal(t, "Outbreak in Chad plain text", combined)
}

func TestCombineAllEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Combine("", "   ", ""))
}

func TestStripMarkupPlainTextPassthrough(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no markup here", StripMarkup("no markup here"))
}

func TestStripMarkupDecodesEntities(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cases & deaths", StripMarkup("cases &amp; deaths"))
}
