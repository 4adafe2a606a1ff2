package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_LineEndings(t *testing.T) {
	assert.Equal(t, "a\nb\nc", Normalize("a\r\nb\rc"))
}

func TestNormalize_CollapsesHorizontalWhitespace(t *testing.T) {
	assert.Equal(t, "john smith", Normalize("john \t  smith"))
	assert.Equal(t, "a b", Normalize("a  b"))
}

func TestNormalize_TrimsLineEnds(t *testing.T) {
	assert.Equal(t, "name\nemail", Normalize("  name  \n\temail\t"))
}

func TestNormalize_PreservesBlankLines(t *testing.T) {
	// The CV parser scans line by line, so structure must survive.
	assert.Equal(t, "a\n\nb", Normalize("a\n   \nb"))
}

func TestNormalize_Empty(t *testing.T) {
	assert.Equal(t, "", Normalize(""))
}
