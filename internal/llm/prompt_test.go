package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSystemPrompt(t *testing.T) {
	sys := BuildSystemPrompt()

	for _, header := range SectionHeaders {
		assert.Contains(t, sys, header)
	}
	assert.Contains(t, sys, ClientPlaceholder)
	assert.Contains(t, sys, "the therapist")
	// Section order must be stated explicitly.
	assert.Less(t, strings.Index(sys, "Subjective"), strings.Index(sys, "Plan"))
}

func TestBuildUserPrompt(t *testing.T) {
	p := BuildUserPrompt("  we talked about sleep hygiene  ")

	assert.True(t, strings.HasSuffix(p, "we talked about sleep hygiene"))
	assert.Contains(t, p, "transcription:")
}
