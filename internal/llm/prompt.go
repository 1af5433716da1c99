package llm

import (
	"strings"
)

// ClientPlaceholder replaces any client-identifying name in generated notes.
const ClientPlaceholder = "[CLIENT]"

// SectionHeaders are the four required report sections, in order.
var SectionHeaders = []string{"Subjective", "Objective", "Assessment", "Plan"}

// BuildSystemPrompt composes the fixed instruction template: SOAP structure,
// anonymization of client names, and the role label for the professional.
func BuildSystemPrompt() string {
	parts := []string{
		"You are a clinical documentation assistant for a psychotherapy practice.",
		"From the session transcription you are given, write a session report in SOAP format.",
		"The report MUST contain exactly four sections in this order, each starting with its header on its own line: " + strings.Join(SectionHeaders, ", ") + ".",
		"Replace every client-identifying name with the placeholder " + ClientPlaceholder + ".",
		"Refer to the treating professional only as \"the therapist\", never by name or title.",
		"Write complete sentences in a professional clinical register, past tense.",
		"Do not add clinical facts that the transcription does not support.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the transcription for the model.
func BuildUserPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString("Generate a session report based on the following transcription:\n\n")
	b.WriteString(strings.TrimSpace(transcript))
	return b.String()
}
