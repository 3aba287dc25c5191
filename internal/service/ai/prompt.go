package ai

import (
	"fmt"
	"strings"

	"github.com/objectionlab/voicecall/backend/internal/model/persona"
)

// PromptBuilder turns a persona into the system prompt that primes a call.
type PromptBuilder struct{}

// NewPromptBuilder creates a prompt builder.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildSystemPrompt returns the persona's own prompt, or a basic one derived
// from its profile when the catalogue entry has none.
func (pb *PromptBuilder) BuildSystemPrompt(p *persona.Persona) string {
	if p == nil {
		return ""
	}
	if prompt := strings.TrimSpace(p.Prompt); prompt != "" {
		return prompt
	}
	if strings.TrimSpace(p.Name) == "" {
		return ""
	}
	return pb.buildBasicSystemPrompt(p)
}

func (pb *PromptBuilder) buildBasicSystemPrompt(p *persona.Persona) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("You are '%s'", p.Name))
	if p.Title != "" {
		builder.WriteString(", ")
		builder.WriteString(p.Title)
	}
	builder.WriteString(". You are on a sales call and the other person is pitching you.")
	if p.Tone != "" {
		builder.WriteString(fmt.Sprintf(" Your tone is %s.", p.Tone))
	}
	if p.Description != "" {
		builder.WriteString(" ")
		builder.WriteString(p.Description)
	}
	builder.WriteString(" Sound like a real person thinking out loud, not like a chatbot. Answer only what you are asked and raise objections gradually.")
	if p.OpeningLine != "" {
		builder.WriteString(fmt.Sprintf(" Open the call with something like: %q", p.OpeningLine))
	}
	builder.WriteString(" After 6–8 messages, wrap up with a realistic decision.")
	return builder.String()
}
