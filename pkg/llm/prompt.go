// Package llm formats prompts per model family and dispatches generation
// to a remote HTTP endpoint or any in-process runner implementing
// Generator.
package llm

import (
	"fmt"
	"time"
)

// Family selects the prompt template. The literal tokens must match the
// family's tokenizer conventions.
type Family string

const (
	FamilyLlama   Family = "llama"
	FamilyMistral Family = "mistral"
	FamilyQwen    Family = "qwen"
)

// Prompt renders a system+user turn in the family's chat template.
func Prompt(family Family, system, user string) (string, error) {
	switch family {
	case FamilyLlama:
		return "<s>[INST] <<SYS>>\n" + system + "\n<</SYS>>\n\n" + user + " [/INST]", nil
	case FamilyMistral:
		return "<s>[INST] " + system + "\n\nQUESTION: " + user + " [/INST]", nil
	case FamilyQwen:
		return "<|im_start|>system\n" + system + "<|im_end|>\n" +
			"<|im_start|>user\n" + user + "<|im_end|>\n" +
			"<|im_start|>assistant\n", nil
	default:
		return "", fmt.Errorf("llm: unknown model family %q", family)
	}
}

// SystemPrompt builds the retrieval-grounded system prompt: answer from
// the context only, admit ignorance, interpret ISO dates, prefer the most
// current information.
func SystemPrompt(contextText string, today time.Time) string {
	return "You are answering questions for a given context. " +
		"Answer based on information from the given context only, but do not mention the context in your response. " +
		"If the answer is not in the context say that you do not know the answer. " +
		"Only give the answer, do not provide any further explanations. " +
		"Do not mention the context. " +
		"Dates and timespans will be presented to you in YYYY-MM-DD format. Interpret those. " +
		"For reference, today is the " + today.Format("2006-01-02") + ". " +
		"Respond with the most current information unless requested otherwise.\n" +
		"\nCONTEXT:\n" + contextText
}

// PlainSystemPrompt is used when no context is supplied.
const PlainSystemPrompt = "You are a helpful assistant."
