// Package llm defines the provider-neutral contract between the relay and a
// hosted language model that keeps conversation state server side.
package llm

import (
	"context"
	"time"
)

// Reasoning effort hints understood by reasoning models.
const (
	ReasoningMinimal = "minimal"
	ReasoningLow     = "low"
	ReasoningMedium  = "medium"
	ReasoningHigh    = "high"
)

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type Result struct {
	Text       string
	ResponseID string
	Usage      Usage
	Duration   time.Duration
}

type Request struct {
	Model string
	Input string
	// ConversationID attaches the turn to a server-side conversation created
	// by CreateConversation. Empty sends a standalone turn.
	ConversationID  string
	MaxOutputTokens int
	ReasoningEffort string
	// WebSearch declares the hosted web search tool; the model decides
	// whether to call it.
	WebSearch bool
}

type Client interface {
	// CreateConversation opens a conversation seeded with the system
	// instruction and returns its handle.
	CreateConversation(ctx context.Context, systemInstruction string) (string, error)
	Respond(ctx context.Context, req Request) (Result, error)
}

// ValidReasoningEffort reports whether s is empty or a known effort hint.
func ValidReasoningEffort(s string) bool {
	switch s {
	case "", ReasoningMinimal, ReasoningLow, ReasoningMedium, ReasoningHigh:
		return true
	default:
		return false
	}
}
