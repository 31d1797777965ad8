// Package llm builds completion requests and streams responses from an
// OpenRouter-compatible chat completion API.
package llm

import (
	"fmt"
	"time"

	"github.com/theBrainly/chatgpt-clone/internal/store"
)

// EstimateTokens approximates the token cost of text. GPT-family models run
// at roughly one token per four characters of English.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Window is a budget-trimmed slice of a conversation.
type Window struct {
	Messages      []store.Message
	MaxTokens     int
	CurrentTokens int
}

// BuildWindow trims messages to fit maxTokens, keeping the most recent ones.
// It walks newest to oldest, stops before the budget would overflow, and
// preserves chronological order in the result. A system message present in
// the input is prepended even when it fell outside the recency cut, as long
// as it still fits the budget.
func BuildWindow(messages []store.Message, maxTokens int) Window {
	currentTokens := 0
	var kept []store.Message

	for i := len(messages) - 1; i >= 0; i-- {
		messageTokens := EstimateTokens(messages[i].Content)
		if currentTokens+messageTokens > maxTokens {
			break
		}
		kept = append([]store.Message{messages[i]}, kept...)
		currentTokens += messageTokens
	}

	hasSystem := false
	for _, m := range kept {
		if m.Role == store.RoleSystem {
			hasSystem = true
			break
		}
	}
	if !hasSystem {
		for _, m := range messages {
			if m.Role != store.RoleSystem {
				continue
			}
			systemTokens := EstimateTokens(m.Content)
			if currentTokens+systemTokens <= maxTokens {
				kept = append([]store.Message{m}, kept...)
				currentTokens += systemTokens
			}
			break
		}
	}

	return Window{
		Messages:      kept,
		MaxTokens:     maxTokens,
		CurrentTokens: currentTokens,
	}
}

// SystemMessage assembles the leading system message from the assistant
// persona, the user's memory context, and the current date.
func SystemMessage(memoryContext string, now time.Time) store.Message {
	content := fmt.Sprintf(`You are ChatGPT, a large language model trained by OpenAI. Answer as concisely as possible.

%s

Current date: %s`, memoryContext, now.Format("1/2/2006"))

	return store.Message{
		ID:        "system",
		Role:      store.RoleSystem,
		Content:   content,
		Timestamp: now,
	}
}
