package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/theBrainly/chatgpt-clone/internal/access"
	"github.com/theBrainly/chatgpt-clone/internal/events"
	"github.com/theBrainly/chatgpt-clone/internal/llm"
	"github.com/theBrainly/chatgpt-clone/internal/store"
)

// FallbackAssistantMessage replaces a failed turn's placeholder content.
const FallbackAssistantMessage = "Sorry, I encountered an error. Please try again."

// TurnResult is the outcome of one assistant turn.
type TurnResult struct {
	// Message is the finalized assistant message; nil when the turn was
	// aborted or no turn ran.
	Message *store.Message
	Aborted bool
	Failed  bool
}

// acquireTurn claims the chat's single in-flight turn slot. The second
// concurrent sender is rejected, not queued.
func (s *Service) acquireTurn(chatID string, cancel context.CancelFunc) error {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	if _, inFlight := s.turns[chatID]; inFlight {
		return errConflict("A response is already being generated for this chat")
	}
	s.turns[chatID] = cancel
	return nil
}

func (s *Service) releaseTurn(chatID string) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	delete(s.turns, chatID)
}

// StopGeneration cancels the chat's in-flight turn, if any. Stopping a chat
// with nothing in flight is a no-op, not an error.
func (s *Service) StopGeneration(ctx context.Context, actor Actor, chatID string) (bool, error) {
	chat, err := s.loadChat(ctx, chatID, actor.ID)
	if err != nil {
		return false, err
	}
	if !access.CanWrite(&chat, actor.ID) {
		return false, errForbidden("You do not have edit access to this chat")
	}

	s.turnMu.Lock()
	cancel, inFlight := s.turns[chatID]
	s.turnMu.Unlock()
	if !inFlight {
		return false, nil
	}
	cancel()
	return true, nil
}

// SendMessage appends the actor's message, derives a title on the chat's
// first user message, and runs one streamed assistant turn. The user
// message is persisted before the provider is contacted, so it survives
// aborts and failures.
func (s *Service) SendMessage(ctx context.Context, actor Actor, chatID, content string, attachments []store.Attachment, model string, onDelta func(string) error) (TurnResult, error) {
	chat, err := s.loadChat(ctx, chatID, actor.ID)
	if err != nil {
		return TurnResult{}, err
	}
	if !access.CanWrite(&chat, actor.ID) {
		return TurnResult{}, errForbidden("You do not have edit access to this chat")
	}
	content = strings.TrimSpace(content)
	if content == "" && len(attachments) == 0 {
		return TurnResult{}, errValidation("Message content or attachments are required")
	}

	turnCtx, cancel := context.WithTimeout(ctx, s.cfg.StreamTimeout)
	defer cancel()
	if err := s.acquireTurn(chatID, cancel); err != nil {
		return TurnResult{}, err
	}
	defer s.releaseTurn(chatID)

	userMsg := store.Message{
		ID:          uuid.NewString(),
		Role:        store.RoleUser,
		Content:     content,
		Timestamp:   time.Now(),
		Attachments: attachments,
		AuthorID:    actor.ID,
		AuthorName:  actor.Name,
	}
	messages := append(append([]store.Message{}, chat.Messages...), userMsg)

	var title *string
	if firstUserMessage(chat.Messages) {
		derived := DeriveTitle(content)
		title = &derived
	}
	if _, err := s.store.UpdateChat(ctx, chatID, title, messages); err != nil {
		return TurnResult{}, fmt.Errorf("persist user message: %w", err)
	}

	return s.runTurn(turnCtx, actor, chatID, messages, model, onDelta)
}

// EditMessage replaces the target message's content and truncates
// everything after it. Editing a user message re-runs the turn on the new
// content; editing an assistant message just persists.
func (s *Service) EditMessage(ctx context.Context, actor Actor, chatID, messageID, newContent, model string, onDelta func(string) error) (TurnResult, error) {
	chat, err := s.loadChat(ctx, chatID, actor.ID)
	if err != nil {
		return TurnResult{}, err
	}
	if !access.CanWrite(&chat, actor.ID) {
		return TurnResult{}, errForbidden("You do not have edit access to this chat")
	}
	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return TurnResult{}, errValidation("Message content is required")
	}

	idx := -1
	for i, m := range chat.Messages {
		if m.ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return TurnResult{}, errNotFound("Message not found")
	}

	edited := chat.Messages[idx]
	edited.Content = newContent
	messages := append(append([]store.Message{}, chat.Messages[:idx]...), edited)

	if edited.Role != store.RoleUser {
		if _, err := s.store.UpdateChat(ctx, chatID, nil, messages); err != nil {
			return TurnResult{}, fmt.Errorf("persist edit: %w", err)
		}
		return TurnResult{}, nil
	}

	turnCtx, cancel := context.WithTimeout(ctx, s.cfg.StreamTimeout)
	defer cancel()
	if err := s.acquireTurn(chatID, cancel); err != nil {
		return TurnResult{}, err
	}
	defer s.releaseTurn(chatID)

	if _, err := s.store.UpdateChat(ctx, chatID, nil, messages); err != nil {
		return TurnResult{}, fmt.Errorf("persist edit: %w", err)
	}

	return s.runTurn(turnCtx, actor, chatID, messages, model, onDelta)
}

// DeleteMessage removes one message in place. No cascade: later messages
// stay untouched.
func (s *Service) DeleteMessage(ctx context.Context, actor Actor, chatID, messageID string) error {
	chat, err := s.loadChat(ctx, chatID, actor.ID)
	if err != nil {
		return err
	}
	if !access.CanWrite(&chat, actor.ID) {
		return errForbidden("You do not have edit access to this chat")
	}

	messages := make([]store.Message, 0, len(chat.Messages))
	found := false
	for _, m := range chat.Messages {
		if m.ID == messageID {
			found = true
			continue
		}
		messages = append(messages, m)
	}
	if !found {
		return errNotFound("Message not found")
	}

	if _, err := s.store.UpdateChat(ctx, chatID, nil, messages); err != nil {
		return fmt.Errorf("persist delete: %w", err)
	}
	return nil
}

// Regenerate discards assistant messages trailing the last user message and
// re-runs that user message as a fresh turn.
func (s *Service) Regenerate(ctx context.Context, actor Actor, chatID, model string, onDelta func(string) error) (TurnResult, error) {
	chat, err := s.loadChat(ctx, chatID, actor.ID)
	if err != nil {
		return TurnResult{}, err
	}
	if !access.CanWrite(&chat, actor.ID) {
		return TurnResult{}, errForbidden("You do not have edit access to this chat")
	}

	lastUser := -1
	for i := len(chat.Messages) - 1; i >= 0; i-- {
		if chat.Messages[i].Role == store.RoleUser {
			lastUser = i
			break
		}
	}
	if lastUser < 0 {
		return TurnResult{}, errValidation("Nothing to regenerate")
	}

	turnCtx, cancel := context.WithTimeout(ctx, s.cfg.StreamTimeout)
	defer cancel()
	if err := s.acquireTurn(chatID, cancel); err != nil {
		return TurnResult{}, err
	}
	defer s.releaseTurn(chatID)

	messages := append([]store.Message{}, chat.Messages[:lastUser+1]...)
	if len(messages) != len(chat.Messages) {
		if _, err := s.store.UpdateChat(ctx, chatID, nil, messages); err != nil {
			return TurnResult{}, fmt.Errorf("persist truncation: %w", err)
		}
	}

	return s.runTurn(turnCtx, actor, chatID, messages, model, onDelta)
}

// runTurn streams one assistant completion onto messages, which must
// already end with the triggering user message and be persisted. The
// caller holds the turn slot.
func (s *Service) runTurn(ctx context.Context, actor Actor, chatID string, messages []store.Message, model string, onDelta func(string) error) (TurnResult, error) {
	if model == "" {
		model = s.cfg.DefaultModel
	}

	memoryContext := ""
	if s.memory != nil {
		if mc, err := s.memory.BuildContext(ctx, actor.ID); err == nil {
			memoryContext = mc
		} else {
			log.Printf("turn %s: memory context unavailable: %v", chatID, err)
		}
	}

	system := llm.SystemMessage(memoryContext, time.Now())
	window := llm.BuildWindow(append([]store.Message{system}, messages...), s.cfg.MaxContextTokens)

	prompt := make([]llm.ChatMessage, 0, len(window.Messages))
	for _, m := range window.Messages {
		prompt = append(prompt, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}

	placeholder := store.Message{
		ID:          uuid.NewString(),
		Role:        store.RoleAssistant,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}

	var content strings.Builder
	streamErr := s.llm.StreamCompletion(ctx, model, prompt, func(delta string) error {
		content.WriteString(delta)
		if onDelta != nil {
			return onDelta(delta)
		}
		return nil
	})

	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			// Clean rollback: the persisted list already equals pre-turn
			// plus the user message, so nothing to write.
			return TurnResult{Aborted: true}, nil
		}

		placeholder.Content = FallbackAssistantMessage
		placeholder.IsStreaming = false
		failed := append(append([]store.Message{}, messages...), placeholder)
		if _, err := s.store.UpdateChat(context.WithoutCancel(ctx), chatID, nil, failed); err != nil {
			log.Printf("turn %s: persist fallback: %v", chatID, err)
		}
		return TurnResult{Message: &placeholder, Failed: true}, errUpstream("The assistant failed to respond")
	}

	placeholder.Content = content.String()
	placeholder.IsStreaming = false
	final := append(append([]store.Message{}, messages...), placeholder)
	if _, err := s.store.UpdateChat(context.WithoutCancel(ctx), chatID, nil, final); err != nil {
		return TurnResult{}, fmt.Errorf("persist assistant message: %w", err)
	}

	if chat, err := s.store.GetChat(context.WithoutCancel(ctx), chatID); err == nil {
		s.indexChat(chat)
	}
	s.publish(events.KeyTurnFinalized, map[string]any{
		"chatId":    chatID,
		"messageId": placeholder.ID,
		"model":     model,
	})

	return TurnResult{Message: &placeholder}, nil
}

func firstUserMessage(existing []store.Message) bool {
	for _, m := range existing {
		if m.Role == store.RoleUser {
			return false
		}
	}
	return true
}
