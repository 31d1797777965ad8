// Package memory maintains per-user key/value facts that get folded into
// the system message of every completion.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/theBrainly/chatgpt-clone/internal/store"
	"github.com/theBrainly/chatgpt-clone/internal/util"
)

// memoryStore is the slice of the data layer the service needs.
type memoryStore interface {
	UpsertMemory(ctx context.Context, m store.Memory) error
	ListMemories(ctx context.Context, userID string) ([]store.Memory, error)
	DeleteMemory(ctx context.Context, userID, key string) error
}

// Service manages user memories.
type Service struct {
	store memoryStore
}

func NewService(s memoryStore) *Service {
	return &Service{store: s}
}

// Store saves or overwrites a memory for the user. Key and value are
// required; context is optional color.
func (s *Service) Store(ctx context.Context, userID, key, value, memContext string) error {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return fmt.Errorf("memory key and value are required")
	}

	now := time.Now()
	return s.store.UpsertMemory(ctx, store.Memory{
		ID:        util.NewID("mem"),
		UserID:    userID,
		Key:       key,
		Value:     value,
		Context:   memContext,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// List returns all memories for the user.
func (s *Service) List(ctx context.Context, userID string) ([]store.Memory, error) {
	return s.store.ListMemories(ctx, userID)
}

// Delete removes a single memory by key.
func (s *Service) Delete(ctx context.Context, userID, key string) error {
	return s.store.DeleteMemory(ctx, userID, key)
}

// BuildContext renders the user's memories into the block embedded in the
// system message. Empty when the user has no memories.
func (s *Service) BuildContext(ctx context.Context, userID string) (string, error) {
	memories, err := s.store.ListMemories(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("list memories: %w", err)
	}
	return FormatContext(memories), nil
}

// FormatContext is the pure rendering half of BuildContext.
func FormatContext(memories []store.Memory) string {
	if len(memories) == 0 {
		return ""
	}

	parts := make([]string, 0, len(memories))
	for _, m := range memories {
		parts = append(parts, fmt.Sprintf("%s: %s (Context: %s)", m.Key, m.Value, m.Context))
	}
	return "User Memory Context:\n" + strings.Join(parts, "\n") + "\n\n"
}
