package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/theBrainly/chatgpt-clone/internal/llm"
	"github.com/theBrainly/chatgpt-clone/internal/store"
)

func chatWithMessages(messages ...store.Message) store.Chat {
	chat := testChat()
	chat.Messages = messages
	return chat
}

func userMsg(id, content string) store.Message {
	return store.Message{ID: id, Role: store.RoleUser, Content: content, AuthorID: owner.ID}
}

func assistantMsg(id, content string) store.Message {
	return store.Message{ID: id, Role: store.RoleAssistant, Content: content}
}

func TestSendMessageViewerDenied(t *testing.T) {
	chat := testChat()
	svc := newTestService(&fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
	})
	_, err := svc.SendMessage(context.Background(), viewer, chat.ID, "hi", nil, "", nil)
	wantDomainError(t, err, 403, "FORBIDDEN")
}

func TestSendMessageEmptyContent(t *testing.T) {
	chat := testChat()
	svc := newTestService(&fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
	})
	_, err := svc.SendMessage(context.Background(), owner, chat.ID, "   ", nil, "", nil)
	wantDomainError(t, err, 422, "VALIDATION_ERROR")
}

func TestSendMessagePersistsUserBeforeProvider(t *testing.T) {
	chat := testChat()
	var persisted [][]store.Message
	var persistedTitle *string
	st := &fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
		updateChatFn: func(_ context.Context, _ string, title *string, messages []store.Message) (bool, error) {
			if title != nil {
				persistedTitle = title
			}
			persisted = append(persisted, messages)
			return true, nil
		},
	}
	svc := newTestService(st)
	streamer := &fakeStreamer{
		streamFn: func(_ context.Context, _ string, prompt []llm.ChatMessage, onDelta func(string) error) error {
			// The user message must already be durable when the provider is
			// contacted.
			if len(persisted) != 1 {
				t.Errorf("user message not persisted before streaming: %d writes", len(persisted))
			}
			if prompt[0].Role != store.RoleSystem {
				t.Errorf("prompt should lead with the system message, got %q", prompt[0].Role)
			}
			if last := prompt[len(prompt)-1]; last.Content != "What is 2+2?" {
				t.Errorf("prompt should end with the user message, got %q", last.Content)
			}
			if err := onDelta("The answer "); err != nil {
				return err
			}
			return onDelta("is 4.")
		},
	}
	svc.llm = streamer

	var deltas []string
	result, err := svc.SendMessage(context.Background(), owner, chat.ID, "What is 2+2?", nil, "", func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if result.Message == nil || result.Message.Content != "The answer is 4." {
		t.Fatalf("result = %+v", result)
	}
	if result.Message.IsStreaming {
		t.Error("finalized message must not be marked streaming")
	}
	if len(deltas) != 2 {
		t.Errorf("deltas = %v", deltas)
	}
	if persistedTitle == nil || *persistedTitle != "What is 2+2?" {
		t.Errorf("first user message should derive the title, got %v", persistedTitle)
	}

	final := persisted[len(persisted)-1]
	if len(final) != 2 {
		t.Fatalf("final list has %d messages", len(final))
	}
	if final[0].Role != store.RoleUser || final[1].Role != store.RoleAssistant {
		t.Errorf("final roles = %q, %q", final[0].Role, final[1].Role)
	}
	if final[1].Content != "The answer is 4." {
		t.Errorf("assistant content = %q", final[1].Content)
	}
}

func TestSendMessageNoTitleRederivation(t *testing.T) {
	chat := chatWithMessages(userMsg("m1", "first"), assistantMsg("m2", "reply"))
	chat.Title = "first"
	var sawTitle bool
	st := &fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
		updateChatFn: func(_ context.Context, _ string, title *string, _ []store.Message) (bool, error) {
			if title != nil {
				sawTitle = true
			}
			return true, nil
		},
	}
	svc := newTestService(st)
	svc.llm = &fakeStreamer{
		streamFn: func(_ context.Context, _ string, _ []llm.ChatMessage, onDelta func(string) error) error {
			return onDelta("ok")
		},
	}

	if _, err := svc.SendMessage(context.Background(), owner, chat.ID, "second question", nil, "", nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if sawTitle {
		t.Error("title must only be derived from the first user message")
	}
}

func TestSendMessageConflictWhileInFlight(t *testing.T) {
	chat := testChat()
	svc := newTestService(&fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
	})
	svc.turns[chat.ID] = func() {}

	_, err := svc.SendMessage(context.Background(), owner, chat.ID, "hello", nil, "", nil)
	wantDomainError(t, err, 409, "CONFLICT")
}

func TestSendMessageAbortRollsBackCleanly(t *testing.T) {
	chat := testChat()
	var persisted [][]store.Message
	st := &fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
		updateChatFn: func(_ context.Context, _ string, _ *string, messages []store.Message) (bool, error) {
			persisted = append(persisted, messages)
			return true, nil
		},
	}
	svc := newTestService(st)
	svc.llm = &fakeStreamer{
		streamFn: func(ctx context.Context, _ string, _ []llm.ChatMessage, onDelta func(string) error) error {
			_ = onDelta("partial")
			return context.Canceled
		},
	}

	result, err := svc.SendMessage(context.Background(), owner, chat.ID, "hello", nil, "", nil)
	if err != nil {
		t.Fatalf("aborted turn must not error: %v", err)
	}
	if !result.Aborted || result.Message != nil {
		t.Fatalf("result = %+v", result)
	}
	// Only the pre-stream write happened: the partial assistant text is gone.
	if len(persisted) != 1 {
		t.Fatalf("expected 1 write, got %d", len(persisted))
	}
	if len(persisted[0]) != 1 || persisted[0][0].Role != store.RoleUser {
		t.Errorf("persisted = %+v", persisted[0])
	}
}

func TestSendMessageFailurePersistsFallback(t *testing.T) {
	chat := testChat()
	var persisted [][]store.Message
	st := &fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
		updateChatFn: func(_ context.Context, _ string, _ *string, messages []store.Message) (bool, error) {
			persisted = append(persisted, messages)
			return true, nil
		},
	}
	svc := newTestService(st)
	svc.llm = &fakeStreamer{
		streamFn: func(_ context.Context, _ string, _ []llm.ChatMessage, _ func(string) error) error {
			return errors.New("upstream exploded")
		},
	}

	result, err := svc.SendMessage(context.Background(), owner, chat.ID, "hello", nil, "", nil)
	wantDomainError(t, err, 502, "UPSTREAM_FAILURE")
	if !result.Failed || result.Message == nil {
		t.Fatalf("result = %+v", result)
	}
	if result.Message.Content != FallbackAssistantMessage {
		t.Errorf("content = %q", result.Message.Content)
	}

	final := persisted[len(persisted)-1]
	if len(final) != 2 || final[1].Content != FallbackAssistantMessage {
		t.Errorf("fallback not persisted: %+v", final)
	}
}

func TestSendMessageReleasesTurnSlot(t *testing.T) {
	chat := testChat()
	svc := newTestService(&fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
	})
	svc.llm = &fakeStreamer{
		streamFn: func(_ context.Context, _ string, _ []llm.ChatMessage, onDelta func(string) error) error {
			return onDelta("done")
		},
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.SendMessage(context.Background(), owner, chat.ID, "again", nil, "", nil); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
}

func TestStopGeneration(t *testing.T) {
	chat := testChat()
	svc := newTestService(&fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
	})
	ctx := context.Background()

	stopped, err := svc.StopGeneration(ctx, owner, chat.ID)
	if err != nil {
		t.Fatalf("StopGeneration: %v", err)
	}
	if stopped {
		t.Error("nothing in flight, stop should report false")
	}

	cancelled := false
	svc.turns[chat.ID] = func() { cancelled = true }
	stopped, err = svc.StopGeneration(ctx, owner, chat.ID)
	if err != nil || !stopped {
		t.Fatalf("stopped=%v err=%v", stopped, err)
	}
	if !cancelled {
		t.Error("in-flight turn was not cancelled")
	}

	_, err = svc.StopGeneration(ctx, viewer, chat.ID)
	wantDomainError(t, err, 403, "FORBIDDEN")
}

func TestStopDuringStreamAborts(t *testing.T) {
	chat := testChat()
	st := &fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
	}
	svc := newTestService(st)
	svc.llm = &fakeStreamer{
		streamFn: func(ctx context.Context, _ string, _ []llm.ChatMessage, onDelta func(string) error) error {
			_ = onDelta("partial")
			// Simulate the stop endpoint firing mid-stream.
			stopped, err := svc.StopGeneration(context.Background(), owner, chat.ID)
			if err != nil || !stopped {
				t.Errorf("stop mid-stream: stopped=%v err=%v", stopped, err)
			}
			<-ctx.Done()
			return ctx.Err()
		},
	}

	result, err := svc.SendMessage(context.Background(), owner, chat.ID, "hello", nil, "", nil)
	if err != nil {
		t.Fatalf("aborted turn must not error: %v", err)
	}
	if !result.Aborted {
		t.Fatalf("result = %+v", result)
	}
}

func TestEditAssistantMessagePersistsWithoutTurn(t *testing.T) {
	chat := chatWithMessages(userMsg("m1", "question"), assistantMsg("m2", "old answer"), userMsg("m3", "followup"))
	var persisted []store.Message
	st := &fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
		updateChatFn: func(_ context.Context, _ string, _ *string, messages []store.Message) (bool, error) {
			persisted = messages
			return true, nil
		},
	}
	svc := newTestService(st)
	streamer := &fakeStreamer{}
	svc.llm = streamer

	result, err := svc.EditMessage(context.Background(), owner, chat.ID, "m2", "corrected answer", "", nil)
	if err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if result.Message != nil || result.Aborted || result.Failed {
		t.Errorf("result = %+v", result)
	}
	if streamer.calls != 0 {
		t.Error("assistant edit must not contact the provider")
	}
	// Everything after the edited message is discarded.
	if len(persisted) != 2 || persisted[1].Content != "corrected answer" {
		t.Errorf("persisted = %+v", persisted)
	}
}

func TestEditUserMessageRerunsTurn(t *testing.T) {
	chat := chatWithMessages(userMsg("m1", "question"), assistantMsg("m2", "old answer"))
	var persisted [][]store.Message
	st := &fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
		updateChatFn: func(_ context.Context, _ string, _ *string, messages []store.Message) (bool, error) {
			persisted = append(persisted, messages)
			return true, nil
		},
	}
	svc := newTestService(st)
	svc.llm = &fakeStreamer{
		streamFn: func(_ context.Context, _ string, prompt []llm.ChatMessage, onDelta func(string) error) error {
			if last := prompt[len(prompt)-1]; last.Content != "better question" {
				t.Errorf("prompt should end with the edited content, got %q", last.Content)
			}
			return onDelta("new answer")
		},
	}

	result, err := svc.EditMessage(context.Background(), owner, chat.ID, "m1", "better question", "", nil)
	if err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if result.Message == nil || result.Message.Content != "new answer" {
		t.Fatalf("result = %+v", result)
	}

	final := persisted[len(persisted)-1]
	if len(final) != 2 || final[0].Content != "better question" || final[1].Content != "new answer" {
		t.Errorf("final = %+v", final)
	}
}

func TestEditMessageNotFound(t *testing.T) {
	chat := chatWithMessages(userMsg("m1", "question"))
	svc := newTestService(&fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
	})
	_, err := svc.EditMessage(context.Background(), owner, chat.ID, "nope", "content", "", nil)
	wantDomainError(t, err, 404, "NOT_FOUND")
}

func TestDeleteMessageInPlace(t *testing.T) {
	chat := chatWithMessages(userMsg("m1", "q1"), assistantMsg("m2", "a1"), userMsg("m3", "q2"))
	var persisted []store.Message
	st := &fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
		updateChatFn: func(_ context.Context, _ string, _ *string, messages []store.Message) (bool, error) {
			persisted = messages
			return true, nil
		},
	}
	svc := newTestService(st)

	if err := svc.DeleteMessage(context.Background(), owner, chat.ID, "m2"); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	// No cascade: m3 survives.
	if len(persisted) != 2 || persisted[0].ID != "m1" || persisted[1].ID != "m3" {
		t.Errorf("persisted = %+v", persisted)
	}

	err := svc.DeleteMessage(context.Background(), owner, chat.ID, "ghost")
	wantDomainError(t, err, 404, "NOT_FOUND")
}

func TestRegenerate(t *testing.T) {
	chat := chatWithMessages(userMsg("m1", "question"), assistantMsg("m2", "first answer"))
	var persisted [][]store.Message
	st := &fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
		updateChatFn: func(_ context.Context, _ string, _ *string, messages []store.Message) (bool, error) {
			persisted = append(persisted, messages)
			return true, nil
		},
	}
	svc := newTestService(st)
	svc.llm = &fakeStreamer{
		streamFn: func(_ context.Context, _ string, prompt []llm.ChatMessage, onDelta func(string) error) error {
			if last := prompt[len(prompt)-1]; last.Content != "question" {
				t.Errorf("prompt should end with the last user message, got %q", last.Content)
			}
			return onDelta("second answer")
		},
	}

	result, err := svc.Regenerate(context.Background(), owner, chat.ID, "", nil)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if result.Message == nil || result.Message.Content != "second answer" {
		t.Fatalf("result = %+v", result)
	}

	// First write truncates the stale answer, second appends the new one.
	if len(persisted) != 2 {
		t.Fatalf("writes = %d", len(persisted))
	}
	if len(persisted[0]) != 1 || persisted[0][0].ID != "m1" {
		t.Errorf("truncation = %+v", persisted[0])
	}
	final := persisted[1]
	if len(final) != 2 || final[1].Content != "second answer" {
		t.Errorf("final = %+v", final)
	}
}

func TestRegenerateNothingToDo(t *testing.T) {
	chat := chatWithMessages(assistantMsg("m1", "hello"))
	svc := newTestService(&fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
	})
	_, err := svc.Regenerate(context.Background(), owner, chat.ID, "", nil)
	wantDomainError(t, err, 422, "VALIDATION_ERROR")
}

func TestRegenerateTimeoutFails(t *testing.T) {
	chat := chatWithMessages(userMsg("m1", "question"))
	svc := newTestService(&fakeStore{
		getChatFn: func(_ context.Context, _ string) (store.Chat, error) { return chat, nil },
	})
	svc.cfg.StreamTimeout = 20 * time.Millisecond
	svc.llm = &fakeStreamer{
		streamFn: func(ctx context.Context, _ string, _ []llm.ChatMessage, _ func(string) error) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}

	result, err := svc.Regenerate(context.Background(), owner, chat.ID, "", nil)
	wantDomainError(t, err, 502, "UPSTREAM_FAILURE")
	if !result.Failed {
		t.Errorf("a timed-out turn is a failure, not an abort: %+v", result)
	}
}
