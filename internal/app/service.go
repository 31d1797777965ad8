package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/theBrainly/chatgpt-clone/internal/access"
	"github.com/theBrainly/chatgpt-clone/internal/blob"
	"github.com/theBrainly/chatgpt-clone/internal/config"
	"github.com/theBrainly/chatgpt-clone/internal/email"
	"github.com/theBrainly/chatgpt-clone/internal/events"
	"github.com/theBrainly/chatgpt-clone/internal/export"
	"github.com/theBrainly/chatgpt-clone/internal/llm"
	"github.com/theBrainly/chatgpt-clone/internal/memory"
	"github.com/theBrainly/chatgpt-clone/internal/presence"
	"github.com/theBrainly/chatgpt-clone/internal/search"
	"github.com/theBrainly/chatgpt-clone/internal/sharing"
	"github.com/theBrainly/chatgpt-clone/internal/stats"
	"github.com/theBrainly/chatgpt-clone/internal/store"
	"github.com/theBrainly/chatgpt-clone/internal/util"
)

// Actor is the authenticated identity acting on a request, resolved by the
// gateway in front of this service.
type Actor struct {
	ID     string
	Name   string
	Email  string
	Avatar string
}

func (a Actor) identity() sharing.Identity {
	return sharing.Identity{UserID: a.ID, Name: a.Name, Email: a.Email, Avatar: a.Avatar}
}

type dataStore interface {
	InsertChat(context.Context, store.Chat) error
	GetChat(context.Context, string) (store.Chat, error)
	ListChatsForOwner(context.Context, string) ([]store.Chat, error)
	ListChatsForCollaborator(context.Context, string) ([]store.Chat, error)
	UpdateChat(ctx context.Context, chatID string, title *string, messages []store.Message) (bool, error)
	DeleteChat(context.Context, string) (bool, error)
	SetShareSettings(ctx context.Context, chatID string, isShared bool, settings store.ShareSettings) (bool, error)
	AddCollaborator(context.Context, string, store.Collaborator) (bool, error)
	RemoveCollaborator(context.Context, string, string) (bool, error)
	TouchCollaborator(ctx context.Context, chatID, userID string, online bool) error
	InsertInvite(context.Context, store.ChatInvite) error
	GetInvite(context.Context, string) (store.ChatInvite, error)
	HasPendingInvite(context.Context, string, string) (bool, error)
	TransitionInvite(context.Context, string, string) (bool, error)
	UpsertMemory(context.Context, store.Memory) error
	ListMemories(context.Context, string) ([]store.Memory, error)
	DeleteMemory(context.Context, string, string) error
	Ping(ctx context.Context) error
}

type presenceTracker interface {
	RecordActivity(ctx context.Context, chatID, userID, name, avatar, kind string) error
	ListActive(ctx context.Context, chatID, excludeUserID string) ([]store.ActiveUser, error)
}

type completionStreamer interface {
	StreamCompletion(ctx context.Context, model string, messages []llm.ChatMessage, onDelta func(string) error) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexChat(rec search.ChatRecord)
	DeleteChat(id string)
}

type memoryProvider interface {
	Store(ctx context.Context, userID, key, value, memContext string) error
	List(ctx context.Context, userID string) ([]store.Memory, error)
	Delete(ctx context.Context, userID, key string) error
	BuildContext(ctx context.Context, userID string) (string, error)
}

type blobStore interface {
	Store(ctx context.Context, userID, filename, mimeType string, data []byte) (blob.Upload, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	presence presenceTracker
	llm      completionStreamer
	memory   memoryProvider
	search   searchIndex
	email    *email.Service
	events   events.Publisher
	blob     blobStore

	turnMu sync.Mutex
	turns  map[string]context.CancelFunc
}

func New(cfg config.Config, dataStore *store.PostgresStore, tracker *presence.RedisTracker, streamer completionStreamer, mem *memory.Service, searchSvc *search.Service, emailSvc *email.Service, publisher events.Publisher, blobSvc *blob.Service) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		presence: tracker,
		llm:      streamer,
		memory:   mem,
		email:    emailSvc,
		events:   publisher,
		turns:    make(map[string]context.CancelFunc),
	}
	// Optional services stay nil in the interface fields when unconfigured,
	// so nil checks at the call sites keep working.
	if searchSvc != nil {
		s.search = searchSvc
	}
	if blobSvc != nil {
		s.blob = blobSvc
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// loadChat fetches a chat and applies the existence mask: actors who cannot
// read a chat see NOT_FOUND, never FORBIDDEN.
func (s *Service) loadChat(ctx context.Context, chatID string, actorID string) (store.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Chat{}, errNotFound("Chat not found")
	}
	if err != nil {
		return store.Chat{}, err
	}
	if !access.CanRead(&chat, actorID, time.Now()) {
		return store.Chat{}, errNotFound("Chat not found")
	}
	return chat, nil
}

// CreateChat creates an empty chat owned by the actor.
func (s *Service) CreateChat(ctx context.Context, actor Actor, title string) (store.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New Chat"
	}

	now := time.Now()
	chat := store.Chat{
		ID:        util.NewID("chat"),
		Title:     title,
		OwnerID:   actor.ID,
		OwnerName: actor.Name,
		Messages:  []store.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertChat(ctx, chat); err != nil {
		return store.Chat{}, fmt.Errorf("insert chat: %w", err)
	}

	s.indexChat(chat)
	return chat, nil
}

// GetChat returns the chat if the actor may read it.
func (s *Service) GetChat(ctx context.Context, actor Actor, chatID string) (store.Chat, error) {
	return s.loadChat(ctx, chatID, actor.ID)
}

// ListChats returns the actor's own chats, newest first.
func (s *Service) ListChats(ctx context.Context, actor Actor) ([]store.Chat, error) {
	chats, err := s.store.ListChatsForOwner(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	if chats == nil {
		chats = []store.Chat{}
	}
	return chats, nil
}

// UpdateChat applies a partial update: title rename, wholesale message list
// replacement, or both. Message replacement is last-writer-wins.
func (s *Service) UpdateChat(ctx context.Context, actor Actor, chatID string, title *string, messages []store.Message) (store.Chat, error) {
	chat, err := s.loadChat(ctx, chatID, actor.ID)
	if err != nil {
		return store.Chat{}, err
	}
	if !access.CanWrite(&chat, actor.ID) {
		return store.Chat{}, errForbidden("You do not have edit access to this chat")
	}
	if title == nil && messages == nil {
		return store.Chat{}, errValidation("Nothing to update")
	}
	if title != nil && strings.TrimSpace(*title) == "" {
		return store.Chat{}, errValidation("Title must not be empty")
	}
	if messages != nil {
		if err := validateMessages(messages); err != nil {
			return store.Chat{}, err
		}
	}

	if _, err := s.store.UpdateChat(ctx, chatID, title, messages); err != nil {
		return store.Chat{}, fmt.Errorf("update chat: %w", err)
	}

	updated, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return store.Chat{}, fmt.Errorf("reload chat: %w", err)
	}
	s.indexChat(updated)
	return updated, nil
}

// DeleteChat removes a chat. Owner only; invites and presence records that
// still reference the chat become inert.
func (s *Service) DeleteChat(ctx context.Context, actor Actor, chatID string) error {
	chat, err := s.loadChat(ctx, chatID, actor.ID)
	if err != nil {
		return err
	}
	if chat.OwnerID != actor.ID {
		return errForbidden("Only the owner can delete a chat")
	}

	if _, err := s.store.DeleteChat(ctx, chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if s.search != nil {
		s.search.DeleteChat(chatID)
	}
	return nil
}

func validateMessages(messages []store.Message) error {
	for _, m := range messages {
		switch m.Role {
		case store.RoleUser, store.RoleAssistant, store.RoleSystem:
		default:
			return errValidation(fmt.Sprintf("unsupported message role %q", m.Role))
		}
	}
	return nil
}

// ShareSettingsInput is the sharing configuration accepted from clients.
type ShareSettingsInput struct {
	IsPublic     bool       `json:"isPublic"`
	AllowEditing bool       `json:"allowEditing"`
	AllowInvites bool       `json:"allowInvites"`
	ExpiresAt    *time.Time `json:"expiresAt"`
}

// SetShareSettings enables sharing, minting a token on first share. The
// token survives settings updates so existing links keep working.
func (s *Service) SetShareSettings(ctx context.Context, actor Actor, chatID string, input ShareSettingsInput) (store.ShareSettings, error) {
	chat, err := s.loadChat(ctx, chatID, actor.ID)
	if err != nil {
		return store.ShareSettings{}, err
	}
	if !access.CanManageSharing(&chat, actor.ID) {
		return store.ShareSettings{}, errForbidden("You do not have permission to share this chat")
	}
	if input.ExpiresAt != nil && input.ExpiresAt.Before(time.Now()) {
		return store.ShareSettings{}, errValidation("expiresAt must be in the future")
	}

	token := ""
	if chat.ShareSettings != nil {
		token = chat.ShareSettings.ShareToken
	}
	if token == "" {
		token = sharing.NewShareToken()
	}

	settings := store.ShareSettings{
		IsPublic:     input.IsPublic,
		AllowEditing: input.AllowEditing,
		AllowInvites: input.AllowInvites,
		ExpiresAt:    input.ExpiresAt,
		ShareToken:   token,
		ShareLink:    sharing.ShareLink(s.cfg.BaseURL, chatID, token),
	}

	if _, err := s.store.SetShareSettings(ctx, chatID, true, settings); err != nil {
		return store.ShareSettings{}, fmt.Errorf("set share settings: %w", err)
	}

	s.publish(events.KeyChatShared, map[string]any{
		"chatId":   chatID,
		"byUserId": actor.ID,
		"isPublic": input.IsPublic,
	})
	return settings, nil
}

// Unshare disables sharing and discards the token; a future share mints a
// fresh one.
func (s *Service) Unshare(ctx context.Context, actor Actor, chatID string) error {
	chat, err := s.loadChat(ctx, chatID, actor.ID)
	if err != nil {
		return err
	}
	if !access.CanManageSharing(&chat, actor.ID) {
		return errForbidden("You do not have permission to share this chat")
	}

	if _, err := s.store.SetShareSettings(ctx, chatID, false, store.ShareSettings{}); err != nil {
		return fmt.Errorf("unshare chat: %w", err)
	}
	return nil
}

// GetSharedChat resolves a share-link view. Invalid tokens and unshared
// chats both present as NOT_FOUND; an expired link is EXPIRED so the
// caller knows to request a new one.
func (s *Service) GetSharedChat(ctx context.Context, chatID, token string) (store.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Chat{}, errNotFound("Chat not found")
	}
	if err != nil {
		return store.Chat{}, err
	}
	if !chat.IsShared || !access.ValidShareToken(&chat, token) {
		return store.Chat{}, errNotFound("Chat not found")
	}
	if chat.ShareSettings != nil && chat.ShareSettings.ExpiresAt != nil && time.Now().After(*chat.ShareSettings.ExpiresAt) {
		return store.Chat{}, errExpired("This share link has expired")
	}
	return chat, nil
}

// JoinViaShareLink promotes the actor to editor through a share link.
func (s *Service) JoinViaShareLink(ctx context.Context, actor Actor, chatID, token string) (store.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Chat{}, errNotFound("Chat not found")
	}
	if err != nil {
		return store.Chat{}, err
	}

	now := time.Now()
	if !chat.IsShared || !access.ValidShareToken(&chat, token) {
		return store.Chat{}, errNotFound("Chat not found")
	}
	if chat.ShareSettings != nil && chat.ShareSettings.ExpiresAt != nil && now.After(*chat.ShareSettings.ExpiresAt) {
		return store.Chat{}, errExpired("This share link has expired")
	}
	if chat.OwnerID == actor.ID || chat.Collaborator(actor.ID) != nil {
		return store.Chat{}, errConflict("You already have access to this chat")
	}
	if !access.CanJoinViaShareLink(&chat, token, actor.ID, now) {
		return store.Chat{}, errForbidden("This share link does not allow joining as an editor")
	}

	joined := now
	added, err := s.store.AddCollaborator(ctx, chatID, store.Collaborator{
		UserID:     actor.ID,
		Name:       actor.Name,
		Email:      actor.Email,
		Avatar:     actor.Avatar,
		Role:       store.CollaboratorEditor,
		JoinedAt:   joined,
		LastActive: &joined,
		IsOnline:   true,
	})
	if err != nil {
		return store.Chat{}, fmt.Errorf("add collaborator: %w", err)
	}
	if !added {
		return store.Chat{}, errConflict("You already have access to this chat")
	}

	updated, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return store.Chat{}, fmt.Errorf("reload chat: %w", err)
	}
	s.indexChat(updated)
	return updated, nil
}

// CreateInvite issues a pending, email-scoped invitation and notifies the
// invitee. Email delivery is best-effort; the invite stands either way.
func (s *Service) CreateInvite(ctx context.Context, actor Actor, chatID, inviteeEmail, role string) (store.ChatInvite, error) {
	chat, err := s.loadChat(ctx, chatID, actor.ID)
	if err != nil {
		return store.ChatInvite{}, err
	}
	if !access.CanInvite(&chat, actor.ID) {
		return store.ChatInvite{}, errForbidden("You do not have permission to invite collaborators")
	}

	inviteeEmail = strings.TrimSpace(strings.ToLower(inviteeEmail))
	if inviteeEmail == "" || !strings.Contains(inviteeEmail, "@") {
		return store.ChatInvite{}, errValidation("A valid invitee email is required")
	}
	if role != store.CollaboratorEditor && role != store.CollaboratorViewer {
		return store.ChatInvite{}, errValidation(fmt.Sprintf("unsupported role %q", role))
	}
	if strings.EqualFold(actor.Email, inviteeEmail) {
		return store.ChatInvite{}, errValidation("You cannot invite yourself")
	}
	for _, c := range chat.Collaborators {
		if strings.EqualFold(c.Email, inviteeEmail) {
			return store.ChatInvite{}, errConflict("This user is already a collaborator")
		}
	}

	pending, err := s.store.HasPendingInvite(ctx, chatID, inviteeEmail)
	if err != nil {
		return store.ChatInvite{}, fmt.Errorf("check pending invite: %w", err)
	}
	if pending {
		return store.ChatInvite{}, errConflict("An invite for this email is already pending")
	}

	invite := sharing.NewInvite(chatID, actor.identity(), inviteeEmail, role, time.Now())
	if err := s.store.InsertInvite(ctx, invite); err != nil {
		return store.ChatInvite{}, fmt.Errorf("insert invite: %w", err)
	}

	if s.email != nil && s.email.IsConfigured() {
		inviteURL := fmt.Sprintf("%s/invites/%s", s.cfg.BaseURL, invite.ID)
		if err := s.email.SendInviteEmail(inviteeEmail, actor.Name, chat.Title, role, inviteURL); err != nil {
			log.Printf("invite %s: email delivery failed: %v", invite.ID, err)
		}
	}

	s.publish(events.KeyInviteCreated, map[string]any{
		"inviteId":     invite.ID,
		"chatId":       chatID,
		"inviteeEmail": inviteeEmail,
		"role":         role,
	})
	return invite, nil
}

// GetInvite returns an invite for its landing page. Only the invitee and
// the inviter may see it.
func (s *Service) GetInvite(ctx context.Context, actor Actor, inviteID string) (store.ChatInvite, error) {
	invite, err := s.store.GetInvite(ctx, inviteID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ChatInvite{}, errNotFound("Invite not found")
	}
	if err != nil {
		return store.ChatInvite{}, err
	}
	if !strings.EqualFold(invite.InviteeEmail, actor.Email) && invite.InviterID != actor.ID {
		return store.ChatInvite{}, errNotFound("Invite not found")
	}
	return invite, nil
}

// ResolveInvite accepts or declines an invite on behalf of the actor.
// Terminality is enforced in the store: the status transition is a
// conditional update, so a raced second accept resolves to Conflict.
func (s *Service) ResolveInvite(ctx context.Context, actor Actor, inviteID, action string) (store.ChatInvite, error) {
	invite, err := s.store.GetInvite(ctx, inviteID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ChatInvite{}, errNotFound("Invite not found")
	}
	if err != nil {
		return store.ChatInvite{}, err
	}

	resolution := sharing.Resolve(invite, action, actor.identity(), time.Now())
	switch resolution.Outcome {
	case sharing.OutcomeMismatch:
		return store.ChatInvite{}, errForbidden("This invite was issued to a different email address")
	case sharing.OutcomeExpired:
		return store.ChatInvite{}, errExpired("This invite has expired")
	case sharing.OutcomeInvalid:
		if invite.Status != store.InviteStatusPending {
			return store.ChatInvite{}, errConflict("This invite has already been resolved")
		}
		return store.ChatInvite{}, errValidation(fmt.Sprintf("unsupported action %q", action))
	}

	if resolution.Outcome == sharing.OutcomeAccepted {
		// The invitee may have become the owner's address or a collaborator
		// since the invite was issued; the owner is never appended to the
		// collaborator list. Checked before the transition so the invite is
		// not consumed.
		chat, err := s.store.GetChat(ctx, invite.ChatID)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ChatInvite{}, errNotFound("Chat not found")
		}
		if err != nil {
			return store.ChatInvite{}, fmt.Errorf("load chat: %w", err)
		}
		if chat.OwnerID == actor.ID || chat.Collaborator(actor.ID) != nil {
			return store.ChatInvite{}, errConflict("You already have access to this chat")
		}
	}

	status := store.InviteStatusAccepted
	if resolution.Outcome == sharing.OutcomeDeclined {
		status = store.InviteStatusDeclined
	}
	transitioned, err := s.store.TransitionInvite(ctx, inviteID, status)
	if err != nil {
		return store.ChatInvite{}, fmt.Errorf("transition invite: %w", err)
	}
	if !transitioned {
		return store.ChatInvite{}, errConflict("This invite has already been resolved")
	}

	if resolution.Outcome == sharing.OutcomeAccepted {
		added, err := s.store.AddCollaborator(ctx, invite.ChatID, *resolution.Collaborator)
		if err != nil {
			return store.ChatInvite{}, fmt.Errorf("add collaborator: %w", err)
		}
		if !added {
			// Already a collaborator through another path; the invite is
			// still consumed.
			log.Printf("invite %s: %s was already a collaborator on %s", inviteID, actor.ID, invite.ChatID)
		}
		if chat, err := s.store.GetChat(ctx, invite.ChatID); err == nil {
			s.indexChat(chat)
		}
	}

	invite.Status = status
	return invite, nil
}

// RemoveCollaborator removes a collaborator; owners may remove anyone,
// collaborators only themselves.
func (s *Service) RemoveCollaborator(ctx context.Context, actor Actor, chatID, targetID string) error {
	chat, err := s.loadChat(ctx, chatID, actor.ID)
	if err != nil {
		return err
	}
	if !access.CanRemoveCollaborator(&chat, actor.ID, targetID) {
		return errForbidden("You do not have permission to remove this collaborator")
	}
	if chat.Collaborator(targetID) == nil {
		return errNotFound("Collaborator not found")
	}

	if _, err := s.store.RemoveCollaborator(ctx, chatID, targetID); err != nil {
		return fmt.Errorf("remove collaborator: %w", err)
	}
	return nil
}

// ListCollaborators returns the chat's collaborator roster.
func (s *Service) ListCollaborators(ctx context.Context, actor Actor, chatID string) ([]store.Collaborator, error) {
	chat, err := s.loadChat(ctx, chatID, actor.ID)
	if err != nil {
		return nil, err
	}
	if chat.Collaborators == nil {
		return []store.Collaborator{}, nil
	}
	return chat.Collaborators, nil
}

// RecordPresence applies one activity signal and, best-effort, mirrors it
// onto the collaborator row. Presence divergence is tolerated, never fatal.
func (s *Service) RecordPresence(ctx context.Context, actor Actor, chatID, kind string) error {
	chat, err := s.loadChat(ctx, chatID, actor.ID)
	if err != nil {
		return err
	}

	switch kind {
	case presence.KindJoin, presence.KindTyping, presence.KindStopTyping, presence.KindLeave:
	default:
		return errValidation(fmt.Sprintf("unsupported activity kind %q", kind))
	}

	if err := s.presence.RecordActivity(ctx, chatID, actor.ID, actor.Name, actor.Avatar, kind); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}

	if chat.Collaborator(actor.ID) != nil {
		online := kind != presence.KindLeave
		if err := s.store.TouchCollaborator(ctx, chatID, actor.ID, online); err != nil {
			log.Printf("presence: touch collaborator %s on %s: %v", actor.ID, chatID, err)
		}
	}
	return nil
}

// ListPresence returns the other users currently active in the chat.
func (s *Service) ListPresence(ctx context.Context, actor Actor, chatID string) ([]store.ActiveUser, error) {
	if _, err := s.loadChat(ctx, chatID, actor.ID); err != nil {
		return nil, err
	}
	users, err := s.presence.ListActive(ctx, chatID, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	if users == nil {
		users = []store.ActiveUser{}
	}
	return users, nil
}

// StoreMemory saves a user memory.
func (s *Service) StoreMemory(ctx context.Context, actor Actor, key, value, memContext string) error {
	if err := s.memory.Store(ctx, actor.ID, key, value, memContext); err != nil {
		if strings.Contains(err.Error(), "required") {
			return errValidation(err.Error())
		}
		return err
	}
	return nil
}

// ListMemories returns the actor's memories.
func (s *Service) ListMemories(ctx context.Context, actor Actor) ([]store.Memory, error) {
	memories, err := s.memory.List(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if memories == nil {
		memories = []store.Memory{}
	}
	return memories, nil
}

// DeleteMemory removes one memory by key.
func (s *Service) DeleteMemory(ctx context.Context, actor Actor, key string) error {
	return s.memory.Delete(ctx, actor.ID, key)
}

// UserStats computes usage aggregates for the actor.
func (s *Service) UserStats(ctx context.Context, actor Actor) (stats.UserStats, error) {
	owned, err := s.store.ListChatsForOwner(ctx, actor.ID)
	if err != nil {
		return stats.UserStats{}, fmt.Errorf("list owned chats: %w", err)
	}
	collaborated, err := s.store.ListChatsForCollaborator(ctx, actor.ID)
	if err != nil {
		return stats.UserStats{}, fmt.Errorf("list collaborations: %w", err)
	}
	return stats.Compute(owned, collaborated, time.Now()), nil
}

// UserExport is the full takeout payload for one user.
type UserExport struct {
	UserID     string         `json:"userId"`
	ExportedAt time.Time      `json:"exportedAt"`
	Chats      []store.Chat   `json:"chats"`
	Memories   []store.Memory `json:"memories"`
}

// ExportUserData assembles everything the service stores about the actor.
func (s *Service) ExportUserData(ctx context.Context, actor Actor) (UserExport, error) {
	chats, err := s.store.ListChatsForOwner(ctx, actor.ID)
	if err != nil {
		return UserExport{}, fmt.Errorf("list chats: %w", err)
	}
	memories, err := s.memory.List(ctx, actor.ID)
	if err != nil {
		return UserExport{}, fmt.Errorf("list memories: %w", err)
	}
	if chats == nil {
		chats = []store.Chat{}
	}
	if memories == nil {
		memories = []store.Memory{}
	}
	return UserExport{
		UserID:     actor.ID,
		ExportedAt: time.Now(),
		Chats:      chats,
		Memories:   memories,
	}, nil
}

// ExportChat renders a downloadable transcript of one chat.
func (s *Service) ExportChat(ctx context.Context, actor Actor, chatID string, format export.Format) (*export.Result, error) {
	chat, err := s.loadChat(ctx, chatID, actor.ID)
	if err != nil {
		return nil, err
	}
	result, err := export.Transcript(chat, format)
	if err != nil {
		return nil, fmt.Errorf("render transcript: %w", err)
	}
	return result, nil
}

// SearchChats runs a full-text search over the actor's chats.
func (s *Service) SearchChats(ctx context.Context, actor Actor, text string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:   text,
		UserID: actor.ID,
		Limit:  limit,
		Offset: offset,
	}), nil
}

// UploadAttachment validates and stores an attachment blob.
func (s *Service) UploadAttachment(ctx context.Context, actor Actor, filename, mimeType string, data []byte) (blob.Upload, error) {
	if s.blob == nil {
		return blob.Upload{}, errUpstream("File storage is not configured")
	}
	if len(data) > blob.MaxUploadSize {
		return blob.Upload{}, errValidation("File too large")
	}
	if !blob.AllowedType(mimeType) {
		return blob.Upload{}, errValidation("File type not supported")
	}
	upload, err := s.blob.Store(ctx, actor.ID, filename, mimeType, data)
	if err != nil {
		return blob.Upload{}, errUpstream("Upload failed")
	}
	return upload, nil
}

func (s *Service) indexChat(chat store.Chat) {
	if s.search == nil {
		return
	}
	members := []string{chat.OwnerID}
	for _, c := range chat.Collaborators {
		members = append(members, c.UserID)
	}
	preview := ""
	if n := len(chat.Messages); n > 0 {
		preview = chat.Messages[n-1].Content
	}
	s.search.IndexChat(search.ChatRecord{
		ID:        chat.ID,
		Title:     chat.Title,
		Preview:   preview,
		OwnerID:   chat.OwnerID,
		MemberIDs: members,
	})
}

func (s *Service) publish(key string, payload any) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.events.Publish(ctx, key, payload); err != nil {
		log.Printf("events: publish %s: %v", key, err)
	}
}
