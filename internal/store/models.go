package store

import "time"

// Message roles. The system role is reserved for the generated context
// preamble and never persisted by user action.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Collaborator roles. The owner is implicit on the chat itself and never
// appears in the collaborator list.
const (
	CollaboratorEditor = "editor"
	CollaboratorViewer = "viewer"
)

// Invite statuses. Transitions are one-way: pending is the only state an
// invite can leave.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusDeclined = "declined"
	InviteStatusExpired  = "expired"
)

type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

type Message struct {
	ID          string       `json:"id"`
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Attachments []Attachment `json:"attachments,omitempty"`
	AuthorID    string       `json:"authorId,omitempty"`
	AuthorName  string       `json:"authorName,omitempty"`
	IsStreaming bool         `json:"isStreaming,omitempty"`
}

type ShareSettings struct {
	IsPublic     bool       `json:"isPublic"`
	AllowEditing bool       `json:"allowEditing"`
	AllowInvites bool       `json:"allowInvites"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	ShareToken   string     `json:"-"`
	ShareLink    string     `json:"shareLink,omitempty"`
}

type Collaborator struct {
	UserID     string     `json:"userId"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Avatar     string     `json:"avatar,omitempty"`
	Role       string     `json:"role"`
	JoinedAt   time.Time  `json:"joinedAt"`
	LastActive *time.Time `json:"lastActive,omitempty"`
	IsOnline   bool       `json:"isOnline"`
}

// Chat is the collaboration aggregate. Messages are persisted wholesale as
// one document column, so concurrent edits resolve last-writer-wins.
// Collaborators live in their own table so add and remove are atomic per
// entry.
type Chat struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	OwnerID       string         `json:"userId"`
	OwnerName     string         `json:"ownerName,omitempty"`
	Messages      []Message      `json:"messages"`
	Collaborators []Collaborator `json:"collaborators"`
	IsShared      bool           `json:"isShared"`
	ShareSettings *ShareSettings `json:"shareSettings,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Collaborator returns the entry for userID, or nil. The owner is never in
// the list.
func (c *Chat) Collaborator(userID string) *Collaborator {
	for i := range c.Collaborators {
		if c.Collaborators[i].UserID == userID {
			return &c.Collaborators[i]
		}
	}
	return nil
}

type ChatInvite struct {
	ID           string    `json:"id"`
	ChatID       string    `json:"chatId"`
	InviterID    string    `json:"inviterId"`
	InviterName  string    `json:"inviterName"`
	InviteeEmail string    `json:"inviteeEmail"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ActiveUser is a presence record: one per (chat, user), refreshed on every
// heartbeat, excluded from listings once lastSeen falls outside the
// freshness window.
type ActiveUser struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar,omitempty"`
	LastSeen time.Time `json:"lastSeen"`
	IsTyping bool      `json:"isTyping"`
}

// Memory is a per-user key/value remembered across conversations and folded
// into the system message of every turn.
type Memory struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Context   string    `json:"context"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
