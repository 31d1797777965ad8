package access

import (
	"testing"
	"time"

	"github.com/theBrainly/chatgpt-clone/internal/store"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func privateChat() *store.Chat {
	return &store.Chat{
		ID:      "chat-1",
		OwnerID: "owner",
		Collaborators: []store.Collaborator{
			{UserID: "ed", Role: store.CollaboratorEditor},
			{UserID: "vi", Role: store.CollaboratorViewer},
		},
	}
}

func sharedChat(isPublic, allowEditing bool, expiresAt *time.Time) *store.Chat {
	chat := privateChat()
	chat.IsShared = true
	chat.ShareSettings = &store.ShareSettings{
		IsPublic:     isPublic,
		AllowEditing: allowEditing,
		ExpiresAt:    expiresAt,
		ShareToken:   "tok_abcdef123456",
	}
	return chat
}

func TestOwnerAlwaysReadsAndWrites(t *testing.T) {
	for _, chat := range []*store.Chat{privateChat(), sharedChat(true, true, nil)} {
		if !CanRead(chat, "owner", now) {
			t.Errorf("owner should read chat %s", chat.ID)
		}
		if !CanWrite(chat, "owner") {
			t.Errorf("owner should write chat %s", chat.ID)
		}
	}
}

func TestStrangerDeniedOnPrivateChat(t *testing.T) {
	chat := privateChat()
	if CanRead(chat, "stranger", now) {
		t.Error("stranger should not read a private chat")
	}
	if CanWrite(chat, "stranger") {
		t.Error("stranger should not write a private chat")
	}
}

func TestCollaboratorRoles(t *testing.T) {
	chat := privateChat()

	if !CanRead(chat, "ed", now) || !CanRead(chat, "vi", now) {
		t.Error("collaborators should read")
	}
	if !CanWrite(chat, "ed") {
		t.Error("editor should write")
	}
	if CanWrite(chat, "vi") {
		t.Error("viewer must be write-denied")
	}
}

func TestPublicShareGrantsRead(t *testing.T) {
	chat := sharedChat(true, false, nil)
	if !CanRead(chat, "stranger", now) {
		t.Error("public share should grant read to anyone")
	}
	if CanWrite(chat, "stranger") {
		t.Error("public share must not grant write")
	}
}

func TestShareExpiryMonotonic(t *testing.T) {
	expires := now.Add(-time.Minute)
	chat := sharedChat(true, true, &expires)

	if CanRead(chat, "stranger", now) {
		t.Error("expired public share should deny read to non-members")
	}
	if CanJoinViaShareLink(chat, "tok_abcdef123456", "stranger", now) {
		t.Error("expired share link should deny join")
	}
	// Still denied arbitrarily later.
	later := now.Add(24 * time.Hour)
	if CanRead(chat, "stranger", later) || CanJoinViaShareLink(chat, "tok_abcdef123456", "stranger", later) {
		t.Error("expiry must be monotonic")
	}
	// Members keep their access regardless of expiry.
	if !CanRead(chat, "owner", later) || !CanRead(chat, "vi", later) {
		t.Error("expiry must not lock out owner or collaborators")
	}
}

func TestValidShareToken(t *testing.T) {
	chat := sharedChat(true, true, nil)

	if !ValidShareToken(chat, "tok_abcdef123456") {
		t.Error("matching token should validate")
	}
	if ValidShareToken(chat, "tok_wrong") {
		t.Error("mismatched token should not validate")
	}
	if ValidShareToken(chat, "") {
		t.Error("empty token should not validate")
	}

	chat.ShareSettings.ShareToken = ""
	if ValidShareToken(chat, "tok_abcdef123456") {
		t.Error("chat without a configured token should reject everything")
	}
}

func TestCanJoinViaShareLink(t *testing.T) {
	cases := []struct {
		name  string
		chat  *store.Chat
		token string
		actor string
		want  bool
	}{
		{"happy path", sharedChat(true, true, nil), "tok_abcdef123456", "stranger", true},
		{"wrong token", sharedChat(true, true, nil), "nope", "stranger", false},
		{"editing disabled", sharedChat(true, false, nil), "tok_abcdef123456", "stranger", false},
		{"not shared", privateChat(), "tok_abcdef123456", "stranger", false},
		{"owner cannot join", sharedChat(true, true, nil), "tok_abcdef123456", "owner", false},
		{"collaborator cannot rejoin", sharedChat(true, true, nil), "tok_abcdef123456", "vi", false},
	}
	for _, tc := range cases {
		if got := CanJoinViaShareLink(tc.chat, tc.token, tc.actor, now); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanInvite(t *testing.T) {
	chat := privateChat()
	if !CanInvite(chat, "owner") || !CanInvite(chat, "ed") {
		t.Error("owner and editor should invite")
	}
	if CanInvite(chat, "vi") || CanInvite(chat, "stranger") {
		t.Error("viewer and stranger should not invite on a private chat")
	}

	open := sharedChat(true, false, nil)
	open.ShareSettings.AllowInvites = true
	if !CanInvite(open, "vi") {
		t.Error("allowInvites should extend invite rights to viewers")
	}
}

func TestCanRemoveCollaborator(t *testing.T) {
	chat := privateChat()
	if !CanRemoveCollaborator(chat, "owner", "ed") {
		t.Error("owner should remove anyone")
	}
	if !CanRemoveCollaborator(chat, "vi", "vi") {
		t.Error("self-removal should be allowed")
	}
	if CanRemoveCollaborator(chat, "ed", "vi") {
		t.Error("editor should not remove others")
	}
}
