// Package access holds the pure permission predicates for chats. Every
// function operates on an already-loaded chat plus an actor ID and performs
// no I/O, so each rule is testable in isolation.
package access

import (
	"crypto/subtle"
	"time"

	"github.com/theBrainly/chatgpt-clone/internal/store"
)

// shareExpired reports whether the chat's share settings carry an expiry
// that has passed. An expired share revokes public access entirely; owner
// and collaborators are unaffected.
func shareExpired(chat *store.Chat, now time.Time) bool {
	if chat.ShareSettings == nil || chat.ShareSettings.ExpiresAt == nil {
		return false
	}
	return now.After(*chat.ShareSettings.ExpiresAt)
}

func isPublic(chat *store.Chat, now time.Time) bool {
	return chat.IsShared && chat.ShareSettings != nil && chat.ShareSettings.IsPublic && !shareExpired(chat, now)
}

// CanRead allows the owner, any collaborator, and anyone at all when the
// chat is publicly shared and the share has not expired.
func CanRead(chat *store.Chat, actorID string, now time.Time) bool {
	if chat.OwnerID == actorID {
		return true
	}
	if chat.Collaborator(actorID) != nil {
		return true
	}
	return isPublic(chat, now)
}

// CanWrite allows the owner and editor collaborators. Viewers are read-only:
// collaborator presence alone never grants message mutation.
func CanWrite(chat *store.Chat, actorID string) bool {
	if chat.OwnerID == actorID {
		return true
	}
	c := chat.Collaborator(actorID)
	return c != nil && c.Role == store.CollaboratorEditor
}

// CanManageSharing gates share-settings changes: owner or editor.
func CanManageSharing(chat *store.Chat, actorID string) bool {
	return CanWrite(chat, actorID)
}

// CanInvite gates invite creation: owner, editor, or an open-invite share.
func CanInvite(chat *store.Chat, actorID string) bool {
	if CanWrite(chat, actorID) {
		return true
	}
	return chat.IsShared && chat.ShareSettings != nil && chat.ShareSettings.AllowInvites
}

// CanRemoveCollaborator allows the owner to remove anyone and any
// collaborator to remove themselves.
func CanRemoveCollaborator(chat *store.Chat, actorID, targetID string) bool {
	return chat.OwnerID == actorID || actorID == targetID
}

// ValidShareToken compares the presented token against the configured one in
// constant time. A chat with no token configured rejects everything.
func ValidShareToken(chat *store.Chat, presented string) bool {
	if chat.ShareSettings == nil || chat.ShareSettings.ShareToken == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(chat.ShareSettings.ShareToken), []byte(presented)) == 1
}

// CanJoinViaShareLink reports whether actorID may promote themselves to
// editor through the share link. Requires active sharing, a matching token,
// an unexpired link, editing enabled, and an actor who is neither the owner
// nor already a collaborator.
func CanJoinViaShareLink(chat *store.Chat, token, actorID string, now time.Time) bool {
	if !chat.IsShared || chat.ShareSettings == nil {
		return false
	}
	if !ValidShareToken(chat, token) {
		return false
	}
	if shareExpired(chat, now) {
		return false
	}
	if !chat.ShareSettings.AllowEditing {
		return false
	}
	if chat.OwnerID == actorID || chat.Collaborator(actorID) != nil {
		return false
	}
	return true
}
