package sharing

import (
	"time"

	"github.com/theBrainly/chatgpt-clone/internal/store"
	"github.com/theBrainly/chatgpt-clone/internal/util"
)

// InviteTTL is fixed at creation; expiry is evaluated against it, never
// extended.
const InviteTTL = 7 * 24 * time.Hour

// Identity is the slice of the authenticated actor an invite resolution
// needs. Email is what the invite is scoped to.
type Identity struct {
	UserID string
	Name   string
	Email  string
	Avatar string
}

type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeDeclined Outcome = "declined"
	OutcomeInvalid  Outcome = "invalid"
	OutcomeExpired  Outcome = "expired"
	OutcomeMismatch Outcome = "mismatch"
)

// Resolution is the result of applying an accept/decline action to an
// invite. On acceptance, Collaborator holds the entry to append to the chat.
type Resolution struct {
	Outcome      Outcome
	Collaborator *store.Collaborator
}

// NewInvite creates a pending invite for inviteeEmail with a fixed expiry.
func NewInvite(chatID string, inviter Identity, inviteeEmail, role string, now time.Time) store.ChatInvite {
	return store.ChatInvite{
		ID:           util.NewID("inv"),
		ChatID:       chatID,
		InviterID:    inviter.UserID,
		InviterName:  inviter.Name,
		InviteeEmail: inviteeEmail,
		Role:         role,
		Status:       store.InviteStatusPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(InviteTTL),
	}
}

// Usable reports whether the invite can still be acted on at all.
func Usable(invite store.ChatInvite, now time.Time) bool {
	return invite.Status == store.InviteStatusPending && now.Before(invite.ExpiresAt)
}

// Resolve applies action ("accept" or "decline") for the acting identity.
// Pure: the caller persists the status transition and, for acceptance, the
// returned collaborator. A mismatched email, a non-pending invite, an
// expired invite, or an unknown action each yield a distinct non-success
// outcome so callers can report the right failure.
func Resolve(invite store.ChatInvite, action string, identity Identity, now time.Time) Resolution {
	if identity.Email == "" || identity.Email != invite.InviteeEmail {
		return Resolution{Outcome: OutcomeMismatch}
	}
	if invite.Status != store.InviteStatusPending {
		return Resolution{Outcome: OutcomeInvalid}
	}
	if !now.Before(invite.ExpiresAt) {
		return Resolution{Outcome: OutcomeExpired}
	}

	switch action {
	case "accept":
		joined := now
		return Resolution{
			Outcome: OutcomeAccepted,
			Collaborator: &store.Collaborator{
				UserID:     identity.UserID,
				Name:       identity.Name,
				Email:      identity.Email,
				Avatar:     identity.Avatar,
				Role:       invite.Role,
				JoinedAt:   joined,
				LastActive: &joined,
				IsOnline:   true,
			},
		}
	case "decline":
		return Resolution{Outcome: OutcomeDeclined}
	default:
		return Resolution{Outcome: OutcomeInvalid}
	}
}
