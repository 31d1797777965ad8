package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate is returned when an insert collides with an existing row
// (chat ID reuse, invite ID reuse). Callers surface it as a conflict.
var ErrDuplicate = errors.New("duplicate key")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const chatColumns = `
	id, title, owner_id, owner_name, messages,
	is_shared, share_is_public, share_allow_editing, share_allow_invites,
	share_expires_at, share_token, created_at, updated_at
`

func (s *PostgresStore) InsertChat(ctx context.Context, chat Chat) error {
	messages, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chats (id, title, owner_id, owner_name, messages)
		VALUES ($1, $2, $3, $4, $5)
	`, chat.ID, chat.Title, chat.OwnerID, chat.OwnerName, messages)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChat(ctx context.Context, chatID string) (Chat, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	chat, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Chat{}, err
		}
		return Chat{}, fmt.Errorf("get chat: %w", err)
	}

	collaborators, err := s.listCollaborators(ctx, chatID)
	if err != nil {
		return Chat{}, err
	}
	chat.Collaborators = collaborators
	return chat, nil
}

func (s *PostgresStore) ListChatsForOwner(ctx context.Context, ownerID string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chatColumns+`
		FROM chats
		WHERE owner_id=$1
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()
	return collectChats(rows)
}

// ListChatsForCollaborator returns chats where userID appears in the
// collaborator table (owned chats excluded).
func (s *PostgresStore) ListChatsForCollaborator(ctx context.Context, userID string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chatColumns+`
		FROM chats
		WHERE id IN (SELECT chat_id FROM chat_collaborators WHERE user_id=$1)
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list collaborating chats: %w", err)
	}
	defer rows.Close()
	return collectChats(rows)
}

// UpdateChat applies a partial update. A nil title leaves the title alone;
// nil messages leave the transcript alone. The message list is replaced
// wholesale: the later of two concurrent persists wins.
func (s *PostgresStore) UpdateChat(ctx context.Context, chatID string, title *string, messages []Message) (bool, error) {
	var payload any
	if messages != nil {
		raw, err := json.Marshal(messages)
		if err != nil {
			return false, fmt.Errorf("marshal messages: %w", err)
		}
		payload = raw
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE chats
		SET title = COALESCE($2, title),
			messages = COALESCE($3, messages),
			updated_at = NOW()
		WHERE id=$1
	`, chatID, title, payload)
	if err != nil {
		return false, fmt.Errorf("update chat: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (s *PostgresStore) DeleteChat(ctx context.Context, chatID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID)
	if err != nil {
		return false, fmt.Errorf("delete chat: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return false, nil
	}
	// Collaborator rows go with the chat; invites and presence records are
	// weak references and are left to expire on their own.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_collaborators WHERE chat_id=$1`, chatID); err != nil {
		return true, fmt.Errorf("delete collaborators: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) SetShareSettings(ctx context.Context, chatID string, isShared bool, settings ShareSettings) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chats
		SET is_shared = $2,
			share_is_public = $3,
			share_allow_editing = $4,
			share_allow_invites = $5,
			share_expires_at = $6,
			share_token = $7,
			updated_at = NOW()
		WHERE id=$1
	`, chatID, isShared, settings.IsPublic, settings.AllowEditing, settings.AllowInvites,
		settings.ExpiresAt, nullIfEmpty(settings.ShareToken))
	if err != nil {
		return false, fmt.Errorf("set share settings: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// AddCollaborator inserts atomically; a concurrent duplicate add is a no-op
// and reports false.
func (s *PostgresStore) AddCollaborator(ctx context.Context, chatID string, c Collaborator) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_collaborators (chat_id, user_id, name, email, avatar, role, joined_at, last_active, is_online)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chat_id, user_id) DO NOTHING
	`, chatID, c.UserID, c.Name, c.Email, c.Avatar, c.Role, c.JoinedAt, c.LastActive, c.IsOnline)
	if err != nil {
		return false, fmt.Errorf("add collaborator: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected > 0 {
		_, _ = s.db.ExecContext(ctx, `UPDATE chats SET updated_at=NOW() WHERE id=$1`, chatID)
	}
	return affected > 0, nil
}

func (s *PostgresStore) RemoveCollaborator(ctx context.Context, chatID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM chat_collaborators WHERE chat_id=$1 AND user_id=$2
	`, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("remove collaborator: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected > 0 {
		_, _ = s.db.ExecContext(ctx, `UPDATE chats SET updated_at=NOW() WHERE id=$1`, chatID)
	}
	return affected > 0, nil
}

// TouchCollaborator refreshes the denormalized activity fields. Missing rows
// (the owner, or a share-link viewer) are fine.
func (s *PostgresStore) TouchCollaborator(ctx context.Context, chatID, userID string, online bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_collaborators
		SET last_active = NOW(), is_online = $3
		WHERE chat_id=$1 AND user_id=$2
	`, chatID, userID, online)
	if err != nil {
		return fmt.Errorf("touch collaborator: %w", err)
	}
	return nil
}

func (s *PostgresStore) listCollaborators(ctx context.Context, chatID string) ([]Collaborator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, name, email, COALESCE(avatar, ''), role, joined_at, last_active, is_online
		FROM chat_collaborators
		WHERE chat_id=$1
		ORDER BY joined_at
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	items := make([]Collaborator, 0)
	for rows.Next() {
		var c Collaborator
		if err := rows.Scan(&c.UserID, &c.Name, &c.Email, &c.Avatar, &c.Role, &c.JoinedAt, &c.LastActive, &c.IsOnline); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collaborators: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertInvite(ctx context.Context, invite ChatInvite) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_invites (id, chat_id, inviter_id, inviter_name, invitee_email, role, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, invite.ID, invite.ChatID, invite.InviterID, invite.InviterName, invite.InviteeEmail,
		invite.Role, invite.Status, invite.CreatedAt, invite.ExpiresAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInvite(ctx context.Context, inviteID string) (ChatInvite, error) {
	var invite ChatInvite
	err := s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, inviter_id, inviter_name, invitee_email, role, status, created_at, expires_at
		FROM chat_invites
		WHERE id=$1
	`, inviteID).Scan(&invite.ID, &invite.ChatID, &invite.InviterID, &invite.InviterName,
		&invite.InviteeEmail, &invite.Role, &invite.Status, &invite.CreatedAt, &invite.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ChatInvite{}, err
		}
		return ChatInvite{}, fmt.Errorf("get invite: %w", err)
	}
	return invite, nil
}

// HasPendingInvite reports whether an unexpired pending invite already exists
// for the (chat, email) pair.
func (s *PostgresStore) HasPendingInvite(ctx context.Context, chatID, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM chat_invites
			WHERE chat_id=$1 AND invitee_email=$2 AND status='pending' AND expires_at > NOW()
		)
	`, chatID, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending invite: %w", err)
	}
	return exists, nil
}

// TransitionInvite moves a pending, unexpired invite to status. The WHERE
// clause makes the transition one-way: a second accept matches zero rows.
func (s *PostgresStore) TransitionInvite(ctx context.Context, inviteID, status string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chat_invites
		SET status=$2
		WHERE id=$1 AND status='pending' AND expires_at > NOW()
	`, inviteID, status)
	if err != nil {
		return false, fmt.Errorf("transition invite: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (s *PostgresStore) UpsertMemory(ctx context.Context, m Memory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_memories (id, user_id, key, value, context)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, key) DO UPDATE
			SET value=EXCLUDED.value, context=EXCLUDED.context, updated_at=NOW()
	`, m.ID, m.UserID, m.Key, m.Value, m.Context)
	if err != nil {
		return fmt.Errorf("upsert memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMemories(ctx context.Context, userID string) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, key, value, context, created_at, updated_at
		FROM user_memories
		WHERE user_id=$1
		ORDER BY key
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	items := make([]Memory, 0)
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Key, &m.Value, &m.Context, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteMemory(ctx context.Context, userID, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_memories WHERE user_id=$1 AND key=$2`, userID, key)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return nil
}

type chatScanner interface {
	Scan(dest ...any) error
}

func scanChat(row chatScanner) (Chat, error) {
	var (
		chat         Chat
		messages     []byte
		settings     ShareSettings
		shareExpires sql.NullTime
		shareToken   sql.NullString
	)
	err := row.Scan(
		&chat.ID, &chat.Title, &chat.OwnerID, &chat.OwnerName, &messages,
		&chat.IsShared, &settings.IsPublic, &settings.AllowEditing, &settings.AllowInvites,
		&shareExpires, &shareToken, &chat.CreatedAt, &chat.UpdatedAt,
	)
	if err != nil {
		return Chat{}, err
	}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &chat.Messages); err != nil {
			return Chat{}, fmt.Errorf("unmarshal messages: %w", err)
		}
	}
	if chat.Messages == nil {
		chat.Messages = []Message{}
	}
	if chat.IsShared {
		if shareExpires.Valid {
			expires := shareExpires.Time
			settings.ExpiresAt = &expires
		}
		settings.ShareToken = shareToken.String
		chat.ShareSettings = &settings
	}
	chat.Collaborators = []Collaborator{}
	return chat, nil
}

func collectChats(rows *sql.Rows) ([]Chat, error) {
	items := make([]Chat, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		items = append(items, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return items, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
