package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down,
// so there is nothing meaningful to report here.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over the chats fts column, restricted to
// chats the user owns or collaborates on, ranked by ts_rank.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := `c.fts @@ plainto_tsquery('english', $1)
		AND (c.owner_id = $2 OR EXISTS (
			SELECT 1 FROM chat_collaborators cc
			WHERE cc.chat_id = c.id AND cc.user_id = $2
		))`

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM chats c WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text, q.UserID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT c.id, c.title,
			ts_headline('english', coalesce(c.messages::text, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			c.owner_id
		FROM chats c
		WHERE %s
		ORDER BY ts_rank(c.fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text, q.UserID)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.OwnerID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all chats as index records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ChatRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.owner_id,
			coalesce(array_agg(cc.user_id) FILTER (WHERE cc.user_id IS NOT NULL), '{}')
		FROM chats c
		LEFT JOIN chat_collaborators cc ON cc.chat_id = c.id
		GROUP BY c.id, c.title, c.owner_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	defer rows.Close()

	records := make([]ChatRecord, 0)
	for rows.Next() {
		var rec ChatRecord
		var members []byte
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.OwnerID, &members); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		rec.MemberIDs = append(parsePgArray(members), rec.OwnerID)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}

	return records, nil
}

// parsePgArray decodes a simple {a,b,c} text array of plain identifiers.
func parsePgArray(raw []byte) []string {
	trimmed := strings.Trim(string(raw), "{}")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, ",")
}
