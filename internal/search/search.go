// Package search provides full-text search over chats, Meilisearch first
// with a PostgreSQL fallback.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	OwnerID string `json:"ownerId"`
}

// Query describes a search request. UserID scopes results to chats the
// user owns or collaborates on.
type Query struct {
	Text   string
	UserID string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ChatRecord is the data we index for a chat. MemberIDs carries the owner
// plus all collaborators so membership is a single filter.
type ChatRecord struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Preview   string   `json:"preview"`
	OwnerID   string   `json:"ownerId"`
	MemberIDs []string `json:"memberIds"`
}
