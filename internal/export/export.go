// Package export renders chat transcripts for download.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/theBrainly/chatgpt-clone/internal/store"
)

type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat maps a query-string value to a Format. Empty means JSON.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return FormatJSON, nil
	case "html":
		return FormatHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", raw)
	}
}

// Result is a rendered transcript ready to be served as a download.
type Result struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Transcript renders the chat in the requested format.
func Transcript(chat store.Chat, format Format) (*Result, error) {
	switch format {
	case FormatJSON:
		return transcriptJSON(chat)
	case FormatHTML:
		return transcriptHTML(chat)
	case FormatMarkdown:
		return transcriptMarkdown(chat)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func transcriptJSON(chat store.Chat) (*Result, error) {
	data, err := json.MarshalIndent(chat, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal chat: %w", err)
	}
	return &Result{
		Data:        data,
		ContentType: "application/json",
		Filename:    filename(chat.Title, "json"),
	}, nil
}

type templateMessage struct {
	Role    string
	Author  string
	Content string
	SentAt  time.Time
}

type templateData struct {
	Title     string
	Owner     string
	UpdatedAt time.Time
	Messages  []templateMessage
}

var transcriptTemplate = template.Must(template.New("transcript").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(transcriptHTMLTemplate))

func transcriptHTML(chat store.Chat) (*Result, error) {
	data := templateData{
		Title:     chat.Title,
		Owner:     chat.OwnerName,
		UpdatedAt: chat.UpdatedAt,
	}
	for _, m := range chat.Messages {
		data.Messages = append(data.Messages, templateMessage{
			Role:    m.Role,
			Author:  displayAuthor(m),
			Content: m.Content,
			SentAt:  m.Timestamp,
		})
	}

	var buf bytes.Buffer
	if err := transcriptTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render transcript: %w", err)
	}
	return &Result{
		Data:        buf.Bytes(),
		ContentType: "text/html; charset=utf-8",
		Filename:    filename(chat.Title, "html"),
	}, nil
}

func transcriptMarkdown(chat store.Chat) (*Result, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", chat.Title)
	if chat.OwnerName != "" {
		fmt.Fprintf(&b, "Started by %s. ", chat.OwnerName)
	}
	fmt.Fprintf(&b, "Last updated %s.\n\n", chat.UpdatedAt.Format("Jan 2, 2006"))

	for _, m := range chat.Messages {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", displayAuthor(m), m.Content)
		for _, a := range m.Attachments {
			fmt.Fprintf(&b, "- [%s](%s)\n", a.Name, a.URL)
		}
		if len(m.Attachments) > 0 {
			b.WriteString("\n")
		}
	}

	return &Result{
		Data:        []byte(b.String()),
		ContentType: "text/markdown; charset=utf-8",
		Filename:    filename(chat.Title, "md"),
	}, nil
}

func displayAuthor(m store.Message) string {
	if m.AuthorName != "" {
		return m.AuthorName
	}
	if m.Role == store.RoleAssistant {
		return "Assistant"
	}
	return "User"
}

// filename slugs the title into a safe download name.
func filename(title, ext string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, strings.TrimSpace(title))
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "chat"
	}
	if len(slug) > 60 {
		slug = slug[:60]
	}
	return slug + "." + ext
}

const transcriptHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .message { padding: 1rem; margin: 1rem 0; border-left: 3px solid #ccc; }
    .message.assistant { background: #f5f5f5; border-left-color: #10a37f; }
    .author { font-weight: bold; margin-bottom: 0.5rem; }
    .when { color: #999; font-size: 0.8em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{if .Owner}}{{.Owner}} | {{end}}{{formatDate .UpdatedAt "Jan 2, 2006"}}</div>
  {{range .Messages}}
  <div class="message {{lower .Role}}">
    <div class="author">{{.Author}} <span class="when">{{formatDate .SentAt "Jan 2, 2006 15:04"}}</span></div>
    <div>{{.Content}}</div>
  </div>
  {{end}}
</body>
</html>`
