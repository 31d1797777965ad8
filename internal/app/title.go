package app

import "strings"

// DeriveTitle produces a chat title from the first user message. Short
// content is used verbatim; otherwise the first sentence when it fits, and
// finally a word-wrapped prefix with an ellipsis. Pure and deterministic.
func DeriveTitle(content string) string {
	clean := strings.TrimSpace(content)
	if clean == "" {
		return "New Chat"
	}
	if len(clean) <= 50 {
		return clean
	}

	// Natural break point first.
	sentences := strings.FieldsFunc(clean, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	if len(sentences) > 0 {
		first := strings.TrimSpace(sentences[0])
		if first != "" && len(sentences[0]) <= 50 {
			return first
		}
	}

	// Fallback to word boundary.
	var title string
	for _, word := range strings.Split(clean, " ") {
		if len(title)+1+len(word) > 47 {
			break
		}
		if title != "" {
			title += " "
		}
		title += word
	}

	return title + "..."
}
