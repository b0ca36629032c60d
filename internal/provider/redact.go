package provider

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"sportsync/internal/models"
)

func redactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if sensitive(name) || sensitive(value) {
			out[name] = models.RedactedValue
			continue
		}
		out[name] = value
	}
	return out
}

func sensitive(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "key") || strings.Contains(s, "secret")
}

type truncatedBody struct {
	Truncated      bool   `json:"truncated"`
	Preview        string `json:"preview"`
	OriginalLength int    `json:"originalLength"`
}

// capBody keeps bodies up to MaxLoggedBodyChars verbatim and replaces larger
// ones with a preview summary. Non-JSON bodies are stored as a JSON string.
func capBody(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	s := string(body)
	n := utf8.RuneCountInString(s)
	if n <= models.MaxLoggedBodyChars {
		if json.Valid(body) {
			return json.RawMessage(body)
		}
		quoted, _ := json.Marshal(s)
		return quoted
	}

	preview := []rune(s)[:models.LoggedPreviewChars]
	out, _ := json.Marshal(truncatedBody{Truncated: true, Preview: string(preview), OriginalLength: n})
	return out
}
