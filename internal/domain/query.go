package domain

import "strings"

// RecencyTarget steers ranking toward books published near Year. Weight is the
// blend weight of the recency component.
type RecencyTarget struct {
	Year   int     `mapstructure:"year" json:"year"`
	Weight float64 `mapstructure:"weight" json:"weight"`
}

// ParsedQuery is the structured form of one user message.
// It is produced by the query parser and never mutated afterwards.
type ParsedQuery struct {
	// Terms are the cleaned search tokens in their original order.
	Terms []string `json:"terms"`

	// Language is a recognized language key such as "english" or "german".
	Language string `json:"language"`

	// Recency is the target publication year and its blend weight.
	Recency RecencyTarget `json:"recency"`

	// ResultCount is the number of books to return, already clamped.
	ResultCount int `json:"result_count"`
}

// SearchText joins the terms into a keyword search string.
func (q ParsedQuery) SearchText() string {
	return strings.Join(q.Terms, " ")
}

// ChatRole is the speaker of one transcript entry.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatEntry is one role/content pair of a conversation transcript.
type ChatEntry struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}
