// Package llm turns free-text requests into candidate books through a chat
// model and provides the embedding model used for semantic ranking.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helixir/book-recommendation-service/internal/domain"
)

// SystemPrompt instructs the model to answer with a bare JSON array of books.
const SystemPrompt = `You are an assistant that generates book recommendations based on user input.
Default to 5 books unless user says otherwise.
Output a JSON array of books, no extra text.

Each book is an object with
"title" (string, super concise title, disregard any sub titles),
"author" (string, minimally concise),
"media_type" ("book" by default, or "audiobook", "ebook" if specified).`

// generateOperation labels candidate generation in metrics.
const generateOperation = "generate_candidates"

// CandidateGenerator produces candidate books from a prompt.
type CandidateGenerator interface {
	// Generate returns at most maxCount books. A response that cannot be
	// parsed yields an error wrapping domain.ErrMalformedResponse.
	Generate(ctx context.Context, prompt string, maxCount int) ([]domain.CandidateBook, error)

	// Provider returns the provider name.
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}

// BuildUserPrompt appends the requested count to the user's prompt.
func BuildUserPrompt(prompt string, maxCount int) string {
	prompt = strings.TrimSpace(prompt)
	if maxCount <= 0 {
		return prompt
	}
	return fmt.Sprintf("%s\n\nRecommend %d books.", prompt, maxCount)
}

// rawCandidate is one element of the model's JSON array.
type rawCandidate struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	MediaType string `json:"media_type"`
}

// ParseCandidates parses the model output into candidate books. It tolerates
// markdown code fences, text around the array and a {"books": [...]} wrapper.
// Elements without a title are dropped.
func ParseCandidates(content string, maxCount int) ([]domain.CandidateBook, error) {
	payload := extractJSON(content)
	if payload == "" {
		return nil, domain.NewMalformedResponseError("llm", "no JSON array in response")
	}

	var raw []rawCandidate
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		var wrapped struct {
			Books []rawCandidate `json:"books"`
		}
		if werr := json.Unmarshal([]byte(payload), &wrapped); werr != nil || wrapped.Books == nil {
			return nil, domain.NewMalformedResponseError("llm", err.Error())
		}
		raw = wrapped.Books
	}

	books := make([]domain.CandidateBook, 0, len(raw))
	for _, r := range raw {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			continue
		}
		books = append(books, domain.CandidateBook{
			Title:     title,
			Author:    strings.TrimSpace(r.Author),
			MediaType: domain.ParseMediaType(r.MediaType),
		})
		if maxCount > 0 && len(books) == maxCount {
			break
		}
	}
	return books, nil
}

// extractJSON returns the outermost JSON array or object in s.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if start, end := strings.Index(s, "["), strings.LastIndex(s, "]"); start >= 0 && end > start {
		if obj := strings.Index(s, "{"); obj < 0 || obj > start || !strings.HasSuffix(s, "}") {
			return s[start : end+1]
		}
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		return s[start : end+1]
	}
	return ""
}
