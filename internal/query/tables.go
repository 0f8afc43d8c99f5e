package query

import (
	"strings"

	"github.com/helixir/book-recommendation-service/internal/domain"
)

// Default table values.
const (
	DefaultLanguage = "english"
	DefaultCount    = 10
	MinCount        = 3
	MaxCount        = 30
)

// DefaultRecency applies when the message carries no recency keyword.
var DefaultRecency = domain.RecencyTarget{Year: 2015, Weight: 0.2}

var stopWords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and", "any", "are", "aren't", "as", "at",
	"be", "because", "been", "before", "being", "below", "between", "both", "but", "by", "can", "can't", "cannot",
	"could", "couldn't", "did", "didn't", "do", "does", "doesn't", "doing", "don't", "down", "during", "each", "few",
	"for", "from", "further", "had", "hadn't", "has", "hasn't", "have", "haven't", "having", "he", "he'd", "he'll",
	"he's", "her", "here", "here's", "hers", "herself", "him", "himself", "his", "how", "how's", "i", "i'd", "i'll",
	"i'm", "i've", "if", "in", "into", "is", "isn't", "it", "it's", "its", "itself", "let's", "me", "more", "most",
	"mustn't", "my", "myself", "no", "nor", "not", "of", "off", "on", "once", "only", "or", "other", "ought", "our",
	"ours", "ourselves", "out", "over", "own", "same", "she", "she'd", "she'll", "she's", "should", "shouldn't", "so",
	"some", "such", "than", "that", "that's", "the", "their", "theirs", "them", "themselves", "then", "there",
	"there's", "these", "they", "they'd", "they'll", "they're", "they've", "this", "those", "through", "to", "too",
	"under", "until", "up", "very", "was", "wasn't", "we", "we'd", "we'll", "we're", "we've", "were", "weren't",
	"what", "what's", "when", "when's", "where", "where's", "which", "while", "who", "who's", "whom", "why", "why's",
	"with", "won't", "would", "wouldn't", "you", "you'd", "you'll", "you're", "you've", "your", "yours", "yourself",
	"yourselves", "please",

	"book", "books", "novel", "novels", "story", "stories", "edition", "editions", "author", "authors", "volume", "volumes",
	"chapter", "chapters", "series",
}

var countWords = []string{"results", "recommendations", "show", "recommend"}

// languageCodes maps language keywords to OpenLibrary language codes.
var languageCodes = map[string]string{
	"english":    "eng",
	"german":     "ger",
	"french":     "fre",
	"spanish":    "spa",
	"chinese":    "chi",
	"italian":    "ita",
	"russian":    "rus",
	"portuguese": "por",
	"japanese":   "jpn",
	"polish":     "pol",
	"dutch":      "dut",
	"hebrew":     "heb",
	"arabic":     "ara",
	"greek":      "gre",
	"hungarian":  "hun",
	"korean":     "kor",
}

var recencyWords = map[string]domain.RecencyTarget{
	"old":          {Year: 1800, Weight: 0.2},
	"classic":      {Year: 1900, Weight: 0.2},
	"classics":     {Year: 1900, Weight: 0.2},
	"modern":       {Year: 2010, Weight: 0.3},
	"contemporary": {Year: 2020, Weight: 0.3},
	"new":          {Year: 2025, Weight: 0.3},
	"recent":       {Year: 2025, Weight: 0.3},
}

// Tables holds the vocabulary the parser recognizes. A Tables value is built
// once and only read afterwards, so it is safe to share between goroutines.
type Tables struct {
	StopWords  map[string]struct{}
	Languages  map[string]string
	Recency    map[string]domain.RecencyTarget
	CountWords map[string]struct{}

	DefaultLanguage string
	DefaultRecency  domain.RecencyTarget
	DefaultCount    int
	MinCount        int
	MaxCount        int
}

// Options overrides parts of the default tables.
type Options struct {
	DefaultLanguage string
	DefaultCount    int
	MinCount        int
	MaxCount        int
	ExtraStopWords  []string
}

// DefaultTables returns the built-in vocabulary. Count words are also stop words.
func DefaultTables() Tables {
	t := Tables{
		StopWords:       make(map[string]struct{}, len(stopWords)+len(countWords)),
		Languages:       make(map[string]string, len(languageCodes)),
		Recency:         make(map[string]domain.RecencyTarget, len(recencyWords)),
		CountWords:      make(map[string]struct{}, len(countWords)),
		DefaultLanguage: DefaultLanguage,
		DefaultRecency:  DefaultRecency,
		DefaultCount:    DefaultCount,
		MinCount:        MinCount,
		MaxCount:        MaxCount,
	}

	for _, w := range stopWords {
		t.StopWords[w] = struct{}{}
	}
	for _, w := range countWords {
		t.CountWords[w] = struct{}{}
		t.StopWords[w] = struct{}{}
	}
	for k, v := range languageCodes {
		t.Languages[k] = v
	}
	for k, v := range recencyWords {
		t.Recency[k] = v
	}

	return t
}

// NewTables returns the default tables with the non-zero options applied.
func NewTables(opts Options) Tables {
	t := DefaultTables()

	if opts.DefaultLanguage != "" {
		t.DefaultLanguage = strings.ToLower(opts.DefaultLanguage)
	}
	if opts.MinCount > 0 {
		t.MinCount = opts.MinCount
	}
	if opts.MaxCount > 0 {
		t.MaxCount = opts.MaxCount
	}
	if opts.DefaultCount > 0 {
		t.DefaultCount = opts.DefaultCount
	}
	t.DefaultCount = t.clamp(t.DefaultCount)

	for _, w := range opts.ExtraStopWords {
		if w = domain.NormalizeKeyword(w); w != "" {
			t.StopWords[w] = struct{}{}
		}
	}

	return t
}

// LanguageCode returns the OpenLibrary code for a language key, falling back
// to the code of the default language.
func (t Tables) LanguageCode(lang string) string {
	if code, ok := t.Languages[lang]; ok {
		return code
	}
	if code, ok := t.Languages[t.DefaultLanguage]; ok {
		return code
	}
	return "eng"
}

func (t Tables) clamp(n int) int {
	if n < t.MinCount {
		return t.MinCount
	}
	if n > t.MaxCount {
		return t.MaxCount
	}
	return n
}
