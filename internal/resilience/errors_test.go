package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"

	"github.com/helixir/book-recommendation-service/internal/domain"
)

type fakeTransient struct{ transient bool }

func (e fakeTransient) Error() string     { return "fake" }
func (e fakeTransient) IsTransient() bool { return e.transient }

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCategory
	}{
		{"nil", nil, Permanent},
		{"caller cancelled", fmt.Errorf("wrap: %w", context.Canceled), Permanent},
		{"deadline", context.DeadlineExceeded, Transient},
		{"transient interface true", fakeTransient{transient: true}, Transient},
		{"transient interface false", fmt.Errorf("wrap: %w", fakeTransient{}), Permanent},
		{"circuit open", gobreaker.ErrOpenState, Transient},
		{"rate limited", domain.NewRateLimitError("openlibrary", 0), Transient},
		{"not found", domain.NewNotFoundError("book", "x"), Permanent},
		{"malformed", domain.NewMalformedResponseError("llm", "bad"), Permanent},
		{"external 404", domain.NewExternalAPIError("kcls", 404, "missing", nil), Permanent},
		{"external 503", domain.NewExternalAPIError("kcls", 503, "down", nil), Transient},
		{"external 429", domain.NewExternalAPIError("kcls", 429, "slow", nil), Transient},
		{"message timeout", errors.New("read: i/o timeout"), Transient},
		{"message unauthorized", errors.New("401 unauthorized"), Permanent},
		{"author is not auth", errors.New("author lookup exploded"), Transient},
		{"unknown", errors.New("something odd"), Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestErrorCategory_String(t *testing.T) {
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "permanent", Permanent.String())
	assert.Equal(t, "unknown", ErrorCategory(9).String())
}
