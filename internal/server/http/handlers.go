package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/observability"
	"github.com/helixir/book-recommendation-service/internal/pipeline"
	"github.com/helixir/book-recommendation-service/internal/session"
)

// chatRequest is the JSON request body of POST /chat.
type chatRequest struct {
	Message   string `json:"message" validate:"required,max=2000"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
}

// chatResponse is the JSON response body of POST /chat. Message is HTML.
type chatResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Degraded  bool   `json:"degraded,omitempty"`
}

// transcriptBook is the assistant turn recorded in the session transcript.
type transcriptBook struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

// chat handles POST /chat.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeChatRequest(w, r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = session.NewID()
	}

	ctx := observability.WithSessionID(r.Context(), sessionID)
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}
	logger := observability.WithRequestContext(s.logger, observability.RequestIDFromContext(ctx), sessionID)

	history, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load session transcript")
		history = nil
	}
	userEntry := domain.ChatEntry{Role: domain.ChatRoleUser, Content: req.Message}
	prompt := session.BuildPrompt(append(history, userEntry), s.systemPrompt)

	result, err := s.recommender.Recommend(ctx, pipeline.Request{
		Message:   req.Message,
		Prompt:    prompt,
		SessionID: sessionID,
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, err)
		}
		writeDomainError(w, err)
		return
	}

	html, err := s.renderer.Render(result.Books, result.Query.Language)
	if err != nil {
		logger.Error().Err(err).Msg("failed to render recommendations")
		writeDomainError(w, err)
		return
	}

	assistantEntry := domain.ChatEntry{Role: domain.ChatRoleAssistant, Content: transcriptContent(result.Books)}
	if err := s.sessions.Append(ctx, sessionID, userEntry, assistantEntry); err != nil {
		logger.Warn().Err(err).Msg("failed to record session transcript")
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Message:   html,
		SessionID: sessionID,
		Degraded:  result.Degraded,
	})
}

// decodeChatRequest reads, trims and validates the request body.
func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, error) {
	var req chatRequest

	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, errRequestTooLarge
		}
		return req, domain.NewValidationError("body", "invalid JSON request body")
	}

	req.Message = strings.TrimSpace(req.Message)
	req.SessionID = strings.TrimSpace(req.SessionID)

	if err := s.validate.Struct(req); err != nil {
		return req, validationError(err)
	}
	return req, nil
}

// validationError converts the first validator failure into a domain error.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.NewValidationError("body", err.Error())
	}

	fe := fieldErrs[0]
	field := "message"
	if fe.StructField() == "SessionID" {
		field = "session_id"
	}
	switch fe.Tag() {
	case "required":
		return domain.NewValidationError(field, "is required")
	case "max":
		return domain.NewValidationError(field, fmt.Sprintf("must be at most %s characters", fe.Param()))
	default:
		return domain.NewValidationError(field, "is invalid")
	}
}

// transcriptContent is the assistant entry stored for the next turn's prompt.
func transcriptContent(books []domain.RankedBook) string {
	out := make([]transcriptBook, len(books))
	for i, b := range books {
		out[i] = transcriptBook{Title: b.Title, Author: b.Author}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// errRequestTooLarge maps to 413.
var errRequestTooLarge = errors.New("request body too large")

// writeDomainError maps domain errors to HTTP status codes and writes the error response.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, errRequestTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Field+" "+ve.Message)
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable), errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
