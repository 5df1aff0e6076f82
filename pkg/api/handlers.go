package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	etymerrors "github.com/odvcencio/etymon/pkg/errors"
	"github.com/odvcencio/etymon/pkg/etym"
	"github.com/odvcencio/etymon/pkg/logging"
)

// envelope is the uniform response body. Exactly one of Data and Error is
// set, discriminated by Success.
type envelope struct {
	Success     bool                  `json:"success"`
	Data        any                   `json:"data,omitempty"`
	Error       string                `json:"error,omitempty"`
	Code        string                `json:"code,omitempty"`
	Retryable   bool                  `json:"retryable,omitempty"`
	Suggestions []etym.WordSuggestion `json:"suggestions,omitempty"`
}

type lookupRequest struct {
	Word string `json:"word"`
}

func (s *Server) handleGetEtymology(w http.ResponseWriter, r *http.Request) {
	s.lookup(w, r, chi.URLParam(r, "word"))
}

func (s *Server) handlePostEtymology(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON with a word field")
		return
	}
	s.lookup(w, r, req.Word)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request, word string) {
	ctx := r.Context()
	if s.cfg.RequestDeadline > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestDeadline)
		defer cancel()
	}

	start := time.Now()
	result, err := s.pipe.Lookup(ctx, word)
	elapsed := time.Since(start)

	if err != nil {
		status := statusForError(err)
		observeRequest(r.Method, status, elapsed)
		s.logLookup(r, word, status, elapsed, err)
		if status == http.StatusServiceUnavailable {
			// The ladder only moves on spend recalculation; an hour is a
			// reasonable revisit interval for clients.
			w.Header().Set("Retry-After", "3600")
		}
		writeLookupError(w, status, err)
		return
	}

	observeRequest(r.Method, http.StatusOK, elapsed)
	s.logLookup(r, result.Word, http.StatusOK, elapsed, nil)
	writeData(w, http.StatusOK, result)
}

func (s *Server) logLookup(r *http.Request, word string, status int, elapsed time.Duration, err error) {
	details := map[string]any{
		"status":     status,
		"elapsed_ms": elapsed.Milliseconds(),
		"request_id": requestID(r.Context()),
	}
	if err != nil {
		details["code"] = string(etymerrors.GetCode(err))
		s.log.Log(logging.Event{
			Timestamp: time.Now(), Level: logging.LevelWarn, Category: logging.CategoryAPI,
			EventType: "lookup_failed", Word: word, Details: details, Message: err.Error(),
		})
		return
	}
	s.log.Log(logging.Event{
		Timestamp: time.Now(), Level: logging.LevelInfo, Category: logging.CategoryAPI,
		EventType: "lookup_served", Word: word, Details: details,
	})
}

// statusForError maps the error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch etymerrors.GetCode(err) {
	case etymerrors.ErrCodeInputInvalid:
		return http.StatusBadRequest
	case etymerrors.ErrCodeWordNotFound:
		return http.StatusNotFound
	case etymerrors.ErrCodeBudgetExceeded:
		return http.StatusServiceUnavailable
	case etymerrors.ErrCodeUpstreamTimeout,
		etymerrors.ErrCodeMalformedModelOutput,
		etymerrors.ErrCodeSchemaValidation,
		etymerrors.ErrCodeModelAPI,
		etymerrors.ErrCodeModelCircuitOpen:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeLookupError(w http.ResponseWriter, status int, err error) {
	env := envelope{Success: false, Error: err.Error()}
	if e, ok := err.(*etymerrors.Error); ok {
		env.Error = e.ForUser()
		env.Code = string(e.Code)
		env.Retryable = e.Retryable
		if raw, ok := e.Context["suggestions"]; ok {
			if suggestions, ok := raw.([]etym.WordSuggestion); ok {
				env.Suggestions = suggestions
			}
		}
	}
	writeJSON(w, status, env)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
