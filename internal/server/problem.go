package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/banux/nxt-shelf/internal/catalog"
	"github.com/banux/nxt-shelf/internal/intake"
	"github.com/banux/nxt-shelf/internal/isbn"
	"github.com/banux/nxt-shelf/internal/query"
)

// problem is an RFC 7807 error body.
type problem struct {
	Type        string       `json:"type,omitempty"`
	Title       string       `json:"title"`
	Status      int          `json:"status"`
	Detail      string       `json:"detail,omitempty"`
	Instance    string       `json:"instance,omitempty"`
	RequestID   string       `json:"request_id,omitempty"`
	FieldErrors []fieldError `json:"field_errors,omitempty"`
	Retryable   bool         `json:"retryable,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeProblem(w http.ResponseWriter, r *http.Request, p problem) {
	if p.Type == "" {
		p.Type = "about:blank"
	}
	if p.Instance == "" {
		p.Instance = r.URL.Path
	}
	if p.RequestID == "" {
		p.RequestID = getRequestID(r)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, problem{Status: http.StatusBadRequest, Title: "Bad Request", Detail: detail})
}

// messageFields maps validation messages to the JSON field they concern.
var messageFields = map[string]string{
	catalog.MsgTitleRequired:       "title",
	catalog.MsgAuthorRequired:      "author",
	catalog.MsgGenreRequired:       "genre",
	catalog.MsgFictionTypeRequired: "fictionType",
	catalog.MsgDifficultyRequired:  "difficulty",
	catalog.MsgStatusRequired:      "status",
	catalog.MsgFormatRequired:      "formats",
	catalog.MsgISBNInvalid:         "isbn",
}

func fieldFor(msg string) string {
	if f, ok := messageFields[msg]; ok {
		return f
	}
	if strings.Contains(strings.ToLower(msg), "format") {
		return "formats"
	}
	return ""
}

// writeError maps err onto a problem response and logs server-side failures.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *catalog.ValidationError
		p    problem
	)
	switch {
	case errors.As(err, &verr):
		p = problem{Status: http.StatusUnprocessableEntity, Title: "Validation Failed", Detail: verr.Error()}
		for _, msg := range verr.Problems {
			p.FieldErrors = append(p.FieldErrors, fieldError{Field: fieldFor(msg), Message: msg})
		}
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, intake.ErrNoMatch):
		p = problem{Status: http.StatusNotFound, Title: "Not Found", Detail: err.Error()}
	case errors.Is(err, isbn.ErrInvalid):
		p = problem{
			Status:      http.StatusUnprocessableEntity,
			Title:       "Invalid ISBN",
			Detail:      err.Error(),
			FieldErrors: []fieldError{{Field: "isbn", Message: catalog.MsgISBNInvalid}},
		}
	case errors.Is(err, query.ErrUnknownSortKey):
		p = problem{Status: http.StatusBadRequest, Title: "Bad Request", Detail: err.Error()}
	case errors.Is(err, isbn.ErrLookup):
		p = problem{Status: http.StatusBadGateway, Title: "Lookup Failed", Detail: err.Error(), Retryable: true}
	case errors.Is(err, catalog.ErrPersistence):
		p = problem{Status: http.StatusInternalServerError, Title: "Storage Error", Detail: err.Error(), Retryable: true}
	default:
		p = problem{Status: http.StatusInternalServerError, Title: "Internal Server Error", Detail: err.Error()}
	}
	if p.Status >= 500 {
		s.log.Errorf("%s %s: %v request_id=%s", r.Method, r.URL.Path, err, getRequestID(r))
	}
	writeProblem(w, r, p)
}
