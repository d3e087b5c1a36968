package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/banux/nxt-shelf/internal/catalog"
	"github.com/banux/nxt-shelf/internal/intake"
	"github.com/banux/nxt-shelf/internal/isbn"
	"github.com/banux/nxt-shelf/internal/query"
)

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"books":  s.lib.Len(),
	})
}

// bookList is the body of GET /api/books.
type bookList struct {
	Books []catalog.Book `json:"books"`
	Total int            `json:"total"`
}

// handleListBooks filters, sorts and pages the collection.
// GET /api/books?genre=&status=&fictionType=&format=&search=&sort=&order=&offset=&limit=
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	req, err := query.Parse(r.URL.Query())
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	page, total, err := req.Apply(s.lib.Books())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookList{Books: page, Total: total})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	bk, err := s.lib.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bk)
}

// handleCreateBook adds a book. POST /api/books with a BookData body.
func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var d catalog.BookData
	if err := decodeJSON(r, &d); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	bk, err := s.lib.Add(r.Context(), d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/books/"+bk.ID)
	writeJSON(w, http.StatusCreated, bk)
}

// handleUpdateBook replaces every mutable field of a book.
// PUT /api/books/{id}
func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	var d catalog.BookData
	if err := decodeJSON(r, &d); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	bk, err := s.lib.Update(r.Context(), mux.Vars(r)["id"], d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bk)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	if _, err := s.lib.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImport adds every record of a JSON array, skipping duplicates.
// POST /api/import
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var records []catalog.BookData
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		badRequest(w, r, "expected a JSON array of books: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.lib.ImportMany(r.Context(), records))
}

// handleExport downloads the whole collection as a JSON array.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	name := "nxt-shelf-" + time.Now().Format("2006-01-02") + ".json"
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	writeJSON(w, http.StatusOK, s.lib.Export())
}

// handleLookup answers GET /api/lookup?isbn= in the lookup endpoint's wire
// shape, so another instance can point its lookup URL here.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	if s.lookup == nil {
		writeProblem(w, r, problem{Status: http.StatusNotImplemented, Title: "Lookup Disabled"})
		return
	}
	res, err := s.lookup.Lookup(r.Context(), r.URL.Query().Get("isbn"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res == nil {
		writeJSON(w, http.StatusNotFound, isbn.Response{Success: false})
		return
	}
	writeJSON(w, http.StatusOK, isbn.Response{Success: true, Book: res})
}

// handleIntake looks an ISBN up and returns the pre-filled draft with any
// duplicate prompt. Nothing is saved.
// POST /api/intake {"isbn": "..."}
func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	if s.lookup == nil {
		writeProblem(w, r, problem{Status: http.StatusNotImplemented, Title: "Lookup Disabled"})
		return
	}
	var body struct {
		ISBN string `json:"isbn"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	p, err := s.intake.Propose(r.Context(), body.ISBN)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// errNeedsChoice stops Resolve when the client has not answered the prompt yet.
var errNeedsChoice = errors.New("duplicate needs a choice")

// resolveResponse is the body of POST /api/intake/resolve.
type resolveResponse struct {
	intake.Outcome
	Book *catalog.Book `json:"book,omitempty"`
}

// handleIntakeResolve settles an incoming book against the collection.
//
// Without a choice and with a duplicate present, it answers 409 with the
// prompt. With a choice, merges are committed immediately; add and add-copy
// outcomes return the staged draft for the client to review and save.
// POST /api/intake/resolve {"book": {...}, "choice": "add_copy|merge|cancel"}
func (s *Server) handleIntakeResolve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Book   catalog.BookData `json:"book"`
		Choice string           `json:"choice"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	incoming := body.Book.Normalize()

	var (
		prompter intake.Prompter
		asked    *intake.Prompt
	)
	if body.Choice == "" {
		prompter = intake.PromptFunc(func(_ context.Context, p intake.Prompt) (intake.Choice, error) {
			asked = &p
			return "", errNeedsChoice
		})
	} else {
		c, err := intake.ParseChoice(body.Choice)
		if err != nil {
			badRequest(w, r, err.Error())
			return
		}
		prompter = intake.Always(c)
	}

	out, err := s.intake.Resolve(r.Context(), incoming, prompter)
	if errors.Is(err, errNeedsChoice) && asked != nil {
		writeJSON(w, http.StatusConflict, asked)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := resolveResponse{Outcome: out}
	if out.Action == intake.ActionMerge {
		bk, err := s.intake.Commit(r.Context(), out)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Book = &bk
	}
	writeJSON(w, http.StatusOK, resp)
}

// meta lists the enumerations the UI needs for its forms and filters.
type meta struct {
	Genres       []string         `json:"genres"`
	FictionTypes []string         `json:"fictionTypes"`
	Difficulties []string         `json:"difficulties"`
	Statuses     []string         `json:"statuses"`
	Formats      []catalog.Format `json:"formats"`
	SortKeys     []query.SortKey  `json:"sortKeys"`
	Lookup       bool             `json:"lookup"`
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, meta{
		Genres:       catalog.Genres,
		FictionTypes: catalog.FictionTypes,
		Difficulties: catalog.Difficulties,
		Statuses:     catalog.Statuses,
		Formats:      catalog.Formats,
		SortKeys:     query.SortKeys,
		Lookup:       s.lookup != nil,
	})
}
