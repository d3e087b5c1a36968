package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/banux/nxt-shelf/internal/isbn"
	"github.com/banux/nxt-shelf/internal/scan"
)

// scanState is the body of GET /api/scan and the scan control endpoints.
type scanState struct {
	State         scan.State `json:"state"`
	Pending       []string   `json:"pending"`
	QuietPeriodMS int64      `json:"quietPeriodMs"`
	BatchReady    bool       `json:"batchReady"`
}

func (s *Server) currentScanState() scanState {
	sc := s.scanner
	sc.mu.Lock()
	ready := sc.ready
	sc.mu.Unlock()
	return scanState{
		State:         sc.session.State(),
		Pending:       sc.session.Pending(),
		QuietPeriodMS: sc.session.QuietPeriod().Milliseconds(),
		BatchReady:    ready,
	}
}

func (s *Server) handleScanState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentScanState())
}

// handleScanStart opens a capture session. The browser decodes frames and
// posts each code to /api/scan/detect.
func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	// The session outlives this request.
	err := s.scanner.session.Start(context.Background(), s.scanner.sink, nil)
	if errors.Is(err, scan.ErrActive) {
		writeProblem(w, r, problem{Status: http.StatusConflict, Title: "Scan Active", Detail: err.Error()})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.currentScanState())
}

// handleScanDetect feeds one decoded barcode into the running session.
// POST /api/scan/detect {"code": "..."}
func (s *Server) handleScanDetect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if !s.scanner.feed.Push(body.Code) {
		writeProblem(w, r, problem{Status: http.StatusConflict, Title: "Not Scanning", Detail: "start a scan session first"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": isbn.ValidateFormat(body.Code).Valid,
		"pending":  s.scanner.session.Pending(),
	})
}

func (s *Server) handleScanStop(w http.ResponseWriter, r *http.Request) {
	s.scanner.session.Stop()
	writeJSON(w, http.StatusOK, s.currentScanState())
}

// handleScanBatch returns the last finished batch and clears it. 204 means
// no batch is waiting.
func (s *Server) handleScanBatch(w http.ResponseWriter, r *http.Request) {
	codes, ok := s.scanner.take()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"codes": codes})
}
