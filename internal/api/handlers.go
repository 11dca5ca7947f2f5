package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/FocuswithJustin/TeiSync/core/cache"
	"github.com/FocuswithJustin/TeiSync/core/errors"
	"github.com/FocuswithJustin/TeiSync/core/ir"
	"github.com/FocuswithJustin/TeiSync/core/library"
	"github.com/FocuswithJustin/TeiSync/core/mapping"
	teixml "github.com/FocuswithJustin/TeiSync/core/xml"
	"github.com/FocuswithJustin/TeiSync/internal/logging"
	"github.com/FocuswithJustin/TeiSync/internal/validation"
)

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status   string      `json:"status"`
	Version  string      `json:"version"`
	Uptime   string      `json:"uptime"`
	Sessions int         `json:"sessions"`
	Cache    cache.Stats `json:"cache"`
}

// CreateSessionRequest is the body of POST /api/sessions. Paths are
// relative to the corpus directory.
type CreateSessionRequest struct {
	Source string `json:"source"`
	Dest   string `json:"dest"`
}

// ResolveResult answers a caret position on one side of a session.
type ResolveResult struct {
	Side   Side        `json:"side"`
	Offset int         `json:"offset"`
	Found  bool        `json:"found"`
	Target Side        `json:"target"`
	Via    string      `json:"via,omitempty"`
	At     int         `json:"at"`
	Match  *ir.Segment `json:"segment,omitempty"`
}

// MarkerResult is the footnote whose marker is nearest an offset.
type MarkerResult struct {
	Side       Side           `json:"side"`
	Offset     int            `json:"offset"`
	Found      bool           `json:"found"`
	Marker     *ir.MarkerSpan `json:"marker,omitempty"`
	Annotation *ir.Annotation `json:"annotation,omitempty"`
}

// RenderView is a rendered document as served by GET /api/render.
type RenderView struct {
	Path        string          `json:"path"`
	Fingerprint string          `json:"fingerprint"`
	Origin      string          `json:"origin"`
	Text        string          `json:"text"`
	BaseText    string          `json:"base_text"`
	Segments    []ir.Segment    `json:"segments"`
	Annotations []ir.Annotation `json:"annotations"`
	Markers     []ir.MarkerSpan `json:"markers"`
}

// UnitsView is the header and translatable units of a file.
type UnitsView struct {
	Path   string         `json:"path"`
	Header *teixml.Header `json:"header,omitempty"`
	Units  []teixml.Unit  `json:"units"`
}

const maxRequestBody = 1 << 16

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"name":    "TeiSync API",
		"version": s.version,
		"endpoints": []string{
			"GET /health",
			"GET /api/render?path=",
			"GET /api/units?path=",
			"GET /api/sessions",
			"POST /api/sessions",
			"GET /api/sessions/{id}",
			"DELETE /api/sessions/{id}",
			"GET /api/sessions/{id}/resolve?side=&offset=",
			"GET /api/sessions/{id}/marker?side=&offset=",
			"WS /ws/sessions/{id}",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, HealthInfo{
		Status:   "healthy",
		Version:  s.version,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Sessions: s.sessions.Len(),
		Cache:    s.lib.CacheStats(),
	})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	loaded, err := s.load(r, path)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	doc := loaded.Doc
	respond(w, http.StatusOK, RenderView{
		Path:        path,
		Fingerprint: loaded.Fingerprint,
		Origin:      string(loaded.Origin),
		Text:        doc.Text(),
		BaseText:    doc.BaseText(),
		Segments:    nonNil(doc.Segments()),
		Annotations: nonNil(doc.Annotations()),
		Markers:     nonNil(doc.Markers()),
	})
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	file, err := s.lib.ResolvePath(path)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	markup, err := readMarkupFile(file)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	units, err := teixml.TranslatableUnits(markup)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	view := UnitsView{Path: path, Units: nonNil(units)}
	if hdr, err := teixml.ParseHeader(markup); err == nil {
		view.Header = &hdr
	}
	respond(w, http.StatusOK, view)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.List()
	response := APIResponse{
		Success: true,
		Data:    sessions,
		Meta: &APIMeta{
			Total:     len(sessions),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body: "+err.Error())
		return
	}

	src, err := s.load(r, req.Source)
	if err != nil {
		s.respondErr(w, r, errors.Wrap(err, "source"))
		return
	}
	dst, err := s.load(r, req.Dest)
	if err != nil {
		s.respondErr(w, r, errors.Wrap(err, "dest"))
		return
	}

	sess, err := s.sessions.Create(req.Source, src, req.Dest, dst)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	logging.InfoContext(logging.WithSessionID(r.Context(), sess.ID), "session_created",
		"source", req.Source, "dest", req.Dest)
	respond(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Delete(id); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.hub.CloseRoom(id)
	logging.InfoContext(logging.WithSessionID(r.Context(), id), "session_deleted")
	respond(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	sess, side, offset, err := s.sessionQuery(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, resolve(sess, side, offset))
}

func (s *Server) handleMarker(w http.ResponseWriter, r *http.Request) {
	sess, side, offset, err := s.sessionQuery(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	doc := sess.pair.Source
	if side == SideDest {
		doc = sess.pair.Dest
	}
	respond(w, http.StatusOK, markerAt(doc, side, offset))
}

// resolve runs one sync lookup. Absence is a result, not an error.
func resolve(sess *Session, side Side, offset int) ResolveResult {
	res := ResolveResult{Side: side, Offset: offset, Target: side.Other()}
	m, ok := sess.Resolve(side, offset)
	if !ok {
		return res
	}
	seg := m.Segment
	res.Found = true
	res.Via = string(m.Via)
	res.At = m.Offset
	res.Match = &seg
	return res
}

func markerAt(doc *mapping.Document, side Side, offset int) MarkerResult {
	res := MarkerResult{Side: side, Offset: offset}
	m, ok := doc.MarkerAt(offset)
	if !ok {
		return res
	}
	res.Found = true
	res.Marker = &m
	if note, ok := doc.AnnotationByMarkerAt(offset); ok {
		res.Annotation = &note
	}
	return res
}

// sessionQuery reads the {id} path value and the side and offset query
// parameters.
func (s *Server) sessionQuery(r *http.Request) (*Session, Side, int, error) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		return nil, "", 0, err
	}
	q := r.URL.Query()
	side, err := ParseSide(q.Get("side"))
	if err != nil {
		return nil, "", 0, err
	}
	offset, err := parseOffset(q.Get("offset"))
	if err != nil {
		return nil, "", 0, err
	}
	return sess, side, offset, nil
}

func parseOffset(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &errors.ValidationError{Field: "offset", Value: raw, Message: "not an integer", Err: err}
	}
	if n < 0 {
		return 0, errors.NewValidation("offset", "must be >= 0")
	}
	return n, nil
}

// load resolves a corpus-relative path and loads it through the library.
func (s *Server) load(r *http.Request, rel string) (*library.Loaded, error) {
	file, err := s.lib.ResolvePath(rel)
	if err != nil {
		if errors.Is(err, validation.ErrPathTraversal) {
			logging.SecurityEvent("path_rejected", "api", "path", rel, "remote_addr", getClientIP(r))
		}
		return nil, err
	}
	return s.lib.Load(r.Context(), file)
}

func readMarkupFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &errors.NotFoundError{Resource: "file", ID: path, Err: err}
		}
		return "", errors.NewIO("open", path, err)
	}
	defer f.Close()

	data, err := validation.ReadMarkup(f, 0)
	if err != nil {
		return "", &errors.ValidationError{Field: "markup", Value: path, Message: err.Error(), Err: err}
	}
	return string(data), nil
}

// respondErr maps typed errors onto HTTP statuses.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var parseErr *errors.ParseError
	switch {
	case errors.As(err, &parseErr):
		respondError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
	case errors.Is(err, errors.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, errors.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, errors.ErrUnsupported):
		respondError(w, http.StatusUnprocessableEntity, "UNSUPPORTED", err.Error())
	default:
		logging.ErrorContext(r.Context(), "request_failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
