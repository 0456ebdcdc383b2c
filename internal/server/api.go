package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/niivue/niiview/internal/document"
	"github.com/niivue/niiview/internal/panel"
)

// Error is an API error.
type Error struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Errors []Error `json:"errors"`
}

// ResourceRequest is the body of the edit, open and compare calls.
type ResourceRequest struct {
	URI  string   `json:"uri,omitempty"`
	URIs []string `json:"uris,omitempty"`
}

func apiError(rw http.ResponseWriter, title, detail string, status int) {
	doc := ErrorResponse{
		Errors: []Error{
			{
				Status: strconv.Itoa(status),
				Title:  title,
				Detail: detail,
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	_, _ = rw.Write(data)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		apiError(rw, "Encoding error", err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	_, _ = rw.Write(data)
}

func (s *Server) readRequest(rw http.ResponseWriter, r *http.Request) ([]document.URI, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		apiError(rw, "Couldn't read request", err.Error(), http.StatusBadRequest)
		return nil, false
	}

	var req ResourceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		apiError(rw, "Invalid data", err.Error(), http.StatusBadRequest)
		return nil, false
	}

	locators := req.URIs
	if req.URI != "" {
		locators = append([]string{req.URI}, locators...)
	}
	if len(locators) == 0 {
		apiError(rw, "Invalid data", "no resource given", http.StatusBadRequest)
		return nil, false
	}

	uris := make([]document.URI, 0, len(locators))
	for _, l := range locators {
		uri, err := document.ParseURI(s.opts.Root, l)
		if err != nil {
			apiError(rw, "Invalid resource", err.Error(), http.StatusBadRequest)
			return nil, false
		}
		uris = append(uris, uri)
	}
	return uris, true
}

func (s *Server) createError(rw http.ResponseWriter, err error) {
	var ioErr *document.IOError
	if errors.As(err, &ioErr) {
		apiError(rw, "Unreadable resource", err.Error(), http.StatusUnprocessableEntity)
		return
	}
	apiError(rw, "Couldn't create panel", err.Error(), http.StatusInternalServerError)
}

func (s *Server) handleEdit(rw http.ResponseWriter, r *http.Request) {
	uris, ok := s.readRequest(rw, r)
	if !ok {
		return
	}
	if len(uris) != 1 {
		apiError(rw, "Invalid data", "edit takes exactly one resource", http.StatusBadRequest)
		return
	}

	doc, err := s.opts.Provider.OpenDocument(r.Context(), uris[0])
	if err != nil {
		s.createError(rw, err)
		return
	}
	p, err := s.opts.Provider.ResolveEditor(r.Context(), doc)
	if err != nil {
		s.createError(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, p.Info())
}

func (s *Server) handleOpen(rw http.ResponseWriter, r *http.Request) {
	uris, ok := s.readRequest(rw, r)
	if !ok {
		return
	}
	if len(uris) != 1 {
		apiError(rw, "Invalid data", "open takes exactly one resource", http.StatusBadRequest)
		return
	}

	p, err := s.opts.Provider.CreateOrShow(r.Context(), uris[0])
	if err != nil {
		s.createError(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, p.Info())
}

func (s *Server) handleCompare(rw http.ResponseWriter, r *http.Request) {
	uris, ok := s.readRequest(rw, r)
	if !ok {
		return
	}

	p, err := s.opts.Provider.CreateCompareView(r.Context(), uris)
	if err != nil {
		s.createError(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, p.Info())
}

func (s *Server) handleListPanels(rw http.ResponseWriter, r *http.Request) {
	var (
		infos []panel.Info
		err   error
	)
	if locator := r.URL.Query().Get("uri"); locator != "" {
		uri, perr := document.ParseURI(s.opts.Root, locator)
		if perr != nil {
			apiError(rw, "Invalid resource", perr.Error(), http.StatusBadRequest)
			return
		}
		infos, err = s.opts.Provider.Panels(r.Context(), uri)
	} else {
		infos, err = s.opts.Provider.ListPanels(r.Context())
	}
	if err != nil {
		apiError(rw, "Couldn't list panels", err.Error(), http.StatusInternalServerError)
		return
	}
	if infos == nil {
		infos = []panel.Info{}
	}
	writeJSON(rw, http.StatusOK, infos)
}
