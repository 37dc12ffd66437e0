package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/virt/internal/apperr"
	"github.com/starford/virt/internal/registrar"
)

const maxBodyBytes = 64 << 10

// Registry is the registrar behaviour the handlers need.
type Registry interface {
	Check(ctx context.Context, label, tag string) (*registrar.Availability, error)
	Register(ctx context.Context, req registrar.RegisterRequest) (*registrar.Registration, error)
	Update(ctx context.Context, req registrar.UpdateRequest) (*registrar.RecordSummary, error)
	Delete(ctx context.Context, req registrar.DeleteRequest) error
	Lookup(ctx context.Context, label, tag string) (*registrar.LookupResult, error)
	Search(ctx context.Context, query string, limit int) ([]registrar.SearchHit, error)
}

var _ Registry = (*registrar.Service)(nil)

// Handler holds API route handlers.
type Handler struct {
	svc Registry
}

// NewHandler creates a new Handler.
func NewHandler(svc Registry) *Handler {
	return &Handler{svc: svc}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", apperr.ErrInvalidInput)
	}
	return nil
}

// Check handles GET /api/check/{label}.
//
//	@Summary		Check whether a name is free
//	@Tags			names
//	@Produce		json
//	@Param			label	path		string	true	"Label"
//	@Param			tag		query		string	true	"Tag"	Enums(vc, biz, org, lit)
//	@Success		200		{object}	CheckResponse
//	@Failure		400		{object}	errResponse
//	@Router			/check/{label} [get]
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Check(r.Context(), chi.URLParam(r, "label"), r.URL.Query().Get("tag"))
	if err != nil {
		writeError(w, r, "check", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Register handles POST /api/register.
//
//	@Summary		Register a new name
//	@Tags			names
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RegisterRequest	true	"Registration"
//	@Success		201		{object}	RegisterResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Router			/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, "register", err)
		return
	}
	res, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Update handles PUT /api/update.
//
//	@Summary		Update a name's target or metadata
//	@Tags			names
//	@Accept			json
//	@Produce		json
//	@Param			body	body		UpdateRequest	true	"Partial update with secret"
//	@Success		200		{object}	UpdateResponse
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/update [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, "update", err)
		return
	}
	res, err := h.svc.Update(r.Context(), req)
	if err != nil {
		writeError(w, r, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Delete handles DELETE /api/delete.
//
//	@Summary		Delete a name permanently
//	@Tags			names
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DeleteRequest	true	"Name and secret"
//	@Success		200		{object}	DeleteResponse
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/delete [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, "delete", err)
		return
	}
	if err := h.svc.Delete(r.Context(), req); err != nil {
		writeError(w, r, "delete", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Success: true, Message: "Name deleted"})
}

// Lookup handles GET /api/lookup/{label}/{tag}.
//
//	@Summary		Resolve a registered name
//	@Tags			names
//	@Produce		json
//	@Param			label	path		string	true	"Label"
//	@Param			tag		path		string	true	"Tag"
//	@Success		200		{object}	LookupResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/lookup/{label}/{tag} [get]
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Lookup(r.Context(), chi.URLParam(r, "label"), chi.URLParam(r, "tag"))
	if err != nil {
		writeError(w, r, "lookup", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Search handles GET /api/search.
//
//	@Summary		Weighted search across registered names
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results (capped at 20)"
//	@Success		200		{array}		SearchResult
//	@Failure		400		{object}	errResponse
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody(apperr.Code(apperr.ErrInvalidInput), "query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, r, "search", err)
		return
	}
	if results == nil {
		results = []registrar.SearchHit{}
	}
	writeJSON(w, http.StatusOK, results)
}
