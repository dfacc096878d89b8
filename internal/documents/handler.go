package documents

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/flowbooks/flowbooks/internal/platform/httpx"
	"github.com/flowbooks/flowbooks/internal/shared"
)

// Handler exposes the document lifecycle as a JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.edit)
	r.Get("/{id}/timeline", h.timeline)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/accept", h.accept)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/payment", h.recordPayment)
	r.Post("/{id}/void", h.void)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !req.Type.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown document type")
		return
	}

	doc, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.docID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	id, ok := h.docID(w, r)
	if !ok {
		return
	}
	tl, err := h.service.Timeline(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tl)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req, err := parseListRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	docs, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"documents":  docs,
		"total":      total,
		"pagination": shared.NewPagination(req.Limit, req.Offset, total),
	})
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.docID(w, r)
	if !ok {
		return
	}
	var req EditDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	doc, err := h.service.Edit(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID) (*SalesDocument, error) {
		return h.service.SubmitQuotation(r.Context(), id)
	})
}

type acceptRequest struct {
	AcceptanceDate time.Time `json:"acceptance_date"`
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	id, ok := h.docID(w, r)
	if !ok {
		return
	}
	var req acceptRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
	}
	doc, err := h.service.AcceptQuotation(r.Context(), id, req.AcceptanceDate)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID) (*SalesDocument, error) {
		return h.service.RejectQuotation(r.Context(), id)
	})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID) (*SalesDocument, error) {
		return h.service.RecordPayment(r.Context(), id)
	})
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	id, ok := h.docID(w, r)
	if !ok {
		return
	}
	if err := h.service.Void(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(uuid.UUID) (*SalesDocument, error)) {
	id, ok := h.docID(w, r)
	if !ok {
		return
	}
	doc, err := fn(id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) docID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "document id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var cascade *PartialCascadeError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Transition", err.Error())
	case errors.Is(err, ErrForwardLocked),
		errors.Is(err, ErrSourceLocked),
		errors.Is(err, ErrHasLiveSuccessor),
		errors.Is(err, ErrDuplicateNumber):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrAllocationExhausted):
		httpx.Problem(w, http.StatusServiceUnavailable, "Allocation Exhausted", err.Error())
	case errors.As(err, &cascade):
		h.logger.Error("partial cascade failure",
			slog.String("path", r.URL.Path),
			slog.String("failed_step", cascade.FailedStep),
			slog.String("failed_document_id", cascade.FailedDocumentID.String()),
			slog.Any("error", cascade.Err))
		httpx.Problem(w, http.StatusInternalServerError, "Partial Cascade Failure", cascade.Error())
	case errors.Is(err, ErrSchemaMismatch):
		httpx.Problem(w, http.StatusInternalServerError, "Schema Mismatch", err.Error())
	default:
		h.logger.Error("document operation failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseListRequest(r *http.Request) (ListDocumentsRequest, error) {
	q := r.URL.Query()
	var req ListDocumentsRequest

	businessID, err := strconv.ParseInt(q.Get("business_id"), 10, 64)
	if err != nil {
		return req, errors.New("business_id is required")
	}
	req.BusinessID = businessID

	if v := q.Get("type"); v != "" {
		t := DocType(v)
		req.Type = &t
	}
	if v := q.Get("status"); v != "" {
		s := Status(v)
		req.Status = &s
	}
	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return req, errors.New("date_from must be RFC3339")
		}
		req.DateFrom = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return req, errors.New("date_to must be RFC3339")
		}
		req.DateTo = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, errors.New("limit must be an integer")
		}
		req.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, errors.New("offset must be an integer")
		}
		req.Offset = n
	}
	return req, nil
}
