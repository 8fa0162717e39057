package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/template"
)

func (h *Handler) templateStore(w http.ResponseWriter, r *http.Request) (TemplateStore, bool) {
	feature := r.PathValue("feature")
	s, ok := h.templates[feature]
	if !ok {
		NotFound(w, fmt.Sprintf("feature %q has no templates", feature))
		return nil, false
	}
	return s, true
}

func templateID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid template id %q", r.PathValue("id"))
	}
	return id, nil
}

// ListTemplates возвращает шаблоны фичи.
// GET /api/{feature}/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	store, ok := h.templateStore(w, r)
	if !ok {
		return
	}
	templates, err := store.List(r.Context())
	if HandleError(w, h.logger, err) {
		return
	}
	List(w, templates, len(templates))
}

// CreateTemplate создаёт шаблон.
// POST /api/{feature}/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	store, ok := h.templateStore(w, r)
	if !ok {
		return
	}

	var req TemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	t := &domain.Template{
		Title:    strings.TrimSpace(req.Title),
		Body:     strings.TrimSpace(req.Body),
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if t.Title == "" || t.Body == "" {
		BadRequest(w, "title and body are required")
		return
	}
	if HandleError(w, h.logger, template.Validate(t.Body)) {
		return
	}

	if HandleError(w, h.logger, store.Create(r.Context(), t)) {
		return
	}
	Created(w, t)
}

// UpdateTemplate обновляет шаблон.
// PUT /api/{feature}/templates/{id}
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	store, ok := h.templateStore(w, r)
	if !ok {
		return
	}
	id, err := templateID(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	var req UpdateTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	t, err := store.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}

	if req.Title != nil {
		t.Title = strings.TrimSpace(*req.Title)
	}
	if req.Body != nil {
		t.Body = strings.TrimSpace(*req.Body)
	}
	if req.IsActive != nil {
		t.IsActive = *req.IsActive
	}
	if t.Title == "" || t.Body == "" {
		BadRequest(w, "title and body must not be empty")
		return
	}
	if HandleError(w, h.logger, template.Validate(t.Body)) {
		return
	}

	if HandleError(w, h.logger, store.Update(r.Context(), t)) {
		return
	}
	Success(w, t)
}

// DeleteTemplate удаляет шаблон.
// DELETE /api/{feature}/templates/{id}
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	store, ok := h.templateStore(w, r)
	if !ok {
		return
	}
	id, err := templateID(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	if HandleError(w, h.logger, store.Delete(r.Context(), id)) {
		return
	}
	Done(w, fmt.Sprintf("template %d deleted", id), nil)
}
