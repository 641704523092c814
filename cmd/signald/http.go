package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
	"github.com/next-trace/scg-signal-bus/observability"
	"github.com/next-trace/scg-signal-bus/orm"
)

// newRouter exposes health, metrics and a small entity API that drives the
// store and therefore the signal pipeline.
func newRouter(a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/healthz", a.healthz)
	r.Handle("/metrics", observability.Handler())
	r.Get("/failures", a.listFailures)

	r.Route("/entities/{entity}", func(r chi.Router) {
		r.Get("/", a.listEntities)
		r.Patch("/", a.bulkUpdate)
		r.Get("/{id}", a.getEntity)
		r.Put("/{id}", a.saveEntity)
		r.Delete("/{id}", a.deleteEntity)
		r.Get("/{id}/changelog", a.changeLog)
	})

	return r
}

type bulkUpdateRequest struct {
	IDs    []string       `json:"ids"`
	Fields map[string]any `json:"fields"`
}

type entityResponse struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

func toResponse(m *orm.Model) entityResponse {
	return entityResponse{Type: string(m.Type), ID: m.ID, Fields: m.Fields}
}

func (a *app) healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *app) listEntities(w http.ResponseWriter, r *http.Request) {
	models, err := a.store.Objects(entityParam(r)).All(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]entityResponse, 0, len(models))
	for _, m := range models {
		out = append(out, toResponse(m))
	}

	writeJSON(w, http.StatusOK, out)
}

func (a *app) getEntity(w http.ResponseWriter, r *http.Request) {
	m, err := a.store.Get(r.Context(), entityParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(m))
}

func (a *app) saveEntity(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	m := &orm.Model{Type: entityParam(r), ID: chi.URLParam(r, "id"), Fields: fields}

	created, err := a.store.Save(r.Context(), m)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	writeJSON(w, status, toResponse(m))
}

func (a *app) deleteEntity(w http.ResponseWriter, r *http.Request) {
	m := &orm.Model{Type: entityParam(r), ID: chi.URLParam(r, "id")}
	if err := a.store.Delete(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *app) bulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Fields) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "fields required"})
		return
	}

	qs := orm.NewManager(a.store, entityParam(r)).Query()
	if req.IDs != nil {
		qs = qs.Filter(req.IDs...)
	}

	n, err := qs.Update(r.Context(), req.Fields)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (a *app) changeLog(w http.ResponseWriter, r *http.Request) {
	snaps, err := a.store.ChangeLog(r.Context(), entityParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snaps)
}

func (a *app) listFailures(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	fs, err := a.store.Failures(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fs)
}

func entityParam(r *http.Request) signal.EntityType {
	return signal.EntityType(chi.URLParam(r, "entity"))
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, serr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, serr.ErrHandlerFailed):
		status = http.StatusConflict
	case errors.Is(err, serr.ErrQueueFull), errors.Is(err, serr.ErrPoolClosed):
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
