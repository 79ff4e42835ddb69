// Package rest exposes a read-only local status API: queue snapshot, task
// list, scrape progress and the Prometheus metrics endpoint.
package rest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/seliux/vaultgrab/internal/catalog"
	"github.com/seliux/vaultgrab/internal/logctx"
	"github.com/seliux/vaultgrab/internal/queue"
	"github.com/seliux/vaultgrab/internal/scraper"
	"github.com/seliux/vaultgrab/internal/telemetry"
)

// StatusHandler serves the local operator API. It only reads engine state;
// queue control stays with the process that owns the engine.
type StatusHandler struct {
	engine  *queue.Engine
	scraper *scraper.Scraper
	tel     *telemetry.Telemetry
}

func NewStatusHandler(engine *queue.Engine, s *scraper.Scraper, tel *telemetry.Telemetry) *StatusHandler {
	return &StatusHandler{
		engine:  engine,
		scraper: s,
		tel:     tel,
	}
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Metrics(h.tel))

	r.Get("/healthz", h.HandleHealth)
	r.Get("/queue", h.HandleQueue)
	r.Get("/queue/tasks", h.HandleTasks)
	r.Get("/queue/tasks/{id}", h.HandleTask)
	r.Get("/queue/tasks/{id}/verify", h.HandleVerify)
	r.Get("/scrape/progress", h.HandleProgress)
	r.Get("/categories", h.HandleCategories)

	if h.tel != nil {
		r.Mount("/metrics", h.tel.Handler())
	}

	return r
}

func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleQueue returns the derived queue snapshot.
func (h *StatusHandler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.engine.Snapshot())
}

// HandleTasks returns every task in queue order.
func (h *StatusHandler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.engine.Tasks()
	if tasks == nil {
		tasks = []queue.Task{}
	}

	writeJSON(w, r, http.StatusOK, tasks)
}

func (h *StatusHandler) HandleTask(w http.ResponseWriter, r *http.Request) {
	task, ok := h.engine.Task(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)

		return
	}

	writeJSON(w, r, http.StatusOK, task)
}

// HandleVerify re-checks a completed task's file against its checksum.
func (h *StatusHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, found := h.engine.Task(id); !found {
		http.Error(w, "task not found", http.StatusNotFound)

		return
	}

	ok, err := h.engine.Verify(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)

		return
	}

	writeJSON(w, r, http.StatusOK, map[string]bool{"valid": ok})
}

// HandleProgress returns the scrape progress snapshot.
func (h *StatusHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	if h.scraper == nil {
		writeJSON(w, r, http.StatusOK, scraper.Progress{})

		return
	}

	writeJSON(w, r, http.StatusOK, h.scraper.Progress())
}

// HandleCategories returns every catalog category with a system mapping.
func (h *StatusHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, catalog.SupportedCategories())
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}
