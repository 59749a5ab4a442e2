package httpapi

import (
	"errors"
	"net/http"

	"propsyncd/models"
	"propsyncd/syncer"
)

type SyncHandler struct {
	Controller *syncer.Controller
}

func (h SyncHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.Controller.Start(r.Context()); err != nil {
		if errors.Is(err, models.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "sync already in progress")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "sync started"})
}

// Stop flips the run flag and waits the grace period for the pass to yield,
// then reports how far it got.
func (h SyncHandler) Stop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Controller.Stop())
}

func (h SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Controller.Status())
}

func (h SyncHandler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	h.Controller.ClearLogs()
	writeJSON(w, http.StatusOK, map[string]string{"message": "logs cleared"})
}

// RepairRecord re-imports a single record by source id without running a
// full pass.
func (h SyncHandler) RepairRecord(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id parameter")
		return
	}

	p, err := h.Controller.RepairRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "sync already in progress")
			return
		}
		var fetchErr *models.FetchError
		if errors.As(err, &fetchErr) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "record imported",
		"property": p,
	})
}
