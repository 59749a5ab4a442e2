package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"propsyncd/config"
	"propsyncd/models"
	"propsyncd/notify"
	"propsyncd/syncer"
)

const maxTriggerBody = 1 << 20

// WebhookHandler is the inbound trigger surface for external systems: a
// signed POST starts a sync pass.
type WebhookHandler struct {
	Cfg        *config.Config
	Controller *syncer.Controller
}

func (h WebhookHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTriggerBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if h.Cfg.VerifyInbound() {
		secret := h.Cfg.WebhookSecret()
		signature := r.Header.Get("X-Webhook-Signature")
		if secret == "" || !notify.Verify(secret, body, signature) {
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	if len(body) == 0 || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "body must be valid JSON")
		return
	}

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

// RegenerateSecret rotates the shared webhook secret and returns the new
// value. The caller is expected to copy it into the sending system.
func (h WebhookHandler) RegenerateSecret(w http.ResponseWriter, r *http.Request) {
	secret := h.Cfg.RegenerateSecret()
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}
