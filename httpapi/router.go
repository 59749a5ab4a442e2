package httpapi

import "net/http"

// NewMux wires the trigger surface. The caller wraps the mux with Chain and
// whatever middleware it wants.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	wh := WebhookHandler{Cfg: d.Cfg, Controller: d.Controller}
	mux.HandleFunc("/webhook", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: wh.Trigger,
	}))
	mux.HandleFunc("/webhook/secret", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: wh.RegenerateSecret,
	}))

	sh := SyncHandler{Controller: d.Controller}
	mux.HandleFunc("/sync/start", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.Start,
	}))
	mux.HandleFunc("/sync/stop", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.Stop,
	}))
	mux.HandleFunc("/sync/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.Status,
	}))
	mux.HandleFunc("/sync/record", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.RepairRecord,
	}))
	mux.HandleFunc("/logs/clear", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.ClearLogs,
	}))

	mux.HandleFunc("/healthz", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: healthz,
	}))

	return mux
}

func healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
