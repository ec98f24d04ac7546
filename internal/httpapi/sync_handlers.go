package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"

	"jobfeed-engine/internal/poll"
)

type SyncHandler struct {
	Poller *poll.Poller
}

func (h SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Poller.Status())
}

// Run starts a sync-all pass in the background and returns immediately.
func (h SyncHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.Poller.Status().Running {
		writeJSON(w, map[string]any{"ok": false, "msg": "already running"})
		return
	}

	reqID := RequestIDFrom(r.Context())
	go func() {
		if _, err := h.Poller.RunNow(context.Background()); err != nil && !errors.Is(err, poll.ErrBusy) {
			log.Printf("level=error msg=\"sync run\" request_id=%s err=%v", reqID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]any{"ok": true})
}
