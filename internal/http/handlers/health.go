package handlers

import "net/http"

// Health reports process liveness.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]bool{"ok": true})
}
