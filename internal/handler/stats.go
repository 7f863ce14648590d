package handler

import "net/http"

func Stats(d DashboardReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := d.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load stats")
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
