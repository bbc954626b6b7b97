package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tbrandt/changebot/internal/storage"
)

const defaultChangeListLimit = 50

func handleListChangeRequests(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", defaultChangeListLimit, 200)

		changes, err := deps.Store.ListChangeRequests(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list change requests: %v", err)
			return
		}
		if changes == nil {
			changes = []storage.ChangeRequest{}
		}
		writeJSON(w, changes)
	}
}

func handleGetChangeRequest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid change request id")
			return
		}

		cr, err := deps.Store.GetChangeRequest(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "change request not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get change request: %v", err)
			return
		}

		writeJSON(w, cr)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
