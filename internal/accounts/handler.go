package accounts

import (
	"errors"
	"net/http"

	"lv-onboarding/internal/httputil"
)

type Handler struct {
	dir Directory
}

func NewHandler(dir Directory) *Handler {
	return &Handler{dir: dir}
}

// ByIdentity serves the back-office lookup of the account owned by an
// identity. The secret hash is never serialised.
func (h *Handler) ByIdentity(w http.ResponseWriter, r *http.Request, identityID string) {
	if identityID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "identity_id is required"})
		return
	}
	acc, err := h.dir.FindByIdentity(r.Context(), identityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acc)
}
