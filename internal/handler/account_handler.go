// internal/handler/account_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/mailroom/mailroom-backend/internal/errors"
)

// QuotaReader is the vault surface the quota endpoint needs.
type QuotaReader interface {
	CheckQuota(id int) (allowed bool, remaining int, err error)
}

// AccountHandler serves read-only SMTP account queries.
type AccountHandler struct {
	Vault QuotaReader
}

// Quota reports how much of the account's daily allowance is left.
func (h *AccountHandler) Quota(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return
	}

	allowed, remaining, err := h.Vault.CheckQuota(id)
	if err != nil {
		var notFound *appErrors.ErrAccountNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "failed to check quota: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"account_id": id,
		"allowed":    allowed,
		"remaining":  remaining,
	})
}
