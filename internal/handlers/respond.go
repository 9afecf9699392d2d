package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ukydev/plant-maintenance/internal/apperr"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a bounded request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		return apperr.Validation("failed to read request body", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Validation("invalid JSON", err)
	}
	return nil
}
