package apperr

import (
	"encoding/json"
	"net/http"
)

// Write sends err as a {"code","message"} JSON body with its HTTP status.
// The wrapped cause is never written.
func Write(w http.ResponseWriter, err error) {
	e := FromError(err)
	if e == nil {
		e = ErrInternal
	}
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{Code: e.Code, Message: e.Message}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
