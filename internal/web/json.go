package web

import (
	"encoding/json"
	"net/http"
)

// commandResponse is returned by the command endpoint. Accepted means the
// command was delivered; the controller may still reject it in its current
// state.
type commandResponse struct {
	Command  string `json:"command,omitempty"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

func writeCommandJSON(w http.ResponseWriter, code int, resp commandResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
