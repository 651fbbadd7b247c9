package server

import (
	"encoding/json"
	"errors"
	"net/http"
)

var ErrNoReport = errors.New("no report available yet")

// APIResponse is the envelope for every JSON endpoint.
type APIResponse struct {
	Status bool        `json:"status"`
	Value  interface{} `json:"value,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, res APIResponse) {
	body, _ := json.Marshal(res)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

func writeResult(w http.ResponseWriter, result interface{}) {
	writeJSON(w, http.StatusOK, APIResponse{Status: true, Value: result})
}

func writeError(w http.ResponseWriter, err error, statusCode int) {
	writeJSON(w, statusCode, APIResponse{Status: false, Error: err.Error()})
}
