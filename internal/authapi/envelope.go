package authapi

import (
	"encoding/json"
	"net/http"
	"time"
)

// envelope wraps every response body.
type envelope struct {
	Code      int    `json:"code"`
	Data      any    `json:"data"`
	Message   string `json:"message"`
	Success   bool   `json:"success"`
	Timestamp int64  `json:"timestamp"`
}

func writeOK(w http.ResponseWriter, data any, message string) {
	writeEnvelope(w, http.StatusOK, envelope{
		Code:    http.StatusOK,
		Data:    data,
		Message: message,
		Success: true,
	})
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, envelope{
		Code:    status,
		Message: message,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	env.Timestamp = time.Now().UnixMilli()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env) //nolint:errcheck
}
