package apierr

import (
	"encoding/json"
	"net/http"
)

// Envelope is the JSON response shape every cascade API endpoint
// returns: a stable integer code, a human-readable message, and the
// handler's payload (nil on error).
type Envelope struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// WriteOK writes a 200 envelope wrapping data.
func WriteOK(w http.ResponseWriter, data interface{}) {
	writeEnvelope(w, http.StatusOK, Envelope{Code: CodeOK, Message: "ok", Data: data})
}

// WriteCreated writes a 201 envelope wrapping data.
func WriteCreated(w http.ResponseWriter, data interface{}) {
	writeEnvelope(w, http.StatusCreated, Envelope{Code: CodeOK, Message: "ok", Data: data})
}

// WriteError translates err (via Translate) and writes the matching
// envelope and HTTP status.
func WriteError(w http.ResponseWriter, err error) {
	apiErr := Translate(err)
	writeEnvelope(w, apiErr.Status, Envelope{Code: apiErr.Code, Message: apiErr.Message})
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
