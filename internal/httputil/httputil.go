package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// MaxBodyBytes caps request bodies. Step payloads carry base64 uploads, so it
// is sized for two 10MB artifacts plus encoding overhead.
const MaxBodyBytes = 32 << 20

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return errors.New("invalid json body")
	}
	return nil
}

// Redirect answers with 303 and echoes the target in the body for API clients
// that do not follow redirects.
func Redirect(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	WriteJSON(w, http.StatusSeeOther, map[string]string{"redirect": location})
}
