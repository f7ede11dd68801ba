package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ErrorBody is the error contract shared by every endpoint: {"error": "..."}.
type ErrorBody struct {
	Error string `json:"error"`
}

// RespondWithError writes an error response in JSON format
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorBody{Error: message})
}

// RespondWithJSON writes a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		code = http.StatusInternalServerError
		response = []byte(`{"error":"Internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// DecodeError reads an error body from a non-2xx response.
// Bodies that are not the JSON error contract fall back to the status text.
func DecodeError(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil {
		var body ErrorBody
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			return body.Error
		}
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
