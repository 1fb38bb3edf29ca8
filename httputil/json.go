// httputil/json.go
package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse is the error envelope of every JSON endpoint. Error is a
// single message or, for validation failures, the ordered list of messages.
type ErrorResponse struct {
	Error any `json:"error"`
}

// MessageResponse is the success envelope of the submission endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrEmptyBody is returned by DecodeObject when there is nothing to decode.
var ErrEmptyBody = errors.New("httputil: request body is empty")

// ErrNotObject is returned by DecodeObject when the body is valid JSON but
// not a non-empty object.
var ErrNotObject = errors.New("httputil: request body is not a JSON object")

// ErrTooLarge is returned when the body exceeds the server's size limit.
var ErrTooLarge = errors.New("httputil: request body too large")

var jsonLogger = zap.NewNop()

// SetLogger sets the logger used to report encoding failures that happen
// after the status line has been sent.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		jsonLogger = logger
	}
}

// WriteJSON writes v with the given status. Status codes outside 100-599
// become 500.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		jsonLogger.Error("json encoding failed after headers sent",
			zap.String("type", fmt.Sprintf("%T", v)), zap.Error(err))
	}
}

// Error writes {"error": msg}. msg is usually a string; validation failures
// pass a []string.
func Error(w http.ResponseWriter, status int, msg any) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// Message writes {"message": msg} with status 200.
func Message(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// ReadBody reads the whole body and restores it so later readers see the
// same bytes. It is used by the signature check, which needs the raw body
// before the handler decodes it.
func ReadBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	b, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(b))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("httputil: read body: %w", err)
	}
	return b, nil
}

// DecodeObject decodes the body as a JSON object with arbitrary values.
// Unknown fields are kept; the validator decides what they mean. An empty
// body, JSON null, and an empty object all count as no data.
func DecodeObject(r *http.Request) (map[string]any, error) {
	b, err := ReadBody(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, ErrEmptyBody
	}

	var raw any
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("httputil: malformed JSON: %w", err)
	}
	if dec.More() {
		return nil, errors.New("httputil: request body contains multiple JSON values")
	}

	obj, ok := raw.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil, ErrNotObject
	}
	return obj, nil
}
