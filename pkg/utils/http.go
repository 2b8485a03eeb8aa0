package utils

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/bytebufferpool"
)

// JSONError writes a JSON error response with the given status code and
// message. It ensures the Content-Type is set to application/json.
func JSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// JSONWrite encodes v into a pooled buffer and writes it with the given
// status code. Encoding into the buffer first means an encode failure
// never leaves a half-written body behind a 200 header.
func JSONWrite(w http.ResponseWriter, status int, v any) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		JSONError(w, http.StatusInternalServerError, "encode failed")
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_, err := w.Write(buf.B)
	return err
}
