package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"chatsync/pkg/auth"
	"chatsync/pkg/errdefs"
	"chatsync/pkg/utils"
)

// writeErr maps a domain error onto its HTTP status.
func writeErr(w http.ResponseWriter, err error) {
	utils.JSONError(w, errdefs.Status(err), err.Error())
}

// actor resolves the acting user or writes the failure response and
// returns false.
func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, code, msg := auth.ResolveUser(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return "", false
	}
	return id, true
}

// decode parses a JSON body into v; a failure writes the 400 itself.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// decodeOptional parses a JSON body when one is present; an empty body
// is not an error.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}
