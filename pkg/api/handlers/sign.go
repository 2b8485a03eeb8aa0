package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"chatsync/pkg/auth"
	"chatsync/pkg/utils"
)

// RegisterSign registers the signing helper trusted backends use to
// mint user signatures for their frontend clients. Frontend keys never
// reach this route.
func RegisterSign(r *mux.Router, sec auth.SecConfig) {
	r.HandleFunc("/sign", func(w http.ResponseWriter, req *http.Request) {
		role := req.Header.Get("X-Role-Name")
		if role != "backend" && role != "admin" {
			utils.JSONError(w, http.StatusForbidden, "forbidden")
			return
		}
		var in struct {
			User string `json:"user"`
		}
		if !decode(w, req, &in) {
			return
		}
		if in.User == "" {
			utils.JSONError(w, http.StatusBadRequest, "user required")
			return
		}
		if len(sec.SigningKeys) == 0 {
			utils.JSONError(w, http.StatusInternalServerError, "no signing secrets available")
			return
		}
		utils.JSONWrite(w, http.StatusOK, map[string]string{
			"user":      in.User,
			"signature": auth.Sign(sec.SigningKeys[0], in.User),
		})
	}).Methods(http.MethodPost)
}
