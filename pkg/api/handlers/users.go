package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"chatsync/pkg/logger"
	"chatsync/pkg/membership"
	"chatsync/pkg/models"
	"chatsync/pkg/utils"
)

// RegisterUsers registers the user profile endpoints.
func RegisterUsers(r *mux.Router) {
	r.HandleFunc("/users", createUser).Methods(http.MethodPost)
	r.HandleFunc("/users", listUsers).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", getUser).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/groups", listUserGroups).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/presence", setPresence).Methods(http.MethodPut)
}

func createUser(w http.ResponseWriter, r *http.Request) {
	var u models.User
	if !decode(w, r, &u) {
		return
	}
	out, err := membership.CreateUser(u)
	if err != nil {
		writeErr(w, err)
		return
	}
	logger.Info("user_created", "user", out.ID)
	utils.JSONWrite(w, http.StatusCreated, out)
}

func listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := membership.ListUsers()
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, struct {
		Users []models.User `json:"users"`
	}{Users: users})
}

func getUser(w http.ResponseWriter, r *http.Request) {
	u, err := membership.GetUser(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, u)
}

func setPresence(w http.ResponseWriter, r *http.Request) {
	who, ok := actor(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if who != id {
		utils.JSONError(w, http.StatusForbidden, "cannot set another user's presence")
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &body) {
		return
	}
	u, err := membership.SetPresence(id, body.Status)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, u)
}

func listUserGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := membership.GroupsFor(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, struct {
		Groups []models.Group `json:"groups"`
	}{Groups: groups})
}
