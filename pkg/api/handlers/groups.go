package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"chatsync/pkg/logger"
	"chatsync/pkg/membership"
	"chatsync/pkg/models"
	"chatsync/pkg/utils"
)

// RegisterGroups registers group lifecycle and membership endpoints.
func RegisterGroups(r *mux.Router) {
	r.HandleFunc("/groups", createGroup).Methods(http.MethodPost)
	r.HandleFunc("/groups", listGroups).Methods(http.MethodGet)
	r.HandleFunc("/groups/{id}", getGroup).Methods(http.MethodGet)

	r.HandleFunc("/groups/{id}/join", joinGroup).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/leave", leaveGroup).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/members", listMembers).Methods(http.MethodGet)
	r.HandleFunc("/groups/{id}/members/{user}/ban", setBan).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/members/{user}/role", setRole).Methods(http.MethodPost)
}

func createGroup(w http.ResponseWriter, r *http.Request) {
	creator, ok := actor(w, r)
	if !ok {
		return
	}
	var in struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if !decode(w, r, &in) {
		return
	}
	g, err := membership.CreateGroup(creator, in.Name, in.Type)
	if err != nil {
		writeErr(w, err)
		return
	}
	logger.Info("group_created", "group", g.ID, "creator", creator)
	utils.JSONWrite(w, http.StatusCreated, g)
}

// listGroups returns the groups the acting user belongs to.
func listGroups(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	groups, err := membership.GroupsFor(user)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, struct {
		Groups []models.Group `json:"groups"`
	}{Groups: groups})
}

func getGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	gid := mux.Vars(r)["id"]
	if err := membership.Authorize(user, gid, models.ActionRead); err != nil {
		writeErr(w, err)
		return
	}
	g, err := membership.GetGroup(gid)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, g)
}

func joinGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var in struct {
		Role string `json:"role"`
	}
	// body optional; absent means plain member
	_ = decodeOptional(r, &in)
	m, err := membership.Join(user, mux.Vars(r)["id"], in.Role)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, m)
}

func leaveGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	if err := membership.Leave(user, mux.Vars(r)["id"]); err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "left"})
}

func listMembers(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	gid := mux.Vars(r)["id"]
	if err := membership.Authorize(user, gid, models.ActionRead); err != nil {
		writeErr(w, err)
		return
	}
	members, err := membership.Members(gid)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, struct {
		Members []models.Membership `json:"members"`
	}{Members: members})
}

func setBan(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var in struct {
		Banned bool `json:"banned"`
	}
	if !decode(w, r, &in) {
		return
	}
	vars := mux.Vars(r)
	m, err := membership.SetBan(user, vars["user"], vars["id"], in.Banned)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, m)
}

func setRole(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var in struct {
		Role string `json:"role"`
	}
	if !decode(w, r, &in) {
		return
	}
	vars := mux.Vars(r)
	m, err := membership.SetRole(user, vars["user"], vars["id"], in.Role)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, m)
}
