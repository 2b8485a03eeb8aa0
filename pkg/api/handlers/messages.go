package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"chatsync/pkg/models"
	"chatsync/pkg/msglog"
	"chatsync/pkg/utils"
)

// RegisterMessages registers the group-scoped message endpoints.
func RegisterMessages(r *mux.Router) {
	r.HandleFunc("/groups/{id}/messages", sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/messages", pageMessages).Methods(http.MethodGet)

	r.HandleFunc("/groups/{id}/messages/{mid}", getMessage).Methods(http.MethodGet)
	r.HandleFunc("/groups/{id}/messages/{mid}", deleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/groups/{id}/messages/{mid}/versions", listMessageVersions).Methods(http.MethodGet)

	r.HandleFunc("/groups/{id}/messages/{mid}/reactions", addReaction).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/messages/{mid}/reactions/{emoji}", removeReaction).Methods(http.MethodDelete)
}

func sendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var in models.Message
	if !decode(w, r, &in) {
		return
	}
	msg, err := msglog.Append(user, mux.Vars(r)["id"], in)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusCreated, msg)
}

// pageMessages walks the log backwards from `before` (exclusive order
// key; 0 or absent means newest) and returns up to `limit` messages
// oldest-first.
func pageMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var before int64
	if s := r.URL.Query().Get("before"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			utils.JSONError(w, http.StatusBadRequest, "invalid before cursor")
			return
		}
		before = n
	}
	var limit int
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			utils.JSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	gid := mux.Vars(r)["id"]
	msgs, err := msglog.Page(user, gid, before, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	// next page continues below the oldest order key returned
	var next int64
	if len(msgs) > 0 {
		next = msgs[0].Seq
	}
	utils.JSONWrite(w, http.StatusOK, struct {
		Group    string           `json:"group"`
		Messages []models.Message `json:"messages"`
		Next     int64            `json:"next,omitempty"`
	}{Group: gid, Messages: msgs, Next: next})
}

func getMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	msg, err := msglog.Get(user, vars["id"], vars["mid"])
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, msg)
}

func deleteMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	msg, err := msglog.Tombstone(user, vars["id"], vars["mid"])
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, msg)
}

func listMessageVersions(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	versions, err := msglog.Versions(user, vars["id"], vars["mid"])
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, struct {
		Versions []models.Message `json:"versions"`
	}{Versions: versions})
}

func addReaction(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var in struct {
		Emoji string `json:"emoji"`
	}
	if !decode(w, r, &in) {
		return
	}
	vars := mux.Vars(r)
	msg, err := msglog.React(user, vars["id"], vars["mid"], in.Emoji)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, msg)
}

func removeReaction(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	msg, err := msglog.Unreact(user, vars["id"], vars["mid"], vars["emoji"])
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, msg)
}
