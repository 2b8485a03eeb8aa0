package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"chatsync/pkg/membership"
	"chatsync/pkg/models"
	"chatsync/pkg/utils"
)

// RegisterNotifications registers the per-user notification feed.
func RegisterNotifications(r *mux.Router) {
	r.HandleFunc("/notifications", listNotifications).Methods(http.MethodGet)
}

func listNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			utils.JSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	notifs, err := membership.Notifications(user, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, struct {
		Notifications []models.Notification `json:"notifications"`
	}{Notifications: notifs})
}
