package utils

import "github.com/google/uuid"

// GenID returns a fresh message id.
func GenID() string { return "msg_" + uuid.NewString() }

// GenGroupID returns a fresh group id.
func GenGroupID() string { return "grp_" + uuid.NewString() }

// GenUserID returns a fresh user id.
func GenUserID() string { return "usr_" + uuid.NewString() }

// GenNotifID returns a fresh notification id.
func GenNotifID() string { return "ntf_" + uuid.NewString() }

// GenConnID returns a fresh websocket connection id.
func GenConnID() string { return uuid.NewString() }
