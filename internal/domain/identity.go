package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidIdentity = errors.New("identity must carry exactly one of user id or guest session id")

// Identity is the owner of a cart or an order: a registered user or an anonymous guest session.
type Identity struct {
	UserID         string `json:"user_id,omitempty" bson:"user_id,omitempty"`
	GuestSessionID string `json:"guest_session_id,omitempty" bson:"guest_session_id,omitempty"`
}

func UserIdentity(userID string) Identity {
	return Identity{UserID: userID}
}

func GuestIdentity(sessionID string) Identity {
	return Identity{GuestSessionID: sessionID}
}

func (i Identity) Validate() error {
	if (i.UserID == "") == (i.GuestSessionID == "") {
		return ErrInvalidIdentity
	}
	return nil
}

func (i Identity) IsGuest() bool {
	return i.UserID == "" && i.GuestSessionID != ""
}

// Key is the stable storage key of the identity, e.g. "user:42" or "guest:5f1c...".
func (i Identity) Key() string {
	if i.UserID != "" {
		return fmt.Sprintf("user:%s", i.UserID)
	}
	return fmt.Sprintf("guest:%s", i.GuestSessionID)
}

func (i Identity) String() string {
	return i.Key()
}
