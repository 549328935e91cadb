package domain

import (
	"fmt"
	"time"
)

// User represents a user of the wider application. This service only reads
// users; registration and profile management belong to the web app.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns the username, or a synthesized "User{id}" when the
// user never set one.
func (u *User) DisplayName() string {
	if u.Username == "" {
		return fmt.Sprintf("User%d", u.ID)
	}
	return u.Username
}
