package domain

import (
	"fmt"
	"strings"
)

// User represents the member a lifecycle event is about (value object)
type User struct {
	ID        string
	FirstName string
	LastName  string
	Username  string
}

// NewUserFromName splits a display name into first and last name
func NewUserFromName(id, name string) User {
	name = strings.TrimSpace(name)
	first, last, _ := strings.Cut(name, " ")
	return User{
		ID:        id,
		FirstName: first,
		LastName:  strings.TrimSpace(last),
	}
}

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DisplayName returns the best available human readable name
func (u *User) DisplayName() string {
	if n := u.FullName(); n != "" {
		return n
	}
	if u.Username != "" {
		return u.Username
	}
	return u.ID
}

// FormatMention formats the Feishu @ mention markup
func (u *User) FormatMention() string {
	return fmt.Sprintf(`<at user_id="%s">%s</at>`, u.ID, u.DisplayName())
}
