package domain

import "time"

// User represents a community member registered through the bot.
//
// TelegramID is assigned by the platform and never changes. Phone stays
// empty until the user shares a contact. GiveawayNumber is zero until the
// store assigns one; once positive it is never rewritten.
type User struct {
	TelegramID     int64
	Username       string
	FirstName      string
	LastName       string
	Phone          string
	JoinedAt       time.Time
	GiveawayNumber int
}

// HasGiveawayNumber reports whether a participation number has been assigned.
func (u *User) HasGiveawayNumber() bool {
	return u != nil && u.GiveawayNumber > 0
}

// Stats is the read-only aggregate shown to admins.
type Stats struct {
	Total  int
	Recent []User // at most 5, newest first
}
