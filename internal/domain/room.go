package domain

import "time"

type RoomName string

// Message is immutable once appended to a room history.
// IDs are monotonic per room, so history order is comparable.
type Message struct {
	ID   uint64 `json:"id"`
	User Author `json:"user"`
	Text string `json:"text"`
}

// MuteEntry suppresses admission for Uname while present in a room's
// mute list. Presence in the list gates admission, not ExpiresAt;
// expiry is lifted only by an explicit unmute.
type MuteEntry struct {
	Uname     string    `json:"uname"`
	Mins      int       `json:"mins"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewMuteEntry(uname string, mins int, now time.Time) MuteEntry {
	return MuteEntry{
		Uname:     uname,
		Mins:      mins,
		ExpiresAt: now.Add(time.Duration(mins) * time.Minute),
	}
}
