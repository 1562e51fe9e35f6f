package core

import "github.com/bryceweiner/chat-server/internal/domain"

// ConnID identifies one live transport connection.
type ConnID string

// Sender is one connection's outbound side.
// Owned by the adapter; the adapter must Close() the underlying socket.
type Sender interface {
	TrySend(event string, v any) error
}

// RoomSnapshot is a read-only view for acks and APIs (no transport fields).
type RoomSnapshot struct {
	Name     domain.RoomName             `json:"name"`
	Members  []domain.Identity           `json:"members"`
	MuteList map[string]domain.MuteEntry `json:"mute_list"`
	History  []domain.Message            `json:"history"`
}

// RoomService is the core-facing API of a room. It owns membership,
// the mute list and the history, but never touches transport resources.
type RoomService interface {
	Name() domain.RoomName
	MemberCount() int
	Snapshot() RoomSnapshot

	Attach(cid ConnID, s Sender)
	Detach(cid ConnID)
	Broadcast(event string, v any)

	AddMember(id domain.Identity)
	RemoveMember(uname string)
	HasMember(uname string) bool
	Members() []domain.Identity

	Mute(entry domain.MuteEntry)
	Unmute(uname string) bool
	Muted(uname string) (domain.MuteEntry, bool)

	Append(author domain.Author, text string) domain.Message
	History() []domain.Message
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"member_count"`
	Unames      []string        `json:"unames"`
}

// RoomRegistry creates rooms on first reference. Rooms are never removed.
type RoomRegistry interface {
	GetOrCreate(name domain.RoomName) RoomService
	Get(name domain.RoomName) (RoomService, bool)
	List() []RoomInfo
}
