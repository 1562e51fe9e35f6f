package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/bryceweiner/chat-server/internal/domain"
)

// seedAuthor signs the greeting entry every fresh room starts with.
var seedAuthor = domain.Author{Uname: "test_owner", Role: domain.RoleOwner}

const seedText = ":)"

type registryImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomName]RoomService
}

func NewRegistry() RoomRegistry {
	return &registryImpl{rooms: make(map[domain.RoomName]RoomService)}
}

// GetOrCreate is idempotent. The first reference creates the room and
// seeds its history with one greeting entry; rooms are never removed.
func (f *registryImpl) GetOrCreate(name domain.RoomName) RoomService {
	f.mu.RLock()
	room, ok := f.rooms[name]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[name]; ok {
		return room
	}
	room = NewRoom(name)
	room.Append(seedAuthor, seedText)
	f.rooms[name] = room
	log.Info().Str("module", "core.registry").Str("room", string(name)).Msg("room created")
	return room
}

func (f *registryImpl) Get(name domain.RoomName) (RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[name]
	return room, ok
}

func (f *registryImpl) List() []RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]RoomInfo, 0, len(f.rooms))
	for name, r := range f.rooms {
		info := RoomInfo{Name: name, MemberCount: r.MemberCount()}
		for _, id := range r.Members() {
			info.Unames = append(info.Unames, id.Uname)
		}
		out = append(out, info)
	}
	return out
}
