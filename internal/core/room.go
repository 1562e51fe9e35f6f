package core

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/bryceweiner/chat-server/internal/domain"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned connections.
//
// Mute list keys are folded to lower case on every path (write, lookup,
// delete), so a /mute and a later /unmute always hit the same entry.
type roomImpl struct {
	name domain.RoomName

	mu       sync.RWMutex
	conns    map[ConnID]Sender
	members  map[string]domain.Identity
	muteList map[string]domain.MuteEntry
	history  []domain.Message
	nextID   uint64
}

func NewRoom(name domain.RoomName) RoomService {
	return &roomImpl{
		name:     name,
		conns:    make(map[ConnID]Sender),
		members:  make(map[string]domain.Identity),
		muteList: make(map[string]domain.MuteEntry),
	}
}

func (r *roomImpl) Name() domain.RoomName { return r.name }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *roomImpl) Attach(cid ConnID, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[cid] = s
	log.Debug().Str("module", "core.room").Str("room", string(r.name)).Str("cid", string(cid)).Msg("connection attached")
}

func (r *roomImpl) Detach(cid ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, cid)
	log.Debug().Str("module", "core.room").Str("room", string(r.name)).Str("cid", string(cid)).Msg("connection detached")
}

// Broadcast fans an event out to every attached connection, the
// originator included. Delivery is best-effort: a full send buffer
// drops the frame for that connection only.
func (r *roomImpl) Broadcast(event string, v any) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sent, dropped := 0, 0
	for cid, s := range r.conns {
		if err := s.TrySend(event, v); err != nil {
			dropped++
			log.Warn().Err(err).Str("module", "core.room").Str("cid", string(cid)).Str("event", event).Msg("broadcast drop")
			continue
		}
		sent++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.name)).Str("event", event).Int("sent_to", sent).Int("dropped", dropped).Msg("broadcast result")
}

func (r *roomImpl) AddMember(id domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[id.Uname] = id
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("uname", id.Uname).Msg("member added")
}

func (r *roomImpl) RemoveMember(uname string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, uname)
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("uname", uname).Msg("member removed")
}

func (r *roomImpl) HasMember(uname string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[uname]
	return ok
}

func (r *roomImpl) Members() []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Identity, 0, len(r.members))
	for _, id := range r.members {
		out = append(out, id)
	}
	return out
}

func (r *roomImpl) Mute(entry domain.MuteEntry) {
	key := strings.ToLower(entry.Uname)
	entry.Uname = key
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muteList[key] = entry
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("uname", key).Int("mins", entry.Mins).Msg("user muted")
}

func (r *roomImpl) Unmute(uname string) bool {
	key := strings.ToLower(uname)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.muteList[key]; !ok {
		return false
	}
	delete(r.muteList, key)
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("uname", key).Msg("user unmuted")
	return true
}

func (r *roomImpl) Muted(uname string) (domain.MuteEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.muteList[strings.ToLower(uname)]
	return entry, ok
}

// Append stamps the next monotonic id and appends to the history.
// The history is append-only; callers broadcast after a successful
// append, never before.
func (r *roomImpl) Append(author domain.Author, text string) domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	msg := domain.Message{ID: r.nextID, User: author, Text: text}
	r.history = append(r.history, msg)
	return msg
}

func (r *roomImpl) History() []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Message, len(r.history))
	copy(out, r.history)
	return out
}

func (r *roomImpl) Snapshot() RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := RoomSnapshot{
		Name:     r.name,
		Members:  make([]domain.Identity, 0, len(r.members)),
		MuteList: make(map[string]domain.MuteEntry, len(r.muteList)),
		History:  make([]domain.Message, len(r.history)),
	}
	for _, id := range r.members {
		snap.Members = append(snap.Members, id)
	}
	for k, e := range r.muteList {
		snap.MuteList[k] = e
	}
	copy(snap.History, r.history)
	return snap
}
