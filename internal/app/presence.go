package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/bryceweiner/chat-server/internal/core"
	"github.com/bryceweiner/chat-server/internal/domain"
)

// PresenceCoordinator reconciles session lifecycle with room
// membership. An identity may hold several concurrent connections;
// only the first one in a room announces user_joined and only the last
// one out announces user_left.
type PresenceCoordinator struct {
	mu       sync.RWMutex
	sessions map[core.ConnID]*Session
	users    map[string]domain.Identity
}

func NewPresenceCoordinator() *PresenceCoordinator {
	return &PresenceCoordinator{
		sessions: make(map[core.ConnID]*Session),
		users:    make(map[string]domain.Identity),
	}
}

func (p *PresenceCoordinator) Join(s *Session, room core.RoomService) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[s.ConnID] = s

	if s.Identity == nil {
		log.Info().Str("module", "app.presence").Str("cid", string(s.ConnID)).Str("room", string(room.Name())).Msg("anonymous session joined")
		return
	}

	uname := s.Identity.Uname
	p.users[uname] = *s.Identity

	if room.HasMember(uname) {
		// same identity, another connection: membership unchanged
		log.Info().Str("module", "app.presence").Str("cid", string(s.ConnID)).Str("uname", uname).Msg("extra connection for identity")
		return
	}
	room.AddMember(*s.Identity)
	room.Broadcast("user_joined", *s.Identity)
}

func (p *PresenceCoordinator) Leave(cid core.ConnID, room core.RoomService) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[cid]
	if !ok {
		log.Debug().Str("module", "app.presence").Str("cid", string(cid)).Msg("leave for unknown session")
		return
	}
	delete(p.sessions, cid)

	if s.Identity == nil {
		return
	}
	uname := s.Identity.Uname

	inRoom, anywhere := false, false
	for _, other := range p.sessions {
		if other.Identity == nil || other.Identity.Uname != uname {
			continue
		}
		anywhere = true
		if other.RoomName() == s.RoomName() {
			inRoom = true
		}
	}

	if !anywhere {
		delete(p.users, uname)
	}
	if inRoom {
		return
	}
	room.RemoveMember(uname)
	room.Broadcast("user_left", *s.Identity)
}

func (p *PresenceCoordinator) Session(cid core.ConnID) (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[cid]
	return s, ok
}

func (p *PresenceCoordinator) SessionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

func (p *PresenceCoordinator) Identities() []domain.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Identity, 0, len(p.users))
	for _, id := range p.users {
		out = append(out, id)
	}
	return out
}
