package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/bryceweiner/chat-server/internal/core"
	"github.com/bryceweiner/chat-server/internal/domain"
	"github.com/bryceweiner/chat-server/internal/identity"
)

// AuthResult is the payload of a successful auth ack.
type AuthResult struct {
	User *domain.Identity  `json:"user"`
	Room core.RoomSnapshot `json:"room"`
}

// Coordinator is the top-level façade. It owns every mutable registry
// (connections, rooms, presence); nothing in this package is a
// process-wide singleton.
type Coordinator struct {
	Rooms    core.RoomRegistry
	Presence *PresenceCoordinator
	Gateway  identity.Gateway

	mu    sync.RWMutex
	conns map[core.ConnID]core.Sender
}

func NewCoordinator(rooms core.RoomRegistry, presence *PresenceCoordinator, gw identity.Gateway) *Coordinator {
	return &Coordinator{
		Rooms:    rooms,
		Presence: presence,
		Gateway:  gw,
		conns:    make(map[core.ConnID]core.Sender),
	}
}

// Connect tracks a raw connection before it has authenticated.
// A connection that never completes auth has nothing else to clean up.
func (c *Coordinator) Connect(cid core.ConnID, sender core.Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[cid] = sender
	log.Info().Str("module", "app.coordinator").Str("cid", string(cid)).Msg("connection registered")
}

func (c *Coordinator) connected(cid core.ConnID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.conns[cid]
	return ok
}

func (c *Coordinator) ConnCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns)
}

// Authenticate resolves the app (and optionally the identity) and, if
// the connection survived the round-trips, admits it to its room.
// Returns the session, or nil when no session was created.
func (c *Coordinator) Authenticate(ctx context.Context, cid core.ConnID, sender core.Sender, appID int64, tokenHash string, ack Ack) *Session {
	app, err := c.Gateway.FindAppByID(ctx, appID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Int64("app_id", appID).Msg("app lookup failed")
		ack(CodeInternalError, nil)
		return nil
	}
	if app == nil {
		c.emit(sender, "client_error", "no app found with the app_id you sent to `auth` event")
		return nil
	}

	var ident *domain.Identity
	if tokenHash != "" {
		ident, err = c.Gateway.FindUserByTokenHash(ctx, tokenHash)
		if err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Msg("token lookup failed")
			ack(CodeInternalError, nil)
			return nil
		}
		// an unresolvable hash falls back to an anonymous session
	}

	// The disconnect may have raced ahead of the gateway round-trips;
	// a gone connection must not be joined to a room.
	if !c.connected(cid) {
		log.Warn().Str("module", "app.coordinator").Str("cid", string(cid)).Msg("connection gone before auth completed")
		return nil
	}

	roomName := domain.RoomName(fmt.Sprintf("app:%d", app.ID))
	room := c.Rooms.GetOrCreate(roomName)
	sess := NewSession(cid, room, ident, sender)

	room.Attach(cid, sender)
	c.Presence.Join(sess, room)

	ack("", AuthResult{User: ident, Room: room.Snapshot()})
	return sess
}

// Disconnect drops the connection record and, if a session existed,
// detaches it from its room and reconciles presence.
func (c *Coordinator) Disconnect(cid core.ConnID) {
	c.mu.Lock()
	delete(c.conns, cid)
	c.mu.Unlock()

	sess, ok := c.Presence.Session(cid)
	if !ok {
		log.Debug().Str("module", "app.coordinator").Str("cid", string(cid)).Msg("disconnect before auth")
		return
	}
	room, ok := c.Rooms.Get(sess.RoomName())
	if !ok {
		return
	}
	room.Detach(cid)
	c.Presence.Leave(cid, room)
}

// Heartbeat logs a diagnostic snapshot on a fixed interval until the
// context is cancelled. Side-channel only, no functional effect.
func (c *Coordinator) Heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			unames := lo.Map(c.Presence.Identities(), func(id domain.Identity, _ int) string {
				return id.Uname
			})
			log.Debug().
				Str("module", "app.coordinator").
				Int("conn_count", c.ConnCount()).
				Int("session_count", c.Presence.SessionCount()).
				Int("user_count", len(unames)).
				Strs("unames", unames).
				Interface("rooms", c.Rooms.List()).
				Msg("heartbeat")
		}
	}
}

func (c *Coordinator) emit(sender core.Sender, event string, v any) {
	if err := sender.TrySend(event, v); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("event", event).Msg("emit drop")
	}
}
