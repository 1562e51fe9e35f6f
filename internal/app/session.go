package app

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/bryceweiner/chat-server/internal/core"
	"github.com/bryceweiner/chat-server/internal/domain"
)

const MaxMessageLen = 140

// Error codes surfaced through acks.
const (
	CodeUserRequired  = "USER_REQUIRED"
	CodeInternalError = "INTERNAL_ERROR"
)

// Ack reports the outcome of one inbound event back to its sender.
// An empty code means success. Nil when the client supplied no callback.
type Ack func(code string, data any)

// Session is one live connection bound to exactly one room, optionally
// one identity. Created on successful auth, destroyed on disconnect.
type Session struct {
	ConnID   core.ConnID
	Identity *domain.Identity // nil for anonymous sessions

	room   core.RoomService
	sender core.Sender
	now    func() time.Time
}

func NewSession(cid core.ConnID, room core.RoomService, ident *domain.Identity, sender core.Sender) *Session {
	return &Session{
		ConnID:   cid,
		Identity: ident,
		room:     room,
		sender:   sender,
		now:      time.Now,
	}
}

func (s *Session) RoomName() domain.RoomName { return s.room.Name() }

// emit sends to the originating connection only.
func (s *Session) emit(event string, v any) {
	if err := s.sender.TrySend(event, v); err != nil {
		log.Warn().Err(err).Str("module", "app.session").Str("cid", string(s.ConnID)).Str("event", event).Msg("emit drop")
	}
}

// Admit runs inbound text through the ordered admission checks,
// short-circuiting on the first failure. Checks that fail before the
// text is even inspected (identity, mute) must not look at raw at all,
// so raw stays untyped until its turn. badAck marks a callback
// reference that was supplied but unusable; it is rejected in pipeline
// order, after the text checks.
func (s *Session) Admit(raw any, ack Ack, badAck bool) {
	if s.Identity == nil {
		if ack != nil {
			ack(CodeUserRequired, nil)
		}
		return
	}

	if _, muted := s.room.Muted(s.Identity.Uname); muted {
		s.room.Broadcast("system_message", "User muted")
		return
	}

	text, ok := raw.(string)
	if !ok {
		s.emit("client_error", "`new_message` requires string as first argument")
		return
	}

	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n < 1 || n > MaxMessageLen {
		s.emit("client_error", "`new_message` text must be 1-140 chars")
		return
	}

	if badAck {
		s.emit("client_error", "`new_message` requires a callback")
		return
	}

	switch cmd := parseCommand(text).(type) {
	case unmuteCmd:
		s.unmute(cmd)
	case muteCmd:
		s.mute(cmd)
	case invalidCmd:
		s.emit("system_message", cmd.reason)
	case chatText:
		s.post(cmd.text, ack)
	}
}

// post appends to the room history, then broadcasts, then acks.
// Never the other way around.
func (s *Session) post(text string, ack Ack) {
	msg := s.room.Append(s.Identity.Author(), text)
	s.room.Broadcast("new_message", msg)
	log.Debug().Str("module", "app.session").Str("room", string(s.room.Name())).Uint64("id", msg.ID).Msg("message posted")
	if ack != nil {
		ack("", nil)
	}
}

func (s *Session) mute(cmd muteCmd) {
	entry := domain.NewMuteEntry(strings.ToLower(cmd.uname), cmd.mins, s.now())
	s.room.Mute(entry)
	s.room.Broadcast("user_muted", entry)
}

func (s *Session) unmute(cmd unmuteCmd) {
	uname := strings.ToLower(cmd.uname)
	if !s.room.Unmute(uname) {
		s.emit("system_message", fmt.Sprintf("User %q not in mutelist", uname))
		return
	}
	s.room.Broadcast("user_unmuted", map[string]string{"uname": uname})
	s.emit("system_message", fmt.Sprintf("User %q unmuted", uname))
}
