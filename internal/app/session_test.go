package app

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bryceweiner/chat-server/internal/core"
	"github.com/bryceweiner/chat-server/internal/domain"
)

type sentEvent struct {
	Event string
	Data  any
}

type fakeSender struct {
	mu     sync.Mutex
	events []sentEvent
}

func (f *fakeSender) TrySend(event string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{Event: event, Data: v})
	return nil
}

func (f *fakeSender) Events() []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentEvent, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeSender) EventNames() []string {
	out := []string{}
	for _, e := range f.Events() {
		out = append(out, e.Event)
	}
	return out
}

type ackRecorder struct {
	called bool
	code   string
	data   any
}

func (a *ackRecorder) fn() Ack {
	return func(code string, data any) {
		a.called = true
		a.code = code
		a.data = data
	}
}

var bob = domain.Identity{ID: 1, Uname: "bob", Role: domain.RoleMember}

// newIdentifiedSession wires a session for bob into a fresh room with
// the origin connection attached, plus one extra room member to
// observe broadcasts.
func newIdentifiedSession(t *testing.T) (*Session, core.RoomService, *fakeSender, *fakeSender) {
	t.Helper()
	room := core.NewRoom("app:1007")
	origin := &fakeSender{}
	other := &fakeSender{}
	room.Attach("conn-bob", origin)
	room.Attach("conn-other", other)
	sess := NewSession("conn-bob", room, &bob, origin)
	return sess, room, origin, other
}

func TestAdmit_NoIdentity_UserRequired(t *testing.T) {
	req := require.New(t)
	room := core.NewRoom("app:1007")
	origin := &fakeSender{}
	room.Attach("conn-a", origin)
	sess := NewSession("conn-a", room, nil, origin)
	ack := &ackRecorder{}

	// When an anonymous session submits text
	sess.Admit("hello", ack.fn(), false)

	// Then the ack carries USER_REQUIRED and nothing is mutated
	req.True(ack.called)
	req.Equal(CodeUserRequired, ack.code)
	req.Empty(room.History())
	req.Empty(origin.Events())
}

func TestAdmit_NoIdentity_NoAck_Silent(t *testing.T) {
	req := require.New(t)
	room := core.NewRoom("app:1007")
	origin := &fakeSender{}
	sess := NewSession("conn-a", room, nil, origin)

	sess.Admit("hello", nil, false)

	req.Empty(room.History())
	req.Empty(origin.Events())
}

func TestAdmit_MutedSender_BlockedWithSystemMessage(t *testing.T) {
	req := require.New(t)
	sess, room, origin, other := newIdentifiedSession(t)
	room.Mute(domain.NewMuteEntry("BOB", 5, time.Now()))
	ack := &ackRecorder{}

	sess.Admit("hello", ack.fn(), false)

	// broadcast to the whole room, no ack, no history append
	req.False(ack.called)
	req.Empty(room.History())
	req.Equal([]string{"system_message"}, origin.EventNames())
	req.Equal([]string{"system_message"}, other.EventNames())
	req.Equal("User muted", other.Events()[0].Data)
}

func TestAdmit_NonStringText_ClientErrorToOriginOnly(t *testing.T) {
	req := require.New(t)
	sess, room, origin, other := newIdentifiedSession(t)

	sess.Admit(42, nil, false)

	req.Empty(room.History())
	req.Equal([]string{"client_error"}, origin.EventNames())
	req.Empty(other.Events())
}

func TestAdmit_MissingText_ClientError(t *testing.T) {
	req := require.New(t)
	sess, room, origin, _ := newIdentifiedSession(t)

	sess.Admit(nil, nil, false)

	req.Empty(room.History())
	req.Equal([]string{"client_error"}, origin.EventNames())
}

func TestAdmit_TextLengthPolicy(t *testing.T) {
	req := require.New(t)

	for _, tc := range []struct {
		name     string
		text     string
		admitted bool
	}{
		{"whitespace only", "   \t ", false},
		{"empty", "", false},
		{"single char", "a", true},
		{"exactly 140", strings.Repeat("x", 140), true},
		{"141 chars", strings.Repeat("x", 141), false},
		{"140 after trim", "  " + strings.Repeat("x", 140) + "  ", true},
	} {
		sess, room, origin, _ := newIdentifiedSession(t)
		sess.Admit(tc.text, nil, false)
		if tc.admitted {
			req.Len(room.History(), 1, tc.name)
		} else {
			req.Empty(room.History(), tc.name)
			req.Equal([]string{"client_error"}, origin.EventNames(), tc.name)
			req.Equal("`new_message` text must be 1-140 chars", origin.Events()[0].Data, tc.name)
		}
	}
}

func TestAdmit_BadAck_ClientError(t *testing.T) {
	req := require.New(t)
	sess, room, origin, _ := newIdentifiedSession(t)

	sess.Admit("hello", nil, true)

	req.Empty(room.History())
	req.Equal([]string{"client_error"}, origin.EventNames())
	req.Equal("`new_message` requires a callback", origin.Events()[0].Data)
}

func TestAdmit_PlainText_AppendThenBroadcastThenAck(t *testing.T) {
	req := require.New(t)
	sess, room, origin, other := newIdentifiedSession(t)
	ack := &ackRecorder{}

	sess.Admit("hello room", ack.fn(), false)

	history := room.History()
	req.Len(history, 1)
	msg := history[0]
	req.Equal("hello room", msg.Text)
	req.Equal("bob", msg.User.Uname)
	req.Equal(domain.RoleMember, msg.User.Role)

	// every connection in the room gets the broadcast, origin included
	req.Equal([]string{"new_message"}, origin.EventNames())
	req.Equal([]string{"new_message"}, other.EventNames())
	req.Equal(msg, other.Events()[0].Data)

	req.True(ack.called)
	req.Empty(ack.code)
}

func TestAdmit_BroadcastOrderMatchesAppendOrder(t *testing.T) {
	req := require.New(t)
	sess, room, _, other := newIdentifiedSession(t)

	sess.Admit("first", nil, false)
	sess.Admit("second", nil, false)

	history := room.History()
	req.Len(history, 2)
	req.Less(history[0].ID, history[1].ID)

	events := other.Events()
	req.Len(events, 2)
	req.Equal(history[0], events[0].Data)
	req.Equal(history[1], events[1].Data)
}

func TestAdmit_MuteCommand(t *testing.T) {
	req := require.New(t)
	sess, room, _, other := newIdentifiedSession(t)
	before := time.Now()

	sess.Admit("/mute Carol 10", nil, false)

	// mute list keyed by lower case, expiry stamped from now+mins
	entry, muted := room.Muted("carol")
	req.True(muted)
	req.Equal("carol", entry.Uname)
	req.Equal(10, entry.Mins)
	req.WithinDuration(before.Add(10*time.Minute), entry.ExpiresAt, 5*time.Second)

	req.Equal([]string{"user_muted"}, other.EventNames())
	req.Empty(room.History(), "commands are not chat text")
}

func TestAdmit_UnmuteCommand_RestoresAdmission(t *testing.T) {
	req := require.New(t)
	sess, room, origin, other := newIdentifiedSession(t)
	carol := domain.Identity{ID: 2, Uname: "carol", Role: domain.RoleMember}
	carolConn := &fakeSender{}
	room.Attach("conn-carol", carolConn)
	carolSess := NewSession("conn-carol", room, &carol, carolConn)

	// Given carol is muted
	sess.Admit("/mute carol 10", nil, false)
	carolSess.Admit("hi", nil, false)
	req.Empty(room.History())

	// When bob unmutes her
	sess.Admit("/unmute carol", nil, false)

	// Then the room hears user_unmuted and bob gets a confirmation
	req.Contains(other.EventNames(), "user_unmuted")
	req.Contains(origin.EventNames(), "system_message")
	req.Equal(`User "carol" unmuted`, origin.Events()[len(origin.Events())-1].Data)

	// And carol can post again
	carolSess.Admit("hi again", nil, false)
	req.Len(room.History(), 1)
	req.Equal("hi again", room.History()[0].Text)
}

func TestAdmit_UnmuteUnknown_SystemMessageToOrigin(t *testing.T) {
	req := require.New(t)
	sess, _, origin, other := newIdentifiedSession(t)

	sess.Admit("/unmute ghost", nil, false)

	req.Equal([]string{"system_message"}, origin.EventNames())
	req.Equal(`User "ghost" not in mutelist`, origin.Events()[0].Data)
	req.Empty(other.Events())
}

func TestAdmit_InvalidCommands_SystemMessageToOrigin(t *testing.T) {
	req := require.New(t)

	for text, want := range map[string]string{
		"/mute carol":   "Invalid mute command",
		"/unmute":       "Invalid unmute command",
		"/mute c@rol 5": "Invalid mute command",
	} {
		sess, room, origin, other := newIdentifiedSession(t)
		sess.Admit(text, nil, false)
		req.Empty(room.History(), text)
		req.Equal([]string{"system_message"}, origin.EventNames(), text)
		req.Equal(want, origin.Events()[0].Data, text)
		req.Empty(other.Events(), text)
	}
}

func TestAdmit_ModerationNotRoleGated(t *testing.T) {
	req := require.New(t)
	sess, room, _, _ := newIdentifiedSession(t)

	// bob is a plain member; the command still lands
	req.Equal(domain.RoleMember, sess.Identity.Role)
	sess.Admit("/mute carol 1", nil, false)

	_, muted := room.Muted("carol")
	req.True(muted)
}
