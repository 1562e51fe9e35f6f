package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bryceweiner/chat-server/internal/domain"
)

func TestRegistry_GetOrCreate_SeedsHistoryOnce(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	// Given no room exists
	_, ok := reg.Get("app:1007")
	req.False(ok)

	// When the room is referenced for the first time
	room := reg.GetOrCreate("app:1007")

	// Then it carries exactly one seed entry
	history := room.History()
	req.Len(history, 1)
	req.Equal(uint64(1), history[0].ID)
	req.Equal("test_owner", history[0].User.Uname)
	req.Equal(domain.RoleOwner, history[0].User.Role)
	req.Equal(":)", history[0].Text)

	// And a second reference returns the same room without reseeding
	again := reg.GetOrCreate("app:1007")
	req.Same(room, again)
	req.Len(again.History(), 1)
}

func TestRegistry_Get_AfterCreate(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	created := reg.GetOrCreate("app:42")
	got, ok := reg.Get("app:42")
	req.True(ok)
	req.Same(created, got)
}

func TestRegistry_List_ReflectsMembership(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	room := reg.GetOrCreate("app:1")
	reg.GetOrCreate("app:2")
	room.AddMember(domain.Identity{ID: 7, Uname: "bob", Role: domain.RoleMember})

	infos := reg.List()
	req.Len(infos, 2)
	counts := map[domain.RoomName]int{}
	for _, info := range infos {
		counts[info.Name] = info.MemberCount
	}
	req.Equal(1, counts["app:1"])
	req.Zero(counts["app:2"])
}
