package lobby

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRoomAssignsSequentialIDs(t *testing.T) {
	g := NewRegistry()
	a := g.CreateRoom("a", 2)
	b := g.CreateRoom("b", 0)
	c := g.CreateRoom("c", 1000)

	assert.Equal(t, RoomID(1), a.ID)
	assert.Equal(t, RoomID(2), b.ID)
	assert.Equal(t, RoomID(3), c.ID)
	assert.Equal(t, DefaultCapacity, b.Capacity)
	assert.Equal(t, MaxCapacity, c.Capacity)
	assert.Equal(t, StatusWaiting, a.Status())
}

func TestJoinFullRoomFails(t *testing.T) {
	g := NewRegistry()
	r := g.CreateRoom("arena", 4)
	for pid := ParticipantID(1); pid <= 4; pid++ {
		_, err := g.Join(r.ID, pid)
		require.NoError(t, err)
		assert.LessOrEqual(t, r.Count(), r.Capacity)
	}

	_, err := g.Join(r.ID, 5)
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, []ParticipantID{1, 2, 3, 4}, r.Participants())
}

func TestJoinRejections(t *testing.T) {
	cases := []struct {
		name  string
		setup func(g *Registry) RoomID
		pid   ParticipantID
		want  error
	}{
		{
			name:  "missing room",
			setup: func(g *Registry) RoomID { return 999 },
			pid:   1,
			want:  ErrRoomNotFound,
		},
		{
			name: "room in match",
			setup: func(g *Registry) RoomID {
				r := g.CreateRoom("r", 4)
				_, _ = g.Join(r.ID, 1)
				_ = r.Advance(StatusInMatch)
				return r.ID
			},
			pid:  2,
			want: ErrRoomNotWaiting,
		},
		{
			name: "ended room",
			setup: func(g *Registry) RoomID {
				r := g.CreateRoom("r", 4)
				_ = r.Advance(StatusEnded)
				return r.ID
			},
			pid:  2,
			want: ErrRoomNotWaiting,
		},
		{
			name: "already in another room",
			setup: func(g *Registry) RoomID {
				first := g.CreateRoom("first", 4)
				_, _ = g.Join(first.ID, 7)
				return g.CreateRoom("second", 4).ID
			},
			pid:  7,
			want: ErrAlreadyInRoom,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewRegistry()
			id := tc.setup(g)
			var before []ParticipantID
			if r, ok := g.Get(id); ok {
				before = r.Participants()
			}

			_, err := g.Join(id, tc.pid)
			assert.ErrorIs(t, err, tc.want)
			if r, ok := g.Get(id); ok {
				assert.Equal(t, before, r.Participants())
			}
		})
	}
}

func TestJoinSameRoomTwiceIsIdempotent(t *testing.T) {
	g := NewRegistry()
	r := g.CreateRoom("r", 2)
	_, err := g.Join(r.ID, 1)
	require.NoError(t, err)
	_, err = g.Join(r.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Count())
}

func TestMemberCannotRejoinStartedRoom(t *testing.T) {
	for _, status := range []Status{StatusStarting, StatusInMatch} {
		t.Run(status.String(), func(t *testing.T) {
			g := NewRegistry()
			r := g.CreateRoom("r", 2)
			_, err := g.Join(r.ID, 1)
			require.NoError(t, err)
			require.NoError(t, r.Advance(status))

			_, err = g.Join(r.ID, 1)
			assert.ErrorIs(t, err, ErrRoomNotWaiting)
			assert.Equal(t, status, r.Status())
			assert.Equal(t, []ParticipantID{1}, r.Participants())
		})
	}
}

func TestListJoinableOnlyWaiting(t *testing.T) {
	g := NewRegistry()
	a := g.CreateRoom("a", 2)
	b := g.CreateRoom("b", 2)
	c := g.CreateRoom("c", 2)
	require.NoError(t, b.Advance(StatusInMatch))
	require.NoError(t, c.Advance(StatusEnded))

	list := g.ListJoinable()
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Len(t, g.All(), 3)
}

func TestStatusIsMonotone(t *testing.T) {
	r := NewRegistry().CreateRoom("r", 2)
	require.NoError(t, r.Advance(StatusStarting))
	require.NoError(t, r.Advance(StatusStarting))
	require.NoError(t, r.Advance(StatusInMatch))
	assert.ErrorIs(t, r.Advance(StatusWaiting), ErrStatusRegression)
	assert.Equal(t, StatusInMatch, r.Status())
}

func TestLeaveOnlyWhileWaiting(t *testing.T) {
	g := NewRegistry()
	r := g.CreateRoom("r", 4)
	_, _ = g.Join(r.ID, 1)
	_, _ = g.Join(r.ID, 2)

	got, ok := g.Leave(1)
	require.True(t, ok)
	assert.Equal(t, r, got)
	assert.Equal(t, []ParticipantID{2}, r.Participants())

	require.NoError(t, r.Advance(StatusInMatch))
	_, ok = g.Leave(2)
	assert.False(t, ok)
	assert.True(t, r.Has(2))
}

func TestFindByParticipantSkipsEnded(t *testing.T) {
	g := NewRegistry()
	old := g.CreateRoom("old", 2)
	_, _ = g.Join(old.ID, 1)
	require.NoError(t, old.Advance(StatusEnded))
	assert.Nil(t, g.FindByParticipant(1))

	// 结束后可以加入新房间
	fresh := g.CreateRoom("new", 2)
	_, err := g.Join(fresh.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, fresh, g.FindByParticipant(1))
}
