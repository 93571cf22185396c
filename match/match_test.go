package match

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arenanet/lobby"
	"arenanet/protocol"
)

func newRoom(t *testing.T, ids ...lobby.ParticipantID) (*lobby.Registry, *lobby.Room) {
	t.Helper()
	g := lobby.NewRegistry()
	r := g.CreateRoom("test", 4)
	for _, id := range ids {
		_, err := g.Join(r.ID, id)
		require.NoError(t, err)
	}
	return g, r
}

func startedMatch(t *testing.T, ids ...lobby.ParticipantID) *Match {
	t.Helper()
	_, r := newRoom(t, ids...)
	cfg := DefaultConfig()
	m := New(1, r, OpenArena(cfg.Width, cfg.Height), cfg)
	require.NoError(t, m.Start())
	return m
}

func TestStartWithTwoParticipants(t *testing.T) {
	_, r := newRoom(t, 1, 2)
	m := New(1, r, DefaultArena(800, 600), DefaultConfig())
	require.NoError(t, m.Start())

	assert.Equal(t, StateInProgress, m.State())
	assert.Equal(t, lobby.StatusInMatch, r.Status())
	require.Len(t, m.Players(), 2)
	for _, p := range m.Players() {
		assert.True(t, p.Alive)
	}
}

func TestStartRequiresWaitingRoom(t *testing.T) {
	for _, st := range []lobby.Status{lobby.StatusStarting, lobby.StatusInMatch, lobby.StatusEnded} {
		t.Run(st.String(), func(t *testing.T) {
			_, r := newRoom(t, 1, 2)
			require.NoError(t, r.Advance(st))

			m := New(1, r, nil, DefaultConfig())
			assert.ErrorIs(t, m.Start(), ErrRoomNotWaiting)
			assert.Equal(t, StatePreparing, m.State())
			assert.Equal(t, st, r.Status())
			assert.Empty(t, m.Players())
		})
	}
}

func TestStartTwiceFails(t *testing.T) {
	m := startedMatch(t, 1, 2)
	assert.ErrorIs(t, m.Start(), ErrNotPreparing)
}

func TestSpawnPositionsAreFreeAndApart(t *testing.T) {
	cfg := DefaultConfig()
	arena := DefaultArena(cfg.Width, cfg.Height)
	spots := placeSpawns(8, cfg, arena)
	require.Len(t, spots, 8)
	for i, a := range spots {
		assert.True(t, arena.CanOccupy(a.X, a.Y, cfg.PlayerRadius), "spot %d blocked", i)
		for j := i + 1; j < len(spots); j++ {
			b := spots[j]
			assert.GreaterOrEqual(t, math.Hypot(a.X-b.X, a.Y-b.Y), 2*cfg.PlayerRadius)
		}
	}
}

func TestSpawnFallsBackToCorner(t *testing.T) {
	cfg := DefaultConfig()
	onlyCorner := OracleFunc(func(x, y, r float64) bool { return x < 100 && y < 100 })
	spots := placeSpawns(1, cfg, onlyCorner)
	require.Len(t, spots, 1)
	assert.Less(t, spots[0].X, 100.0)
	assert.Less(t, spots[0].Y, 100.0)
}

func TestSpawnNeverFails(t *testing.T) {
	cfg := DefaultConfig()
	blocked := OracleFunc(func(x, y, r float64) bool { return false })
	spots := placeSpawns(6, cfg, blocked)
	require.Len(t, spots, 6)
	for _, p := range spots {
		assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y))
	}
}

func TestProjectileExpiresAfterExactLifetime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickInterval = 10 * time.Millisecond
	cfg.ProjectileSpeed = 0
	pr := newProjectile(1, 1, 100, 100, 0, cfg)

	ticks := int(cfg.ProjectileTTL / cfg.TickInterval)
	for i := 0; i < ticks-1; i++ {
		pr.advance(cfg)
	}
	assert.True(t, pr.Active)
	pr.advance(cfg)
	assert.False(t, pr.Active)
	assert.Equal(t, cfg.ProjectileTTL, pr.Age)
}

func TestProjectileInactiveAfterLifetimeTicks(t *testing.T) {
	m := startedMatch(t, 1, 2)
	pr := m.SpawnProjectile(1, 100, 100, 0)
	require.InDelta(t, 10, pr.VX, 1e-9)

	cfg := m.Config()
	ticks := int(math.Ceil(float64(cfg.ProjectileTTL) / float64(cfg.TickInterval)))
	for i := 0; i < ticks; i++ {
		m.Update()
	}
	assert.False(t, pr.Active)
	_, exists := m.Projectile(pr.ID)
	assert.False(t, exists)
}

func TestProjectileLeavesBounds(t *testing.T) {
	cfg := DefaultConfig()
	pr := newProjectile(1, 1, cfg.Width-5, 300, 0, cfg)
	pr.advance(cfg)
	assert.False(t, pr.Active)
	assert.Less(t, pr.Age, cfg.ProjectileTTL)
}

func TestHitEliminatesAndDecidesWinnerOnce(t *testing.T) {
	m := startedMatch(t, 1, 2)
	a, _ := m.Player(1)
	b, _ := m.Player(2)
	pr := m.SpawnProjectile(a.ID, b.X-11, b.Y, 0)

	events := m.Update()
	assert.False(t, b.Alive)
	assert.True(t, a.Alive)
	assert.False(t, pr.Active)
	assert.Contains(t, events, PlayerEliminated{ID: 2, By: 1})
	assert.Contains(t, events, ProjectileRemoved{ID: pr.ID})
	assert.Contains(t, events, Ended{Winner: 1})
	assert.Equal(t, StateEnded, m.State())
	assert.Equal(t, lobby.StatusEnded, m.Room().Status())
	assert.Equal(t, lobby.ParticipantID(1), m.Winner())

	assert.Empty(t, m.Update())
}

func TestProjectileIgnoresItsOwner(t *testing.T) {
	m := startedMatch(t, 1, 2)
	a, _ := m.Player(1)
	m.SpawnProjectile(a.ID, a.X-5, a.Y, 0)
	m.Update()
	assert.True(t, a.Alive)
}

func TestNoWinnerWithSinglePlayer(t *testing.T) {
	m := startedMatch(t, 1)
	p, _ := m.Player(1)
	p.Alive = false
	assert.Empty(t, m.Update())
	assert.Equal(t, StateInProgress, m.State())
}

func TestEliminateAllEndsWithoutWinner(t *testing.T) {
	m := startedMatch(t, 1, 2)
	assert.True(t, m.Eliminate(1))
	assert.False(t, m.Eliminate(1))
	assert.True(t, m.Eliminate(2))

	events := m.Update()
	assert.Equal(t, []Event{Ended{Winner: 0}}, events)
	assert.Equal(t, StateEnded, m.State())
}

func TestFiringFollowsIntentAndCooldown(t *testing.T) {
	m := startedMatch(t, 1, 2)
	a, _ := m.Player(1)

	require.NoError(t, m.ApplyIntent(1, Intent{AimX: a.X + 100, AimY: a.Y, Fire: true}))
	// 未消费前的后续意图不会丢失开火
	require.NoError(t, m.ApplyIntent(1, Intent{AimX: a.X + 100, AimY: a.Y}))
	events := m.Update()
	require.Len(t, events, 1)
	spawned, ok := events[0].(ProjectileSpawned)
	require.True(t, ok)
	assert.Equal(t, ProjectileID(1), spawned.Projectile.ID)
	assert.Equal(t, lobby.ParticipantID(1), spawned.Projectile.Owner)
	assert.InDelta(t, 0, a.Angle, 1e-9)

	require.NoError(t, m.ApplyIntent(1, Intent{AimX: a.X + 100, AimY: a.Y, Fire: true}))
	for _, ev := range m.Update() {
		_, isSpawn := ev.(ProjectileSpawned)
		assert.False(t, isSpawn, "fired during cooldown")
	}

	assert.ErrorIs(t, m.ApplyIntent(42, Intent{}), ErrUnknownPlayer)
}

func TestProjectileIDsAreMonotonic(t *testing.T) {
	m := startedMatch(t, 1, 2)
	first := m.SpawnProjectile(1, 400, 300, 0)
	m.RemoveProjectile(first.ID)
	second := m.SpawnProjectile(1, 400, 300, 0)
	assert.Greater(t, second.ID, first.ID)
}

func TestMovementAndObstacles(t *testing.T) {
	cfg := DefaultConfig()
	open := OpenArena(cfg.Width, cfg.Height)

	p := &Player{X: 400, Y: 300, Alive: true}
	p.intent = Intent{Move: protocol.MoveRight}
	p.applyMove(cfg, open)
	assert.InDelta(t, 402, p.X, 1e-9)

	p.intent = Intent{Move: protocol.MoveUp | protocol.MoveLeft}
	p.applyMove(cfg, open)
	assert.InDelta(t, 402-2*diagonal, p.X, 1e-9)
	assert.InDelta(t, 300+2*diagonal, p.Y, 1e-9)

	wall := OracleFunc(func(x, y, r float64) bool { return x < 405 })
	p = &Player{X: 404, Y: 300, Alive: true}
	p.intent = Intent{Move: protocol.MoveRight | protocol.MoveDown}
	p.applyMove(cfg, wall)
	assert.Equal(t, 404.0, p.X)
	assert.InDelta(t, 300-2*diagonal, p.Y, 1e-9)
}

func TestDefaultArenaBlocksBordersAndObstacles(t *testing.T) {
	a := DefaultArena(800, 600)
	assert.False(t, a.CanOccupy(10, 300, 10))
	assert.False(t, a.CanOccupy(150, 125, 10))
	assert.True(t, a.CanOccupy(400, 300, 10))
}

func TestMirrorOnlyUpdatesKnownEntities(t *testing.T) {
	m := New(3, nil, nil, DefaultConfig())
	m.BeginMirror()
	assert.Equal(t, StateInProgress, m.State())

	assert.False(t, m.ApplyPlayerState(5, 1, 2, 0, true))
	assert.Empty(t, m.Players())

	m.MirrorPlayer(5, 100, 100, 0)
	assert.True(t, m.ApplyPlayerState(5, 120, 130, 1, false))
	p, _ := m.Player(5)
	assert.Equal(t, PlayerView{ID: 5, X: 120, Y: 130, Angle: 1}, m.Snapshot().Players[0])
	assert.False(t, p.Alive)

	assert.False(t, m.ApplyProjectileUpdate(9, 1, 1))
	assert.True(t, m.MirrorProjectile(9, 5, 10, 10, 1, 0))
	assert.False(t, m.MirrorProjectile(9, 5, 10, 10, 1, 0))
	assert.True(t, m.ApplyProjectileUpdate(9, 20, 20))
	assert.True(t, m.RemoveProjectile(9))

	// 删除后迟到的快照与重复生成都被忽略
	assert.False(t, m.ApplyProjectileUpdate(9, 30, 30))
	assert.False(t, m.MirrorProjectile(9, 5, 10, 10, 1, 0))
	assert.Empty(t, m.Snapshot().Projectiles)

	m.MirrorEnd(5)
	assert.Equal(t, StateEnded, m.State())
	assert.Equal(t, lobby.ParticipantID(5), m.Winner())
}

func TestPredictMovesOwnEntityWithoutFiring(t *testing.T) {
	m := New(1, nil, nil, DefaultConfig())
	m.BeginMirror()
	m.MirrorPlayer(2, 400, 300, 0)
	m.Predict(2, Intent{Move: protocol.MoveRight, AimX: 400, AimY: 400, Fire: true})

	p, _ := m.Player(2)
	assert.InDelta(t, 402, p.X, 1e-9)
	assert.InDelta(t, math.Pi/2, p.Angle, 1e-9)
	assert.Empty(t, m.Projectiles())
}

func TestFreezeKeepsPlayerStatic(t *testing.T) {
	m := startedMatch(t, 1, 2)
	p, _ := m.Player(2)
	x, y := p.X, p.Y
	require.True(t, m.Freeze(2))
	require.NoError(t, m.ApplyIntent(2, Intent{Move: protocol.MoveRight}))
	m.Update()
	assert.True(t, p.Alive)
	assert.Equal(t, x, p.X)
	assert.Equal(t, y, p.Y)
}
