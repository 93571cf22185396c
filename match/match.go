package match

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"arenanet/lobby"
)

// ID 对局标识
type ID int32

// State 对局状态：PREPARING → IN_PROGRESS → ENDED，不可回退
type State uint8

const (
	StatePreparing State = iota
	StateInProgress
	StateEnded
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "PREPARING"
	case StateInProgress:
		return "IN_PROGRESS"
	case StateEnded:
		return "ENDED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

var (
	ErrRoomNotWaiting = errors.New("match: room is not waiting")
	ErrNotPreparing   = errors.New("match: already started")
	ErrUnknownPlayer  = errors.New("match: unknown player")
)

// Event 一次 Update 产生的生命周期事件
type Event interface{ isMatchEvent() }

type ProjectileSpawned struct{ Projectile Projectile }
type ProjectileRemoved struct{ ID ProjectileID }
type PlayerEliminated struct {
	ID lobby.ParticipantID
	By lobby.ParticipantID
}

// Ended 胜负已分；Winner 为 0 表示无幸存者
type Ended struct{ Winner lobby.ParticipantID }

func (ProjectileSpawned) isMatchEvent() {}
func (ProjectileRemoved) isMatchEvent() {}
func (PlayerEliminated) isMatchEvent()  {}
func (Ended) isMatchEvent()             {}

// Match 绑定单个房间的对局实例，持有该局全部实体。
// 只在 Tick 线程中访问。
type Match struct {
	ID ID

	cfg    Config
	oracle Oracle
	room   *lobby.Room
	state  State
	tick   uint64
	winner lobby.ParticipantID

	players []*Player // 按参与者加入顺序
	byID    map[lobby.ParticipantID]*Player

	projectiles    map[ProjectileID]*Projectile
	removed        map[ProjectileID]struct{}
	nextProjectile ProjectileID
}

// New 创建权威对局；room 为 nil 时为镜像对局（参与者侧，实体全部来自事件）
func New(id ID, room *lobby.Room, oracle Oracle, cfg Config) *Match {
	if oracle == nil {
		oracle = OpenArena(cfg.Width, cfg.Height)
	}
	return &Match{
		ID:          id,
		cfg:         cfg,
		oracle:      oracle,
		room:        room,
		state:       StatePreparing,
		byID:        make(map[lobby.ParticipantID]*Player),
		projectiles: make(map[ProjectileID]*Projectile),
		removed:     make(map[ProjectileID]struct{}),
	}
}

func (m *Match) State() State                { return m.state }
func (m *Match) Room() *lobby.Room           { return m.room }
func (m *Match) Config() Config              { return m.cfg }
func (m *Match) Tick() uint64                { return m.tick }
func (m *Match) Winner() lobby.ParticipantID { return m.winner }

// Start 要求房间处于 WAITING：房间 → STARTING，生成实体，房间 → IN_MATCH，对局 → IN_PROGRESS
func (m *Match) Start() error {
	if m.state != StatePreparing {
		return ErrNotPreparing
	}
	if m.room == nil || m.room.Status() != lobby.StatusWaiting {
		return ErrRoomNotWaiting
	}
	if err := m.room.Advance(lobby.StatusStarting); err != nil {
		return err
	}

	ids := m.room.Participants()
	spots := placeSpawns(len(ids), m.cfg, m.oracle)
	cx, cy := m.cfg.Width/2, m.cfg.Height/2
	for i, pid := range ids {
		p := &Player{ID: pid, X: spots[i].X, Y: spots[i].Y, Alive: true}
		// 出生时面向地图中心
		p.Angle = math.Atan2(cy-p.Y, cx-p.X)
		m.addPlayer(p)
	}

	if err := m.room.Advance(lobby.StatusInMatch); err != nil {
		return err
	}
	m.state = StateInProgress
	return nil
}

func (m *Match) addPlayer(p *Player) {
	if _, ok := m.byID[p.ID]; ok {
		return
	}
	m.players = append(m.players, p)
	m.byID[p.ID] = p
}

func (m *Match) Player(pid lobby.ParticipantID) (*Player, bool) {
	p, ok := m.byID[pid]
	return p, ok
}

// Players 按加入顺序
func (m *Match) Players() []*Player { return m.players }

func (m *Match) Projectile(id ProjectileID) (*Projectile, bool) {
	p, ok := m.projectiles[id]
	return p, ok
}

// Projectiles 按 id 升序返回当前存在的子弹
func (m *Match) Projectiles() []*Projectile {
	out := make([]*Projectile, 0, len(m.projectiles))
	for _, p := range m.projectiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyIntent 记录玩家最新意图（权威方），下一次 Update 生效
func (m *Match) ApplyIntent(pid lobby.ParticipantID, in Intent) error {
	p, ok := m.byID[pid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPlayer, pid)
	}
	if p.Frozen {
		return nil
	}
	p.setIntent(in)
	return nil
}

// Fire 以玩家当前位置与朝向立即生成子弹（不受冷却限制）
func (m *Match) Fire(pid lobby.ParticipantID) (*Projectile, error) {
	p, ok := m.byID[pid]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPlayer, pid)
	}
	off := m.cfg.muzzleOffset()
	return m.SpawnProjectile(pid, p.X+math.Cos(p.Angle)*off, p.Y+math.Sin(p.Angle)*off, p.Angle), nil
}

// SpawnProjectile 分配下一个子弹 id 并加入对局
func (m *Match) SpawnProjectile(owner lobby.ParticipantID, x, y, angle float64) *Projectile {
	m.nextProjectile++
	pr := newProjectile(m.nextProjectile, owner, x, y, angle, m.cfg)
	m.projectiles[pr.ID] = pr
	return pr
}

// Update 权威方推进一个 Tick：移动、开火、子弹、命中、胜负
func (m *Match) Update() []Event {
	if m.state != StateInProgress {
		return nil
	}
	m.tick++
	var events []Event

	for _, p := range m.players {
		if !p.Alive || p.Frozen {
			continue
		}
		p.aim()
		p.applyMove(m.cfg, m.oracle)
		if p.cooldown > 0 {
			p.cooldown--
		}
		if p.intent.Fire {
			p.intent.Fire = false
			if p.cooldown == 0 {
				pr, _ := m.Fire(p.ID)
				p.cooldown = m.cfg.FireCooldown
				events = append(events, ProjectileSpawned{Projectile: *pr})
			}
		}
	}

	projectiles := m.Projectiles()
	for _, pr := range projectiles {
		pr.advance(m.cfg)
	}
	for _, pr := range projectiles {
		if !pr.Active {
			continue
		}
		for _, p := range m.players {
			if !p.Alive || p.ID == pr.Owner || !pr.hits(p, m.cfg) {
				continue
			}
			p.Alive = false
			pr.Active = false
			events = append(events, PlayerEliminated{ID: p.ID, By: pr.Owner})
			break
		}
	}
	for _, pr := range projectiles {
		if !pr.Active {
			m.RemoveProjectile(pr.ID)
			events = append(events, ProjectileRemoved{ID: pr.ID})
		}
	}

	if ev, ok := m.checkWin(); ok {
		events = append(events, ev)
	}
	return events
}

// checkWin 存活数 <=1 且总数 >1 时结束对局，只触发一次
func (m *Match) checkWin() (Event, bool) {
	if m.state != StateInProgress || len(m.players) <= 1 {
		return nil, false
	}
	alive := 0
	var survivor lobby.ParticipantID
	for _, p := range m.players {
		if p.Alive {
			alive++
			survivor = p.ID
		}
	}
	if alive > 1 {
		return nil, false
	}
	if alive == 0 {
		survivor = 0
	}
	m.winner = survivor
	m.End()
	return Ended{Winner: survivor}, true
}

// Eliminate 直接判定玩家死亡（例如断线），胜负在下一次 Update 检查
func (m *Match) Eliminate(pid lobby.ParticipantID) bool {
	p, ok := m.byID[pid]
	if !ok || !p.Alive {
		return false
	}
	p.Alive = false
	p.intent = Intent{}
	p.aiming = false
	return true
}

// Freeze 冻结玩家：保持存活与位置，不再响应输入
func (m *Match) Freeze(pid lobby.ParticipantID) bool {
	p, ok := m.byID[pid]
	if !ok {
		return false
	}
	p.Frozen = true
	p.intent = Intent{}
	return true
}

// End 结束对局，房间同步进入 ENDED；之后 Update 不再推进
func (m *Match) End() {
	if m.state == StateEnded {
		return
	}
	m.state = StateEnded
	if m.room != nil {
		_ = m.room.Advance(lobby.StatusEnded)
	}
}

// RemoveProjectile 删除并记入墓碑，之后同 id 的快照与生成事件都被忽略
func (m *Match) RemoveProjectile(id ProjectileID) bool {
	_, ok := m.projectiles[id]
	delete(m.projectiles, id)
	m.removed[id] = struct{}{}
	return ok
}
