package match

import (
	"math"

	"arenanet/lobby"
	"arenanet/protocol"
)

const diagonal = 0.707

// Intent 本地或远端的输入意图，在下一次 Tick 生效
type Intent struct {
	Move protocol.MoveBits
	AimX float64
	AimY float64
	Fire bool
}

// Player 对局中的玩家实体。id 即参与者 id；对局中不删除，只标记死亡。
type Player struct {
	ID    lobby.ParticipantID
	X     float64
	Y     float64
	Angle float64
	Alive bool

	// Frozen 断线后冻结：保留存活但忽略输入
	Frozen bool

	intent   Intent
	aiming   bool
	cooldown int
}

// Intent 当前待生效的意图
func (p *Player) Intent() Intent { return p.intent }

// setIntent 覆盖最新意图；开火触发被锁存到下一次消费
func (p *Player) setIntent(in Intent) {
	fire := p.intent.Fire || in.Fire
	p.intent = in
	p.intent.Fire = fire
	p.aiming = true
}

// aim 朝瞄准点转向；尚无意图或瞄准点与自身重合时保持原朝向
func (p *Player) aim() {
	if !p.aiming {
		return
	}
	dx, dy := p.intent.AimX-p.X, p.intent.AimY-p.Y
	if dx == 0 && dy == 0 {
		return
	}
	p.Angle = math.Atan2(dy, dx)
}

// applyMove 执行一次移动：逐轴检测碰撞，被挡住的轴不动
func (p *Player) applyMove(cfg Config, oracle Oracle) {
	var dx, dy float64
	m := p.intent.Move
	if m.Has(protocol.MoveUp) {
		dy++
	}
	if m.Has(protocol.MoveDown) {
		dy--
	}
	if m.Has(protocol.MoveRight) {
		dx++
	}
	if m.Has(protocol.MoveLeft) {
		dx--
	}
	if dx == 0 && dy == 0 {
		return
	}
	step := cfg.PlayerSpeed
	if dx != 0 && dy != 0 {
		step *= diagonal
	}

	r := cfg.PlayerRadius
	if nx := clamp(p.X+dx*step, r, cfg.Width-r); oracle.CanOccupy(nx, p.Y, r) {
		p.X = nx
	}
	if ny := clamp(p.Y+dy*step, r, cfg.Height-r); oracle.CanOccupy(p.X, ny, r) {
		p.Y = ny
	}
}
