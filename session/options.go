package session

import (
	"fmt"
	"strings"
	"time"

	"arenanet/match"
)

// Role 进程在会话中的角色
type Role uint8

const (
	RoleStandalone Role = iota
	RoleHost
	RoleParticipant
)

func (r Role) String() string {
	switch r {
	case RoleStandalone:
		return "standalone"
	case RoleHost:
		return "host"
	case RoleParticipant:
		return "participant"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// OrphanPolicy 参与者在对局中断线后，其实体如何处理
type OrphanPolicy uint8

const (
	// OrphanEliminate 立即判定死亡，由存活标记同步给其他人
	OrphanEliminate OrphanPolicy = iota
	// OrphanFreeze 保持存活但冻结在原地
	OrphanFreeze
)

func (p OrphanPolicy) String() string {
	if p == OrphanFreeze {
		return "freeze"
	}
	return "eliminate"
}

func (p OrphanPolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// ParseOrphanPolicy 解析 "eliminate" / "freeze"
func ParseOrphanPolicy(s string) (OrphanPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "eliminate":
		return OrphanEliminate, nil
	case "freeze":
		return OrphanFreeze, nil
	default:
		return 0, fmt.Errorf("unknown orphan policy %q", s)
	}
}

// Options 会话参数
type Options struct {
	Name           string
	MaxConnections int

	InputInterval       time.Duration // 参与者上行输入节流
	PlayerStateInterval time.Duration // 主机玩家快照
	ProjectileInterval  time.Duration // 主机子弹快照
	PingInterval        time.Duration

	// 自身实体校正：偏差超过 SnapDistance 直接跳到权威位置，否则按 BlendFactor 逼近
	SnapDistance float64
	BlendFactor  float64

	Orphan OrphanPolicy
	Match  match.Config
	Oracle match.Oracle
}

func DefaultOptions() Options {
	mc := match.DefaultConfig()
	return Options{
		Name:                "player",
		MaxConnections:      32,
		InputInterval:       16 * time.Millisecond,
		PlayerStateInterval: 33 * time.Millisecond,
		ProjectileInterval:  33 * time.Millisecond,
		PingInterval:        time.Second,
		SnapDistance:        24,
		BlendFactor:         0.2,
		Orphan:              OrphanEliminate,
		Match:               mc,
		Oracle:              match.DefaultArena(mc.Width, mc.Height),
	}
}

// Cadence 可在运行时调整的同步节奏
type Cadence struct {
	InputInterval       time.Duration `json:"inputInterval"`
	PlayerStateInterval time.Duration `json:"playerStateInterval"`
	ProjectileInterval  time.Duration `json:"projectileInterval"`
	PingInterval        time.Duration `json:"pingInterval"`
}
