package lobby

import (
	"errors"
	"fmt"
)

// ParticipantID 主机分配的玩家标识（单调递增，不复用）
type ParticipantID int32

// RoomID 房间标识，按创建顺序从 1 开始
type RoomID int32

// Status 房间状态，只能向前推进
type Status uint8

const (
	StatusWaiting Status = iota
	StatusStarting
	StatusInMatch
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "WAITING"
	case StatusStarting:
		return "STARTING"
	case StatusInMatch:
		return "IN_MATCH"
	case StatusEnded:
		return "ENDED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

const (
	// DefaultCapacity 请求容量 <=0 时使用
	DefaultCapacity = 4
	// MaxCapacity 房间人数上限
	MaxCapacity = 16
)

var (
	ErrRoomNotFound     = errors.New("lobby: room not found")
	ErrRoomNotWaiting   = errors.New("lobby: room is not waiting")
	ErrRoomFull         = errors.New("lobby: room is full")
	ErrAlreadyInRoom    = errors.New("lobby: participant already in another room")
	ErrStatusRegression = errors.New("lobby: room status cannot move backwards")
)

// Room 可加入的大厅房间
type Room struct {
	ID       RoomID
	Name     string
	Capacity int

	status       Status
	participants []ParticipantID
}

// Summary 房间的只读摘要，用于列表与推送
type Summary struct {
	ID       RoomID `json:"id"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
	Capacity int    `json:"capacity"`
	Status   Status `json:"status"`
}

func (r *Room) Status() Status { return r.status }

func (r *Room) Count() int { return len(r.participants) }

// Participants 按加入顺序返回成员副本
func (r *Room) Participants() []ParticipantID {
	out := make([]ParticipantID, len(r.participants))
	copy(out, r.participants)
	return out
}

func (r *Room) Has(pid ParticipantID) bool {
	for _, p := range r.participants {
		if p == pid {
			return true
		}
	}
	return false
}

func (r *Room) Summary() Summary {
	return Summary{ID: r.ID, Name: r.Name, Count: len(r.participants), Capacity: r.Capacity, Status: r.status}
}

// Advance 推进房间状态；相同状态视为无操作，回退返回 ErrStatusRegression
func (r *Room) Advance(to Status) error {
	if to < r.status {
		return fmt.Errorf("%w: %v -> %v", ErrStatusRegression, r.status, to)
	}
	r.status = to
	return nil
}

// add 加入成员；非 WAITING 一律拒绝，等待中已在房间内时幂等成功
func (r *Room) add(pid ParticipantID) error {
	if r.status != StatusWaiting {
		return ErrRoomNotWaiting
	}
	if r.Has(pid) {
		return nil
	}
	if len(r.participants) >= r.Capacity {
		return ErrRoomFull
	}
	r.participants = append(r.participants, pid)
	return nil
}

// remove 仅 WAITING 状态下移除成员；对局中的成员保留（实体由对局处理）
func (r *Room) remove(pid ParticipantID) bool {
	if r.status != StatusWaiting {
		return false
	}
	for i, p := range r.participants {
		if p == pid {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			return true
		}
	}
	return false
}
