package lobby

import "fmt"

// Registry 管理所有房间。只在 Tick 线程中访问，不加锁。
// 房间从不删除，结束的房间保留以便查询。
type Registry struct {
	rooms map[RoomID]*Room
	order []RoomID
	next  RoomID
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[RoomID]*Room)}
}

// CreateRoom 总是成功，分配下一个顺序 id
func (g *Registry) CreateRoom(name string, capacity int) *Room {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	g.next++
	r := &Room{ID: g.next, Name: name, Capacity: capacity, status: StatusWaiting}
	g.rooms[r.ID] = r
	g.order = append(g.order, r.ID)
	return r
}

func (g *Registry) Get(id RoomID) (*Room, bool) {
	r, ok := g.rooms[id]
	return r, ok
}

// Join 将参与者加入房间。失败时房间状态不变。
func (g *Registry) Join(id RoomID, pid ParticipantID) (*Room, error) {
	r, ok := g.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrRoomNotFound, id)
	}
	if cur := g.FindByParticipant(pid); cur != nil && cur.ID != id {
		return nil, fmt.Errorf("%w: participant %d is in room %d", ErrAlreadyInRoom, pid, cur.ID)
	}
	if err := r.add(pid); err != nil {
		return nil, fmt.Errorf("join room %d: %w", id, err)
	}
	return r, nil
}

// Leave 将参与者从其所在的等待中房间移除，返回受影响的房间
func (g *Registry) Leave(pid ParticipantID) (*Room, bool) {
	r := g.FindByParticipant(pid)
	if r == nil || !r.remove(pid) {
		return nil, false
	}
	return r, true
}

// FindByParticipant 查找参与者所在的未结束房间
func (g *Registry) FindByParticipant(pid ParticipantID) *Room {
	for _, id := range g.order {
		r := g.rooms[id]
		if r.status != StatusEnded && r.Has(pid) {
			return r
		}
	}
	return nil
}

// ListJoinable 仅返回 WAITING 房间，按 id 排序
func (g *Registry) ListJoinable() []Summary {
	out := make([]Summary, 0, len(g.order))
	for _, id := range g.order {
		if r := g.rooms[id]; r.status == StatusWaiting {
			out = append(out, r.Summary())
		}
	}
	return out
}

// All 所有房间（含已结束）
func (g *Registry) All() []Summary {
	out := make([]Summary, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.rooms[id].Summary())
	}
	return out
}
