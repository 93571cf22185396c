package session

import (
	"errors"
	"fmt"
	"sort"

	"arenanet/lobby"
	"arenanet/transport"
)

var ErrRegistryFull = errors.New("session: connection limit reached")

// Connection 一个远端进程的活动连接及其参与者身份
type Connection struct {
	Handle      transport.Handle
	Addr        string
	Participant lobby.ParticipantID
	Name        string
}

// ConnectionRegistry 连接句柄与参与者 id 的双向映射。
// 参与者 id 来自单调计数器，整个进程生命周期内不复用。
type ConnectionRegistry struct {
	byHandle      map[transport.Handle]*Connection
	byParticipant map[lobby.ParticipantID]transport.Handle
	next          lobby.ParticipantID
	max           int
}

func NewConnectionRegistry(max int) *ConnectionRegistry {
	return &ConnectionRegistry{
		byHandle:      make(map[transport.Handle]*Connection),
		byParticipant: make(map[lobby.ParticipantID]transport.Handle),
		max:           max,
	}
}

// Allocate 分配一个不绑定连接的参与者 id（本地玩家使用）
func (c *ConnectionRegistry) Allocate() lobby.ParticipantID {
	c.next++
	return c.next
}

// Accept 为新连接分配参与者 id
func (c *ConnectionRegistry) Accept(h transport.Handle, addr string) (*Connection, error) {
	if existing, ok := c.byHandle[h]; ok {
		return existing, nil
	}
	if c.max > 0 && len(c.byHandle) >= c.max {
		return nil, fmt.Errorf("%w: %d connections", ErrRegistryFull, len(c.byHandle))
	}
	conn := &Connection{Handle: h, Addr: addr, Participant: c.Allocate()}
	c.byHandle[h] = conn
	c.byParticipant[conn.Participant] = h
	return conn, nil
}

// Remove 同时删除两个方向的映射
func (c *ConnectionRegistry) Remove(h transport.Handle) (*Connection, bool) {
	conn, ok := c.byHandle[h]
	if !ok {
		return nil, false
	}
	delete(c.byHandle, h)
	delete(c.byParticipant, conn.Participant)
	return conn, true
}

func (c *ConnectionRegistry) ByHandle(h transport.Handle) (*Connection, bool) {
	conn, ok := c.byHandle[h]
	return conn, ok
}

func (c *ConnectionRegistry) HandleOf(pid lobby.ParticipantID) (transport.Handle, bool) {
	h, ok := c.byParticipant[pid]
	return h, ok
}

func (c *ConnectionRegistry) SetName(h transport.Handle, name string) {
	if conn, ok := c.byHandle[h]; ok {
		conn.Name = name
	}
}

func (c *ConnectionRegistry) Len() int { return len(c.byHandle) }

// Connections 按参与者 id 排序
func (c *ConnectionRegistry) Connections() []Connection {
	out := make([]Connection, 0, len(c.byHandle))
	for _, conn := range c.byHandle {
		out = append(out, *conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant < out[j].Participant })
	return out
}
