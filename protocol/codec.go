package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

var (
	ErrTruncatedMessage   = errors.New("protocol: truncated message")
	ErrUnknownMessageType = errors.New("protocol: unknown message type")
	ErrMessageTooLarge    = errors.New("protocol: message too large")
)

const (
	tagSize      = 1
	roomInfoSize = 4 + RoomNameSize + 4 + 4 + 1

	// MaxRoomListEntries 房间列表计数字段为 uint16
	MaxRoomListEntries = math.MaxUint16
)

// 定长负载字节数（不含类型标签）；房间列表单独处理
var payloadSizes = map[MessageType]int{
	TypeClientConnect:      NameSize,
	TypeClientDisconnect:   0,
	TypeServerAccept:       4,
	TypeServerReject:       1,
	TypeCreateRoomRequest:  RoomNameSize + 4,
	TypeCreateRoomResponse: 1 + 4 + RoomNameSize + 4,
	TypeJoinRoomRequest:    4,
	TypeJoinRoomResponse:   1 + 4 + RoomNameSize + 4 + 4,
	TypeRoomListRequest:    0,
	TypeRoomUpdate:         roomInfoSize,
	TypeStartMatchRequest:  4,
	TypeStartMatchResponse: 1 + 4,
	TypeMatchState:         4 + 1 + 4,
	TypePlayerInput:        1 + 4 + 4 + 1,
	TypePlayerState:        4 + 4*3 + 1,
	TypeProjectileSpawn:    4 + 4*4 + 4,
	TypeProjectileUpdate:   4 + 4*2,
	TypeProjectileRemove:   4,
	TypePlayerSpawn:        4 + 4*3,
	TypePing:               4,
	TypePong:               4,
}

// Encode 将消息序列化为：1 字节类型标签 + 定长大端负载。
// 每个字段独立写出，不依赖内存布局。
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrUnknownMessageType)
	}
	t := m.Type()
	size, ok := payloadSizes[t]
	if t == TypeRoomListResponse {
		rl, isList := m.(RoomListResponse)
		if !isList {
			return nil, fmt.Errorf("%w: %T", ErrUnknownMessageType, m)
		}
		if len(rl.Rooms) > MaxRoomListEntries {
			return nil, fmt.Errorf("%w: %d rooms in list", ErrMessageTooLarge, len(rl.Rooms))
		}
		size, ok = 2+len(rl.Rooms)*roomInfoSize, true
	}
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMessageType, t)
	}

	w := writer{buf: make([]byte, 0, tagSize+size)}
	w.u8(uint8(t))

	switch v := m.(type) {
	case ClientConnect:
		w.text(v.Name, NameSize)
	case ClientDisconnect, RoomListRequest:
		// 无负载
	case ServerAccept:
		w.i32(v.ParticipantID)
	case ServerReject:
		w.u8(uint8(v.Reason))
	case CreateRoomRequest:
		w.text(v.Name, RoomNameSize)
		w.i32(v.Capacity)
	case CreateRoomResponse:
		w.boolean(v.Success)
		w.i32(v.RoomID)
		w.text(v.Name, RoomNameSize)
		w.i32(v.Capacity)
	case JoinRoomRequest:
		w.i32(v.RoomID)
	case JoinRoomResponse:
		w.boolean(v.Success)
		w.i32(v.RoomID)
		w.text(v.Name, RoomNameSize)
		w.i32(v.Capacity)
		w.i32(v.Count)
	case RoomListResponse:
		w.u16(uint16(len(v.Rooms)))
		for _, r := range v.Rooms {
			w.roomInfo(r)
		}
	case RoomUpdate:
		w.roomInfo(v.Room)
	case StartMatchRequest:
		w.i32(v.RoomID)
	case StartMatchResponse:
		w.boolean(v.Success)
		w.i32(v.MatchID)
	case MatchState:
		w.i32(v.MatchID)
		w.u8(v.State)
		w.i32(v.WinnerID)
	case PlayerInput:
		w.u8(uint8(v.Move))
		w.f32(v.AimX)
		w.f32(v.AimY)
		w.boolean(v.Fire)
	case PlayerState:
		w.i32(v.ParticipantID)
		w.f32(v.X)
		w.f32(v.Y)
		w.f32(v.Angle)
		w.boolean(v.Alive)
	case ProjectileSpawn:
		w.u32(v.ProjectileID)
		w.f32(v.X)
		w.f32(v.Y)
		w.f32(v.VX)
		w.f32(v.VY)
		w.i32(v.OwnerID)
	case ProjectileUpdate:
		w.u32(v.ProjectileID)
		w.f32(v.X)
		w.f32(v.Y)
	case ProjectileRemove:
		w.u32(v.ProjectileID)
	case PlayerSpawn:
		w.i32(v.ParticipantID)
		w.f32(v.X)
		w.f32(v.Y)
		w.f32(v.Angle)
	case Ping:
		w.u32(v.Timestamp)
	case Pong:
		w.u32(v.Timestamp)
	default:
		// 例如传入了指针类型
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessageType, m)
	}
	return w.buf, nil
}

// Decode 解析一条完整消息。缓冲区短于该标签所需负载时返回 ErrTruncatedMessage，
// 未知标签返回 ErrUnknownMessageType。多余的尾部字节被忽略。
func Decode(b []byte) (Message, error) {
	if len(b) < tagSize {
		return nil, fmt.Errorf("%w: empty buffer", ErrTruncatedMessage)
	}
	t := MessageType(b[0])
	payload := b[tagSize:]

	if t == TypeRoomListResponse {
		return decodeRoomList(payload)
	}
	need, ok := payloadSizes[t]
	if !ok {
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownMessageType, uint8(t))
	}
	if len(payload) < need {
		return nil, fmt.Errorf("%w: %v needs %d payload bytes, got %d", ErrTruncatedMessage, t, need, len(payload))
	}

	r := reader{buf: payload}
	switch t {
	case TypeClientConnect:
		return ClientConnect{Name: r.text(NameSize)}, nil
	case TypeClientDisconnect:
		return ClientDisconnect{}, nil
	case TypeServerAccept:
		return ServerAccept{ParticipantID: r.i32()}, nil
	case TypeServerReject:
		return ServerReject{Reason: RejectReason(r.u8())}, nil
	case TypeCreateRoomRequest:
		return CreateRoomRequest{Name: r.text(RoomNameSize), Capacity: r.i32()}, nil
	case TypeCreateRoomResponse:
		return CreateRoomResponse{
			Success:  r.boolean(),
			RoomID:   r.i32(),
			Name:     r.text(RoomNameSize),
			Capacity: r.i32(),
		}, nil
	case TypeJoinRoomRequest:
		return JoinRoomRequest{RoomID: r.i32()}, nil
	case TypeJoinRoomResponse:
		return JoinRoomResponse{
			Success:  r.boolean(),
			RoomID:   r.i32(),
			Name:     r.text(RoomNameSize),
			Capacity: r.i32(),
			Count:    r.i32(),
		}, nil
	case TypeRoomListRequest:
		return RoomListRequest{}, nil
	case TypeRoomUpdate:
		return RoomUpdate{Room: r.roomInfo()}, nil
	case TypeStartMatchRequest:
		return StartMatchRequest{RoomID: r.i32()}, nil
	case TypeStartMatchResponse:
		return StartMatchResponse{Success: r.boolean(), MatchID: r.i32()}, nil
	case TypeMatchState:
		return MatchState{MatchID: r.i32(), State: r.u8(), WinnerID: r.i32()}, nil
	case TypePlayerInput:
		return PlayerInput{
			Move: MoveBits(r.u8()),
			AimX: r.f32(),
			AimY: r.f32(),
			Fire: r.boolean(),
		}, nil
	case TypePlayerState:
		return PlayerState{
			ParticipantID: r.i32(),
			X:             r.f32(),
			Y:             r.f32(),
			Angle:         r.f32(),
			Alive:         r.boolean(),
		}, nil
	case TypeProjectileSpawn:
		return ProjectileSpawn{
			ProjectileID: r.u32(),
			X:            r.f32(),
			Y:            r.f32(),
			VX:           r.f32(),
			VY:           r.f32(),
			OwnerID:      r.i32(),
		}, nil
	case TypeProjectileUpdate:
		return ProjectileUpdate{ProjectileID: r.u32(), X: r.f32(), Y: r.f32()}, nil
	case TypeProjectileRemove:
		return ProjectileRemove{ProjectileID: r.u32()}, nil
	case TypePlayerSpawn:
		return PlayerSpawn{ParticipantID: r.i32(), X: r.f32(), Y: r.f32(), Angle: r.f32()}, nil
	case TypePing:
		return Ping{Timestamp: r.u32()}, nil
	case TypePong:
		return Pong{Timestamp: r.u32()}, nil
	}
	return nil, fmt.Errorf("%w: tag %d", ErrUnknownMessageType, uint8(t))
}

// PeekType 只读取类型标签，不解析负载
func PeekType(b []byte) (MessageType, error) {
	if len(b) < tagSize {
		return 0, fmt.Errorf("%w: empty buffer", ErrTruncatedMessage)
	}
	return MessageType(b[0]), nil
}

func decodeRoomList(payload []byte) (Message, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("%w: RoomListResponse needs count, got %d bytes", ErrTruncatedMessage, len(payload))
	}
	r := reader{buf: payload}
	n := int(r.u16())
	if need := 2 + n*roomInfoSize; len(payload) < need {
		return nil, fmt.Errorf("%w: RoomListResponse with %d rooms needs %d bytes, got %d",
			ErrTruncatedMessage, n, need, len(payload))
	}
	rooms := make([]RoomInfo, n)
	for i := range rooms {
		rooms[i] = r.roomInfo()
	}
	return RoomListResponse{Rooms: rooms}, nil
}

// writer 顺序写出大端字段
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) i32(v int32)  { w.u32(uint32(v)) }
func (w *writer) f32(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

// text 写入定长文本：超长时按 UTF-8 字符边界截断，不足补 0
func (w *writer) text(s string, size int) {
	s = truncateText(s, size)
	w.buf = append(w.buf, s...)
	for i := len(s); i < size; i++ {
		w.buf = append(w.buf, 0)
	}
}

func (w *writer) roomInfo(r RoomInfo) {
	w.i32(r.RoomID)
	w.text(r.Name, RoomNameSize)
	w.i32(r.Count)
	w.i32(r.Capacity)
	w.u8(r.Status)
}

// reader 调用方已确认长度足够
type reader struct {
	buf []byte
	off int
}

func (r *reader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) i32() int32    { return int32(r.u32()) }
func (r *reader) f32() float32  { return math.Float32frombits(r.u32()) }
func (r *reader) boolean() bool { return r.u8() != 0 }

func (r *reader) text(size int) string {
	field := r.buf[r.off : r.off+size]
	r.off += size
	end := len(field)
	for end > 0 && field[end-1] == 0 {
		end--
	}
	return string(field[:end])
}

func (r *reader) roomInfo() RoomInfo {
	return RoomInfo{
		RoomID:   r.i32(),
		Name:     r.text(RoomNameSize),
		Count:    r.i32(),
		Capacity: r.i32(),
		Status:   r.u8(),
	}
}

// truncateText 截断到 size 字节以内，不切断多字节字符
func truncateText(s string, size int) string {
	if len(s) <= size {
		return s
	}
	cut := size
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
