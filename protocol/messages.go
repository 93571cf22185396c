package protocol

import "fmt"

// MessageType 线上消息的类型标签（1 字节）
type MessageType uint8

const (
	TypeClientConnect    MessageType = 0
	TypeClientDisconnect MessageType = 1
	TypeServerAccept     MessageType = 2
	TypeServerReject     MessageType = 3

	TypeCreateRoomRequest  MessageType = 10
	TypeCreateRoomResponse MessageType = 11
	TypeJoinRoomRequest    MessageType = 12
	TypeJoinRoomResponse   MessageType = 13
	TypeRoomListRequest    MessageType = 14
	TypeRoomListResponse   MessageType = 15
	TypeRoomUpdate         MessageType = 16

	TypeStartMatchRequest  MessageType = 20
	TypeStartMatchResponse MessageType = 21
	TypeMatchState         MessageType = 22

	TypePlayerInput      MessageType = 30
	TypePlayerState      MessageType = 31
	TypeProjectileSpawn  MessageType = 32
	TypeProjectileUpdate MessageType = 33
	TypeProjectileRemove MessageType = 34
	TypePlayerSpawn      MessageType = 35

	TypePing MessageType = 40
	TypePong MessageType = 41
)

const (
	// NameSize 玩家显示名的固定字节宽度
	NameSize = 32
	// RoomNameSize 房间名的固定字节宽度
	RoomNameSize = 64
)

var typeNames = map[MessageType]string{
	TypeClientConnect:      "ClientConnect",
	TypeClientDisconnect:   "ClientDisconnect",
	TypeServerAccept:       "ServerAccept",
	TypeServerReject:       "ServerReject",
	TypeCreateRoomRequest:  "CreateRoomRequest",
	TypeCreateRoomResponse: "CreateRoomResponse",
	TypeJoinRoomRequest:    "JoinRoomRequest",
	TypeJoinRoomResponse:   "JoinRoomResponse",
	TypeRoomListRequest:    "RoomListRequest",
	TypeRoomListResponse:   "RoomListResponse",
	TypeRoomUpdate:         "RoomUpdate",
	TypeStartMatchRequest:  "StartMatchRequest",
	TypeStartMatchResponse: "StartMatchResponse",
	TypeMatchState:         "MatchState",
	TypePlayerInput:        "PlayerInput",
	TypePlayerState:        "PlayerState",
	TypeProjectileSpawn:    "ProjectileSpawn",
	TypeProjectileUpdate:   "ProjectileUpdate",
	TypeProjectileRemove:   "ProjectileRemove",
	TypePlayerSpawn:        "PlayerSpawn",
	TypePing:               "Ping",
	TypePong:               "Pong",
}

func (t MessageType) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// Reliable 报告该类型是否走可靠有序通道。
// 高频的位置/输入/心跳走不可靠通道，其余（创建、销毁、控制类）全部可靠。
func (t MessageType) Reliable() bool {
	switch t {
	case TypePlayerInput, TypePlayerState, TypeProjectileUpdate, TypePing, TypePong:
		return false
	default:
		return true
	}
}

// Message 所有线上消息的公共接口
type Message interface {
	Type() MessageType
}

// MoveBits 移动方向位标志
type MoveBits uint8

const (
	MoveUp MoveBits = 1 << iota
	MoveDown
	MoveLeft
	MoveRight
)

// Has 判断是否包含某个方向位
func (m MoveBits) Has(bit MoveBits) bool { return m&bit != 0 }

// RejectReason 服务端拒绝连接的原因
type RejectReason uint8

const (
	RejectUnknown RejectReason = iota
	RejectServerFull
	RejectShuttingDown
)

func (r RejectReason) String() string {
	switch r {
	case RejectServerFull:
		return "server full"
	case RejectShuttingDown:
		return "shutting down"
	default:
		return fmt.Sprintf("RejectReason(%d)", uint8(r))
	}
}

// RoomInfo 房间列表与房间更新中使用的固定布局条目
type RoomInfo struct {
	RoomID   int32
	Name     string
	Count    int32
	Capacity int32
	Status   uint8
}

type ClientConnect struct {
	Name string
}

type ClientDisconnect struct{}

type ServerAccept struct {
	ParticipantID int32
}

type ServerReject struct {
	Reason RejectReason
}

type CreateRoomRequest struct {
	Name     string
	Capacity int32
}

type CreateRoomResponse struct {
	Success  bool
	RoomID   int32
	Name     string
	Capacity int32
}

type JoinRoomRequest struct {
	RoomID int32
}

type JoinRoomResponse struct {
	Success  bool
	RoomID   int32
	Name     string
	Capacity int32
	Count    int32
}

type RoomListRequest struct{}

type RoomListResponse struct {
	Rooms []RoomInfo
}

// RoomUpdate 房间成员或状态变化时推送给房间成员
type RoomUpdate struct {
	Room RoomInfo
}

type StartMatchRequest struct {
	RoomID int32
}

type StartMatchResponse struct {
	Success bool
	MatchID int32
}

// MatchState 对局状态变化（主要用于通知结束与胜者，WinnerID 为 0 表示无胜者）
type MatchState struct {
	MatchID  int32
	State    uint8
	WinnerID int32
}

// PlayerInput 参与者上行的输入意图：移动位、世界坐标瞄准点、开火
type PlayerInput struct {
	Move MoveBits
	AimX float32
	AimY float32
	Fire bool
}

// PlayerState 主机下行的完整玩家快照
type PlayerState struct {
	ParticipantID int32
	X             float32
	Y             float32
	Angle         float32
	Alive         bool
}

type ProjectileSpawn struct {
	ProjectileID uint32
	X            float32
	Y            float32
	VX           float32
	VY           float32
	OwnerID      int32
}

type ProjectileUpdate struct {
	ProjectileID uint32
	X            float32
	Y            float32
}

type ProjectileRemove struct {
	ProjectileID uint32
}

// PlayerSpawn 建立玩家实体的可靠事件（快照只更新已存在的实体）
type PlayerSpawn struct {
	ParticipantID int32
	X             float32
	Y             float32
	Angle         float32
}

// Ping/Pong 时间戳为发送方本地毫秒时钟（截断为 32 位）
type Ping struct {
	Timestamp uint32
}

type Pong struct {
	Timestamp uint32
}

func (ClientConnect) Type() MessageType      { return TypeClientConnect }
func (ClientDisconnect) Type() MessageType   { return TypeClientDisconnect }
func (ServerAccept) Type() MessageType       { return TypeServerAccept }
func (ServerReject) Type() MessageType       { return TypeServerReject }
func (CreateRoomRequest) Type() MessageType  { return TypeCreateRoomRequest }
func (CreateRoomResponse) Type() MessageType { return TypeCreateRoomResponse }
func (JoinRoomRequest) Type() MessageType    { return TypeJoinRoomRequest }
func (JoinRoomResponse) Type() MessageType   { return TypeJoinRoomResponse }
func (RoomListRequest) Type() MessageType    { return TypeRoomListRequest }
func (RoomListResponse) Type() MessageType   { return TypeRoomListResponse }
func (RoomUpdate) Type() MessageType         { return TypeRoomUpdate }
func (StartMatchRequest) Type() MessageType  { return TypeStartMatchRequest }
func (StartMatchResponse) Type() MessageType { return TypeStartMatchResponse }
func (MatchState) Type() MessageType         { return TypeMatchState }
func (PlayerInput) Type() MessageType        { return TypePlayerInput }
func (PlayerState) Type() MessageType        { return TypePlayerState }
func (ProjectileSpawn) Type() MessageType    { return TypeProjectileSpawn }
func (ProjectileUpdate) Type() MessageType   { return TypeProjectileUpdate }
func (ProjectileRemove) Type() MessageType   { return TypeProjectileRemove }
func (PlayerSpawn) Type() MessageType        { return TypePlayerSpawn }
func (Ping) Type() MessageType               { return TypePing }
func (Pong) Type() MessageType               { return TypePong }
