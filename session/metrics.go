package session

import (
	"sync/atomic"
)

// Metrics 会话运行期的关键计数（监控与调试用），可被任意协程读取
type Metrics struct {
	TickCount        int64 // Tick 次数
	TotalTickNs      int64 // Tick 累计耗时（纳秒）
	MessagesIn       int64 // 成功解码的入站消息
	MessagesOut      int64 // 发出的消息（广播按接收方计）
	DecodeErrors     int64 // 截断或未知类型而丢弃的包
	PolicyRejections int64 // success=false 的应答
	InputsAccepted   int64 // 主机采纳的远端输入
	InputsSent       int64 // 参与者上行的输入
	SnapshotsApplied int64 // 应用到已知实体的快照
	SnapshotsIgnored int64 // 指向未知实体而被忽略的快照
	Connects         int64
	Disconnects      int64
	ReentrantPolls   int64 // 被拒绝的嵌套轮询
	LastRTTMs        int64 // 最近一次 Ping 往返
}

func (m *Metrics) IncIn()               { atomic.AddInt64(&m.MessagesIn, 1) }
func (m *Metrics) AddOut(n int)         { atomic.AddInt64(&m.MessagesOut, int64(n)) }
func (m *Metrics) IncDecodeErrors()     { atomic.AddInt64(&m.DecodeErrors, 1) }
func (m *Metrics) IncPolicyRejections() { atomic.AddInt64(&m.PolicyRejections, 1) }
func (m *Metrics) IncInputsAccepted()   { atomic.AddInt64(&m.InputsAccepted, 1) }
func (m *Metrics) IncInputsSent()       { atomic.AddInt64(&m.InputsSent, 1) }
func (m *Metrics) IncSnapshotsApplied() { atomic.AddInt64(&m.SnapshotsApplied, 1) }
func (m *Metrics) IncSnapshotsIgnored() { atomic.AddInt64(&m.SnapshotsIgnored, 1) }
func (m *Metrics) IncConnects()         { atomic.AddInt64(&m.Connects, 1) }
func (m *Metrics) IncDisconnects()      { atomic.AddInt64(&m.Disconnects, 1) }
func (m *Metrics) IncReentrantPolls()   { atomic.AddInt64(&m.ReentrantPolls, 1) }
func (m *Metrics) SetRTT(ms int64)      { atomic.StoreInt64(&m.LastRTTMs, ms) }
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":        tick,
		"avg_tick_ms":       avgMs,
		"messages_in":       atomic.LoadInt64(&m.MessagesIn),
		"messages_out":      atomic.LoadInt64(&m.MessagesOut),
		"decode_errors":     atomic.LoadInt64(&m.DecodeErrors),
		"policy_rejections": atomic.LoadInt64(&m.PolicyRejections),
		"inputs_accepted":   atomic.LoadInt64(&m.InputsAccepted),
		"inputs_sent":       atomic.LoadInt64(&m.InputsSent),
		"snapshots_applied": atomic.LoadInt64(&m.SnapshotsApplied),
		"snapshots_ignored": atomic.LoadInt64(&m.SnapshotsIgnored),
		"connects":          atomic.LoadInt64(&m.Connects),
		"disconnects":       atomic.LoadInt64(&m.Disconnects),
		"reentrant_polls":   atomic.LoadInt64(&m.ReentrantPolls),
		"last_rtt_ms":       atomic.LoadInt64(&m.LastRTTMs),
	}
}
