package server

import (
	"sync/atomic"
)

// PlazaMetrics 记录单个广场运行期的关键指标（用于监控与调试）
type PlazaMetrics struct {
	Joins             int64 // 成功加入的连接数
	MovesRelayed      int64 // 转发出去的增量移动数
	RateLimited       int64 // 因服务端限流窗口被丢弃的移动数
	StaleSeqDropped   int64 // 因旧序列号被丢弃的移动数
	MalformedDropped  int64 // 解码失败被丢弃的入站帧数
	RostersServed     int64 // 下发的全量名册次数
	EmojiRelayed      int64 // 转发的表情数
	ChanFullDiscarded int64 // 因入站通道满被丢弃的消息数
}

func (m *PlazaMetrics) IncJoins() { atomic.AddInt64(&m.Joins, 1) }
func (m *PlazaMetrics) IncMovesRelayed() { atomic.AddInt64(&m.MovesRelayed, 1) }
func (m *PlazaMetrics) IncRateLimited() { atomic.AddInt64(&m.RateLimited, 1) }
func (m *PlazaMetrics) IncStaleSeqDropped() { atomic.AddInt64(&m.StaleSeqDropped, 1) }
func (m *PlazaMetrics) IncMalformedDropped() { atomic.AddInt64(&m.MalformedDropped, 1) }
func (m *PlazaMetrics) IncRostersServed() { atomic.AddInt64(&m.RostersServed, 1) }
func (m *PlazaMetrics) IncEmojiRelayed() { atomic.AddInt64(&m.EmojiRelayed, 1) }
func (m *PlazaMetrics) IncChanFullDiscarded() { atomic.AddInt64(&m.ChanFullDiscarded, 1) }

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *PlazaMetrics) Snapshot() map[string]any {
	return map[string]any{
		"joins":               atomic.LoadInt64(&m.Joins),
		"moves_relayed":       atomic.LoadInt64(&m.MovesRelayed),
		"rate_limited":        atomic.LoadInt64(&m.RateLimited),
		"stale_seq_dropped":   atomic.LoadInt64(&m.StaleSeqDropped),
		"malformed_dropped":   atomic.LoadInt64(&m.MalformedDropped),
		"rosters_served":      atomic.LoadInt64(&m.RostersServed),
		"emoji_relayed":       atomic.LoadInt64(&m.EmojiRelayed),
		"chan_full_discarded": atomic.LoadInt64(&m.ChanFullDiscarded),
	}
}
