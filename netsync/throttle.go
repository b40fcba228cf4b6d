package netsync

import (
	"sync"
	"time"
)

// SendInterval 出站节拍：每个 id 至多 20Hz（50ms 窗口）
const SendInterval = 50 * time.Millisecond

// Throttle 出站限流器：窗口内的调用被丢弃而非排队——
// 窗口结束前来了更新的状态，下个放行点只会反映最新一份，
// 用保真度换带宽上界
type Throttle struct {
	mu     sync.Mutex
	window time.Duration
	last   map[PlayerID]time.Time
}

func NewThrottle(window time.Duration) *Throttle {
	if window <= 0 {
		window = SendInterval
	}
	return &Throttle{window: window, last: make(map[PlayerID]time.Time)}
}

// Allow 判定此刻是否放行一次发送；放行即记账
func (t *Throttle) Allow(id PlayerID, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.last[id]; ok && now.Sub(last) < t.window {
		return false
	}
	t.last[id] = now
	return true
}

// Reset 断开连接时清空所有窗口记账
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = make(map[PlayerID]time.Time)
}
