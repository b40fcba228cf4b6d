package netsync

import (
	"sync"
	"time"
)

// EmojiTTL 表情存活时长，到期自动视为消失
const EmojiTTL = 3 * time.Second

type emojiEntry struct {
	emoji string
	setAt time.Time
}

// EmojiTracker 每玩家一条临时表情；过期惰性判定，玩家离开时立即清掉
type EmojiTracker struct {
	mu   sync.Mutex
	ttl  time.Duration
	byID map[PlayerID]emojiEntry
}

func NewEmojiTracker(ttl time.Duration) *EmojiTracker {
	if ttl <= 0 {
		ttl = EmojiTTL
	}
	return &EmojiTracker{ttl: ttl, byID: make(map[PlayerID]emojiEntry)}
}

func (t *EmojiTracker) Set(id PlayerID, emoji string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[id] = emojiEntry{emoji: emoji, setAt: now}
}

// Get 返回未过期的表情；过期条目顺手移除
func (t *EmojiTracker) Get(id PlayerID, now time.Time) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[id]
	if !ok {
		return "", false
	}
	if now.Sub(e.setAt) >= t.ttl {
		delete(t.byID, id)
		return "", false
	}
	return e.emoji, true
}

func (t *EmojiTracker) Clear(id PlayerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
}

func (t *EmojiTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID = make(map[PlayerID]emojiEntry)
}
