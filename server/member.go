package server

import (
	"time"

	"miniplaza/proto"
)

// memberConn 发送端抽象：投递必须非阻塞
type memberConn interface {
	Enqueue(b []byte)
	Close()
}

// member 广场内的一个连接会话（服务端侧保存的最近已知状态）
// 所有字段只在广场协程里读写，不加锁
type member struct {
	id    string
	state proto.PlayerState
	conn  memberConn

	joined   bool      // 已收到 join 事件，开始对外可见
	lastMove time.Time // 服务端侧限流窗口的上次放行时刻
	lastSeq  uint64    // 最近接受的移动序列号

	emoji   string // 当前挂着的表情，空串表示没有
	emojiAt time.Time
}
