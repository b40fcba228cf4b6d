package netsync

import (
	"sync"
	"time"
)

// ResyncInterval 周期性全量重同步间隔：丢掉的差量最多漂移 30 秒就被纠回
const ResyncInterval = 30 * time.Second

// ResyncCoordinator 全量重同步协调器
// 三个触发源：连接建立时立即一次、固定周期一次、对账层发现未知 id 时被动一次
// Nudge 走容量为 1 的通道，一阵未知 id 风暴只会并成一次请求
type ResyncCoordinator struct {
	request  func()
	interval time.Duration

	mu    sync.Mutex
	nudge chan struct{}
	stop  chan struct{}
}

func NewResyncCoordinator(request func(), interval time.Duration) *ResyncCoordinator {
	if interval <= 0 {
		interval = ResyncInterval
	}
	return &ResyncCoordinator{request: request, interval: interval}
}

// Start 启动周期循环并立即发一次请求；重复 Start 是无操作
func (c *ResyncCoordinator) Start() {
	c.mu.Lock()
	if c.stop != nil {
		c.mu.Unlock()
		return
	}
	c.stop = make(chan struct{})
	c.nudge = make(chan struct{}, 1)
	stop, nudge := c.stop, c.nudge
	c.mu.Unlock()

	c.request()
	go c.run(stop, nudge)
}

// Stop 停掉循环；未启动时是无操作
func (c *ResyncCoordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return
	}
	close(c.stop)
	c.stop = nil
	c.nudge = nil
}

// Nudge 被动触发一次重同步（非阻塞，待处理时合并）
func (c *ResyncCoordinator) Nudge() {
	c.mu.Lock()
	nudge := c.nudge
	c.mu.Unlock()
	if nudge == nil {
		return
	}
	select {
	case nudge <- struct{}{}:
	default:
	}
}

func (c *ResyncCoordinator) run(stop chan struct{}, nudge chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.request()
		case <-nudge:
			c.request()
		}
	}
}
