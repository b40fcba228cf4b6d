package server

import (
	"sync"
	"sync/atomic"
	"time"

	"miniplaza/netsync"
	"miniplaza/proto"
)

// 广场缺省配置，可经 /admin/config 热更新
const (
	defaultMoveWindow = 40 * time.Millisecond // 略松于客户端 50ms 节流，容忍网络抖动
	defaultMaxMembers = 64
	defaultEmojiTTL   = 3 * time.Second
	housekeepInterval = 500 * time.Millisecond
)

// Plaza 广场：名册与转发的权威所在，全部状态由单个协程推进
// 网络读协程只往 inbox 投消息，不直接改名册
type Plaza struct {
	ID string

	members   map[string]*member
	inbox     chan inbound
	joinChan  chan *member
	leaveChan chan string

	// 配置（admin 热更新，读写都过 cfgMu）
	cfgMu      sync.Mutex
	moveWindow time.Duration
	maxMembers int
	emojiTTL   time.Duration

	metrics *PlazaMetrics

	// 回收判据（管理器侧原子读，广场协程侧写）
	memberCount int64
	lastActive  int64 // UnixNano

	stop    chan struct{}
	exited  chan struct{}
	started bool
}

// NewPlaza 创建广场，初始化数据结构
func NewPlaza(id string) *Plaza {
	return &Plaza{
		ID:         id,
		members:    make(map[string]*member),
		inbox:      make(chan inbound, 256), // 足够缓冲，避免网络读阻塞转发
		joinChan:   make(chan *member, 16),
		leaveChan:  make(chan string, 64),
		moveWindow: defaultMoveWindow,
		maxMembers: defaultMaxMembers,
		emojiTTL:   defaultEmojiTTL,
		metrics:    &PlazaMetrics{},
		lastActive: time.Now().UnixNano(),
		stop:       make(chan struct{}),
		exited:     make(chan struct{}),
	}
}

// Start 启动广场协程；重复调用是无操作
func (p *Plaza) Start() {
	if p.started {
		return
	}
	p.started = true
	go p.run()
}

// Stop 终止广场主循环；只能在把广场从管理器摘除之后调用一次
func (p *Plaza) Stop() {
	close(p.stop)
}

// touch 刷新活跃时间戳，供空置回收判断
func (p *Plaza) touch() {
	atomic.StoreInt64(&p.lastActive, time.Now().UnixNano())
}

// idleFor 返回广场空置时长；还有成员时恒为 0
func (p *Plaza) idleFor(now time.Time) time.Duration {
	if atomic.LoadInt64(&p.memberCount) != 0 {
		return 0
	}
	last := time.Unix(0, atomic.LoadInt64(&p.lastActive))
	return now.Sub(last)
}

// Register 新连接注册（welcome 已由接入层发出）
func (p *Plaza) Register(m *member) {
	p.joinChan <- m
}

// RequestLeave 请求在广场协程里移除会话，避免并发改名册
func (p *Plaza) RequestLeave(sessionID string) {
	p.leaveChan <- sessionID
}

// Submit 入站消息投递（非阻塞，满则丢弃，保转发实时性）
func (p *Plaza) Submit(in inbound) {
	select {
	case p.inbox <- in:
	default:
		p.metrics.IncChanFullDiscarded()
	}
}

// run 广场主循环：注册/离开/入站消息/定期打扫，逐条跑完再取下一条
func (p *Plaza) run() {
	defer close(p.exited)
	housekeep := time.NewTicker(housekeepInterval)
	defer housekeep.Stop()
	for {
		select {
		case <-p.stop:
			return
		case m := <-p.joinChan:
			p.handleRegister(m)
		case sid := <-p.leaveChan:
			p.handleLeave(sid)
		case in := <-p.inbox:
			p.dispatch(in)
		case now := <-housekeep.C:
			p.sweepEmoji(now)
		}
	}
}

func (p *Plaza) handleRegister(m *member) {
	p.cfgMu.Lock()
	limit := p.maxMembers
	p.cfgMu.Unlock()
	if len(p.members) >= limit {
		Log.Warnw("plaza full, rejecting", "plaza", p.ID, "session", m.id)
		m.conn.Close()
		return
	}
	p.members[m.id] = m
	atomic.AddInt64(&p.memberCount, 1)
	p.touch()
}

func (p *Plaza) handleLeave(sessionID string) {
	m, ok := p.members[sessionID]
	if !ok {
		return
	}
	delete(p.members, sessionID)
	atomic.AddInt64(&p.memberCount, -1)
	p.touch()
	m.conn.Close()
	if m.joined {
		p.broadcast(proto.TypePlayerLeft, proto.LeftPayload{ID: sessionID}, sessionID)
		Log.Infow("player left", "plaza", p.ID, "session", sessionID)
	}
}

func (p *Plaza) dispatch(in inbound) {
	m, ok := p.members[in.sessionID]
	if !ok {
		return
	}
	switch in.msg.Type {
	case proto.TypeJoin:
		p.handleJoin(m, in.msg.Join)
	case proto.TypeMove:
		p.handleMove(m, in.msg.Move, time.Now())
	case proto.TypeRequestPlayers:
		p.sendRoster(m)
	case proto.TypeEmoji:
		p.handleEmoji(m, in.msg.Emoji, time.Now())
	case proto.TypeColor:
		p.handleColor(m, in.msg.Color)
	default:
		// 客户端不该发的类型：按畸形处理
		p.metrics.IncMalformedDropped()
	}
}

// handleJoin 宣告加入：会话 id 以服务端分配为准，客户端带什么 id 都不认
func (p *Plaza) handleJoin(m *member, st *proto.PlayerState) {
	if st == nil {
		p.metrics.IncMalformedDropped()
		return
	}
	state := *st
	state.ID = m.id
	if state.Animation == "" {
		state.Animation = netsync.DefaultAnimation
	}
	state.Rotation = netsync.NormalizeAngle(state.Rotation)

	first := !m.joined
	m.state = state
	m.joined = true
	if first {
		p.metrics.IncJoins()
		p.broadcast(proto.TypePlayerJoined, state, m.id)
		Log.Infow("player joined", "plaza", p.ID, "session", m.id, "color", state.Color)
	}
	// 加入即下发一份全量名册，新客户端不用再单独请求
	p.sendRoster(m)
}

// handleMove 增量移动：限流窗口内丢弃、旧序列号丢弃，其余合并并转发
func (p *Plaza) handleMove(m *member, mv *proto.MovePayload, now time.Time) {
	if mv == nil || !m.joined {
		p.metrics.IncMalformedDropped()
		return
	}
	p.cfgMu.Lock()
	window := p.moveWindow
	p.cfgMu.Unlock()
	if !m.lastMove.IsZero() && now.Sub(m.lastMove) < window {
		p.metrics.IncRateLimited()
		return
	}
	if mv.Seq != 0 {
		if mv.Seq <= m.lastSeq {
			p.metrics.IncStaleSeqDropped()
			return
		}
		m.lastSeq = mv.Seq
	}
	m.lastMove = now

	if mv.Position != nil {
		m.state.Position = *mv.Position
	}
	if mv.Rotation != nil {
		m.state.Rotation = netsync.NormalizeAngle(*mv.Rotation)
	}
	if mv.Animation != nil {
		m.state.Animation = *mv.Animation
	}
	if mv.Color != nil {
		m.state.Color = *mv.Color
	}
	if mv.Flags != nil {
		if m.state.Flags == nil {
			m.state.Flags = make(map[string]bool, len(mv.Flags))
		}
		for k, v := range mv.Flags {
			m.state.Flags[k] = v
		}
	}

	out := *mv
	out.ID = m.id
	p.broadcast(proto.TypePlayerMoved, out, m.id)
	p.metrics.IncMovesRelayed()
}

func (p *Plaza) handleEmoji(m *member, e *proto.EmojiPayload, now time.Time) {
	if e == nil || !m.joined {
		p.metrics.IncMalformedDropped()
		return
	}
	m.emoji = e.Emoji
	m.emojiAt = now
	p.broadcast(proto.TypePlayerEmoji, proto.EmojiPayload{ID: m.id, Emoji: e.Emoji}, m.id)
	p.metrics.IncEmojiRelayed()
}

// handleColor 显式换色：入名册并以 player-moved 形式广播给其他人
func (p *Plaza) handleColor(m *member, c *proto.ColorPayload) {
	if c == nil || !m.joined {
		p.metrics.IncMalformedDropped()
		return
	}
	m.state.Color = c.Color
	color := c.Color
	p.broadcast(proto.TypePlayerMoved, proto.MovePayload{ID: m.id, Color: &color}, m.id)
}

// sendRoster 给单个会话下发全量名册（只含已 join 的成员）
func (p *Plaza) sendRoster(m *member) {
	roster := make(map[string]proto.PlayerState, len(p.members))
	for id, other := range p.members {
		if other.joined {
			roster[id] = other.state
		}
	}
	b, err := proto.Encode(proto.TypePlayers, roster)
	if err != nil {
		Log.Errorw("encode roster", "err", err)
		return
	}
	m.conn.Enqueue(b)
	p.metrics.IncRostersServed()
}

// sweepEmoji 表情到期打扫：过期即广播 player-emoji-removed
func (p *Plaza) sweepEmoji(now time.Time) {
	p.cfgMu.Lock()
	ttl := p.emojiTTL
	p.cfgMu.Unlock()
	for id, m := range p.members {
		if m.emoji == "" || now.Sub(m.emojiAt) < ttl {
			continue
		}
		emoji := m.emoji
		m.emoji = ""
		p.broadcast(proto.TypePlayerEmojiRemoved, proto.EmojiPayload{ID: id, Emoji: emoji}, "")
	}
}

// broadcast 编码一次、投递给除 exclude 外的所有已加入成员
func (p *Plaza) broadcast(msgType string, payload any, exclude string) {
	b, err := proto.Encode(msgType, payload)
	if err != nil {
		Log.Errorw("encode broadcast", "type", msgType, "err", err)
		return
	}
	for id, m := range p.members {
		if id == exclude || !m.joined {
			continue
		}
		m.conn.Enqueue(b)
	}
}
