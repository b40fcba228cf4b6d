package netsync

import (
	"sync"

	"miniplaza/proto"
)

// Store 玩家状态存储：id → 状态
// 恰好一个条目是"本地"玩家（本连接拥有），其余均为远端
// 多协程并发访问（输入路径、入站对账、插值 Tick），用读写锁保护
type Store struct {
	mu      sync.RWMutex
	players map[PlayerID]*proto.PlayerState
	localID PlayerID
}

func NewStore() *Store {
	return &Store{players: make(map[PlayerID]*proto.PlayerState)}
}

// SetLocalID 记录本地玩家的会话标识（welcome 到达时调用）
// 旧键下保留的本地状态（重连前的旧 id，或连接前写入时的空 id）
// 一律搬到新键下，旧条目作废——连接前的输入不丢
func (s *Store) SetLocalID(id PlayerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.localID != id {
		if old, ok := s.players[s.localID]; ok {
			old.ID = string(id)
			s.players[id] = old
			delete(s.players, s.localID)
		}
	}
	s.localID = id
}

func (s *Store) LocalID() PlayerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localID
}

// Get 按 id 取状态副本
func (s *Store) Get(id PlayerID) (proto.PlayerState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.players[id]
	if !ok {
		return proto.PlayerState{}, false
	}
	return cloneState(*st), true
}

// Local 取本地玩家状态副本
func (s *Store) Local() (proto.PlayerState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.localID == "" {
		return proto.PlayerState{}, false
	}
	st, ok := s.players[s.localID]
	if !ok {
		return proto.PlayerState{}, false
	}
	return cloneState(*st), true
}

// Put 写入或整体替换一个条目（入站会先 sanitize）
func (s *Store) Put(st proto.PlayerState) {
	st = sanitize(cloneState(st))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[PlayerID(st.ID)] = &st
}

// Has 判断条目是否存在
func (s *Store) Has(id PlayerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.players[id]
	return ok
}

// Remove 删除条目，返回是否确有其人
func (s *Store) Remove(id PlayerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[id]; !ok {
		return false
	}
	delete(s.players, id)
	return true
}

// UpdateLocal 在锁内就地修改本地玩家状态（本地输入路径）
// 本地条目不存在时先建一个空壳，保证连接前的输入不丢
func (s *Store) UpdateLocal(fn func(*proto.PlayerState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.players[s.localID]
	if !ok {
		st = &proto.PlayerState{ID: string(s.localID), Animation: DefaultAnimation}
		s.players[s.localID] = st
	}
	fn(st)
	st.ID = string(s.localID)
	st.Rotation = NormalizeAngle(st.Rotation)
	if st.Animation == "" {
		st.Animation = DefaultAnimation
	}
}

// Merge 将部分更新合并进已有条目（缺席字段保持原值），条目不存在时不做任何事
func (s *Store) Merge(id PlayerID, mv proto.MovePayload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.players[id]
	if !ok {
		return false
	}
	if mv.Position != nil {
		st.Position = *mv.Position
	}
	if mv.Rotation != nil {
		st.Rotation = NormalizeAngle(*mv.Rotation)
	}
	if mv.Animation != nil {
		st.Animation = *mv.Animation
		if st.Animation == "" {
			st.Animation = DefaultAnimation
		}
	}
	if mv.Color != nil {
		st.Color = *mv.Color
	}
	if mv.Flags != nil {
		if st.Flags == nil {
			st.Flags = make(map[string]bool, len(mv.Flags))
		}
		for k, v := range mv.Flags {
			st.Flags[k] = v
		}
	}
	return true
}

// SetDisplayed 写入插值后的显示位置/朝向，不触碰其它字段（插值 Tick 专用）
func (s *Store) SetDisplayed(id PlayerID, pos *proto.Vec3, rot *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.players[id]
	if !ok {
		return
	}
	if pos != nil {
		st.Position = *pos
	}
	if rot != nil {
		st.Rotation = NormalizeAngle(*rot)
	}
}

// ReplaceAll 全量名册替换：整体采纳服务端名册，但本地条目的
// 颜色/位置/动画/朝向以本地为准回填（服务端对"自己"的拷贝视为过期）
func (s *Store) ReplaceAll(roster map[string]proto.PlayerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[PlayerID]*proto.PlayerState, len(roster))
	for id, st := range roster {
		st.ID = id
		entry := sanitize(cloneState(st))
		next[PlayerID(id)] = &entry
	}
	if local, ok := s.players[s.localID]; ok {
		if entry, present := next[s.localID]; present {
			entry.Color = local.Color
			entry.Position = local.Position
			entry.Animation = local.Animation
			entry.Rotation = local.Rotation
		} else {
			// 名册里缺了自己也不丢本地状态，等下一次 join/resync 纠正
			kept := cloneState(*local)
			next[s.localID] = &kept
		}
	}
	s.players = next
}

// Snapshot 全量只读副本
func (s *Store) Snapshot() map[PlayerID]proto.PlayerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[PlayerID]proto.PlayerState, len(s.players))
	for id, st := range s.players {
		out[id] = cloneState(*st)
	}
	return out
}

// RemoteIDs 所有远端玩家 id
func (s *Store) RemoteIDs() []PlayerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PlayerID, 0, len(s.players))
	for id := range s.players {
		if id != s.localID {
			out = append(out, id)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}
