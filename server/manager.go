package server

import (
	"sync"
	"time"
)

// 空置广场回收参数：空场且超过宽限期才摘除，
// 宽限期同时挡住“刚创建还没注册进人”的窗口
const (
	evictInterval  = time.Minute
	plazaIdleAfter = 5 * time.Minute
)

// PlazaManager 管理多个广场的生命周期
type PlazaManager struct {
	mu     sync.RWMutex
	plazas map[string]*Plaza
}

var (
	defaultManager *PlazaManager
	once           sync.Once
)

// GetPlazaManager 单例广场管理器（附带空置回收协程）
func GetPlazaManager() *PlazaManager {
	once.Do(func() {
		defaultManager = &PlazaManager{plazas: make(map[string]*Plaza)}
		go defaultManager.janitor()
	})
	return defaultManager
}

// GetOrCreatePlaza 获取或创建广场，并确保其主循环已启动
func (m *PlazaManager) GetOrCreatePlaza(id string) *Plaza {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plazas[id]
	if !ok {
		p = NewPlaza(id)
		m.plazas[id] = p
		p.Start()
	}
	return p
}

// janitor 定期回收空置广场，一次性访客不会把广场表越撑越大
func (m *PlazaManager) janitor() {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()
	for now := range ticker.C {
		m.evictIdle(now)
	}
}

// evictIdle 摘除并停掉空置超过宽限期的广场，返回回收数
func (m *PlazaManager) evictIdle(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, p := range m.plazas {
		if p.idleFor(now) < plazaIdleAfter {
			continue
		}
		p.Stop()
		delete(m.plazas, id)
		evicted++
		Log.Infow("plaza evicted", "plaza", id)
	}
	return evicted
}
