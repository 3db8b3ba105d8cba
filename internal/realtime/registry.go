package realtime

import (
	"sync"
)

// OfflineFunc 在某用户最后一条连接关闭后触发
type OfflineFunc func(userID uint64)

// ConnectionRegistry 维护 用户 -> 活跃连接集合 的映射。
// 连接集合只由本组件修改，外部只读。
type ConnectionRegistry struct {
	mu        sync.RWMutex
	conns     map[uint64]map[*Connection]struct{}
	onOffline OfflineFunc
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[uint64]map[*Connection]struct{}),
	}
}

// SetOfflineHook 注入下线回调（装配期一次性调用）
func (s *ConnectionRegistry) SetOfflineHook(fn OfflineFunc) {
	s.onOffline = fn
}

// Register 注册连接，同一句柄重复注册是幂等的
func (s *ConnectionRegistry) Register(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[c.UserID()]
	if !ok {
		set = make(map[*Connection]struct{})
		s.conns[c.UserID()] = set
	}
	set[c] = struct{}{}
}

// Unregister 移除单条连接。重复关闭事件是静默空操作；
// 若移除的是该用户最后一条连接，触发下线回调。
func (s *ConnectionRegistry) Unregister(c *Connection) {
	s.mu.Lock()
	set, ok := s.conns[c.UserID()]
	if !ok {
		s.mu.Unlock()
		return
	}
	if _, exists := set[c]; !exists {
		s.mu.Unlock()
		return
	}
	delete(set, c)
	last := len(set) == 0
	if last {
		delete(s.conns, c.UserID())
	}
	s.mu.Unlock()

	if last && s.onOffline != nil {
		s.onOffline(c.UserID())
	}
}

// Resolve 返回输入集合中在线成员的全部活跃连接，离线成员静默跳过
func (s *ConnectionRegistry) Resolve(userIDs []uint64) []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Connection
	for _, uid := range userIDs {
		for c := range s.conns[uid] {
			out = append(out, c)
		}
	}
	return out
}

// ConnectionCount 某用户当前活跃连接数
func (s *ConnectionRegistry) ConnectionCount(userID uint64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[userID])
}
