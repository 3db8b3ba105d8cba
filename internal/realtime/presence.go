package realtime

import (
	"sort"
	"sync"
)

// PresenceTracker 维护全局在线集合。在线状态是派生的：
// 有 ≥1 条活跃连接且至少加入过一个会话上下文才算在线。
// 无持久化，进程重启后由客户端重新宣告。
type PresenceTracker struct {
	mu     sync.Mutex
	reg    *ConnectionRegistry
	fanout *Fanout

	online map[uint64]struct{}
	// rooms 记录每个在线用户加入过的会话及其成员快照，
	// 断连时要向其全部会话扇出刷新后的在线名单
	rooms map[uint64]map[uint64][]uint64
}

func NewPresenceTracker(reg *ConnectionRegistry, fanout *Fanout) *PresenceTracker {
	return &PresenceTracker{
		reg:    reg,
		fanout: fanout,
		online: make(map[uint64]struct{}),
		rooms:  make(map[uint64]map[uint64][]uint64),
	}
}

// Join 宣告加入会话上下文：标记在线并向成员广播完整在线集合。
// 广播全量而非增量，收敛结果与事件到达顺序无关。
func (s *PresenceTracker) Join(userID, convID uint64, members []uint64) {
	s.mu.Lock()
	if s.reg.ConnectionCount(userID) > 0 {
		s.online[userID] = struct{}{}
	}
	if s.rooms[userID] == nil {
		s.rooms[userID] = make(map[uint64][]uint64)
	}
	s.rooms[userID][convID] = members
	snapshot := s.onlineSnapshot()
	s.mu.Unlock()

	s.fanout.Deliver(convID, members, EventOnlineUsers, snapshot)
}

// Leave 宣告离开会话上下文。不再持有任何会话上下文，
// 或已无活跃连接时，从在线集合移除；随后广播刷新后的集合。
func (s *PresenceTracker) Leave(userID, convID uint64, members []uint64) {
	s.mu.Lock()
	delete(s.rooms[userID], convID)
	if len(s.rooms[userID]) == 0 {
		delete(s.rooms, userID)
		delete(s.online, userID)
	} else if s.reg.ConnectionCount(userID) == 0 {
		delete(s.online, userID)
	}
	snapshot := s.onlineSnapshot()
	s.mu.Unlock()

	s.fanout.Deliver(convID, members, EventOnlineUsers, snapshot)
}

// OnDisconnect 最后一条连接断开：下线并向该用户加入过的
// 每一个会话扇出刷新后的在线名单，不只是单个房间。
func (s *PresenceTracker) OnDisconnect(userID uint64) {
	s.mu.Lock()
	delete(s.online, userID)
	joined := s.rooms[userID]
	delete(s.rooms, userID)
	snapshot := s.onlineSnapshot()
	s.mu.Unlock()

	for convID, members := range joined {
		s.fanout.Deliver(convID, members, EventOnlineUsers, snapshot)
	}
}

// UpdateMembers 会话成员变更后同步刷新已加入用户的成员快照，
// 保证后续在线名单广播落到正确的目标集合
func (s *PresenceTracker) UpdateMembers(convID uint64, members []uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	memberSet := make(map[uint64]struct{}, len(members))
	for _, uid := range members {
		memberSet[uid] = struct{}{}
	}

	for uid, joined := range s.rooms {
		if _, ok := joined[convID]; !ok {
			continue
		}
		if _, stillMember := memberSet[uid]; !stillMember {
			delete(joined, convID)
			if len(joined) == 0 {
				delete(s.rooms, uid)
				delete(s.online, uid)
			}
			continue
		}
		joined[convID] = members
	}
}

// OnlineUsers 当前在线集合的有序快照
func (s *PresenceTracker) OnlineUsers() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onlineSnapshot()
}

// IsOnline 查询单个用户是否在线
func (s *PresenceTracker) IsOnline(userID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[userID]
	return ok
}

// onlineSnapshot 调用方必须持有 s.mu
func (s *PresenceTracker) onlineSnapshot() []uint64 {
	out := make([]uint64, 0, len(s.online))
	for uid := range s.online {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
