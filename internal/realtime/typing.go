package realtime

import (
	"sync"
	"time"
)

// TypingTTL 距最后一次击键刷新后的存活时长
const TypingTTL = 3000 * time.Millisecond

type typingKey struct {
	convID uint64
	userID uint64
}

// TypingCoordinator 会话级输入状态，纯 TTL 过期：
// 超时条目即使未被清扫，读取时也视为不存在。
type TypingCoordinator struct {
	mu      sync.Mutex
	fanout  *Fanout
	entries map[typingKey]time.Time // -> 过期时刻

	// now 可注入，测试用假时钟
	now func() time.Time
}

func NewTypingCoordinator(fanout *Fanout) *TypingCoordinator {
	return &TypingCoordinator{
		fanout:  fanout,
		entries: make(map[typingKey]time.Time),
		now:     time.Now,
	}
}

// StartTyping 记录/刷新过期时刻并通知其余成员。
// 未过期前的重复调用只续期，不重复扇出。
func (s *TypingCoordinator) StartTyping(convID, userID uint64, others []uint64) {
	k := typingKey{convID: convID, userID: userID}

	s.mu.Lock()
	exp, exists := s.entries[k]
	now := s.now()
	s.entries[k] = now.Add(TypingTTL)
	fresh := !exists || now.After(exp)
	s.mu.Unlock()

	if fresh {
		s.fanout.Deliver(convID, others, EventStartTyping, TypingEvent{
			ConversationID: convID,
			UserID:         userID,
		})
	}
}

// StopTyping 立即清除条目并通知其余成员。
// 消息发送时也会被隐式调用，没有条目时不扇出。
func (s *TypingCoordinator) StopTyping(convID, userID uint64, others []uint64) {
	k := typingKey{convID: convID, userID: userID}

	s.mu.Lock()
	_, exists := s.entries[k]
	delete(s.entries, k)
	s.mu.Unlock()

	if exists {
		s.fanout.Deliver(convID, others, EventStopTyping, TypingEvent{
			ConversationID: convID,
			UserID:         userID,
		})
	}
}

// Typists 某会话当前仍在输入的用户，过期条目一律排除
func (s *TypingCoordinator) Typists(convID uint64) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []uint64
	for k, exp := range s.entries {
		if k.convID != convID {
			continue
		}
		if now.After(exp) {
			continue
		}
		out = append(out, k.userID)
	}
	return out
}

// Sweep 清扫过期条目，返回清除数量。由定时任务驱动；
// 正确性不依赖清扫，断连残留的条目过期后同样视为不存在。
func (s *TypingCoordinator) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}
