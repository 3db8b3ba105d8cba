package job

import (
	"Palaver/internal/realtime"
	log "log/slog"
)

// TypingSweepJob 周期清扫过期的输入状态残留。
// 断连客户端不会主动发 STOP_TYPING，全靠 TTL 兜底。
type TypingSweepJob struct {
	typing *realtime.TypingCoordinator
}

func NewTypingSweepJob(typing *realtime.TypingCoordinator) *TypingSweepJob {
	return &TypingSweepJob{typing: typing}
}

func (s *TypingSweepJob) Run() {
	if removed := s.typing.Sweep(); removed > 0 {
		log.Info("输入状态清扫完成", "removed", removed)
	}
}
