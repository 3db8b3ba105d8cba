package service

import (
	"Palaver/internal/api/dto"
	"Palaver/internal/pkg/consts"
	"Palaver/internal/realtime"
	"Palaver/internal/repository"
	"context"
	log "log/slog"
	"strconv"
	"sync"
)

// CounterStore 计数缓存的抽象，生产环境由 Redis 实现。
// 计数只是尽力而为的缓存，数据库的已读进度才是重算依据。
type CounterStore interface {
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HDel(ctx context.Context, key string, fields ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSetAll(ctx context.Context, key string, values map[string]interface{}) error
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	DecrFloor(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (string, error)
}

// AlertService 未读角标与全局通知计数
type AlertService interface {
	// MarkViewing / ClearViewing 跟踪各用户正在查看的会话
	MarkViewing(viewerID, convID uint64)
	ClearViewing(viewerID, convID uint64)
	ClearAllViews(viewerID uint64)

	OnMessageDelivered(ctx context.Context, convID uint64, viewerID uint64)
	OnConversationOpened(ctx context.Context, convID uint64, viewerID uint64) error

	OnNotificationEvent(ctx context.Context, targetUserID uint64) error
	AckNotification(ctx context.Context, userID uint64) (int64, error)

	Resync(ctx context.Context, viewerID uint64) (*dto.UnreadDTO, error)
}

type alertServiceImpl struct {
	counters CounterStore
	convRepo repository.ConversationRepo
	fanout   *realtime.Fanout

	mu      sync.Mutex
	viewing map[uint64]map[uint64]struct{} // viewerID -> 正在查看的会话集合
}

func NewAlertService(counters CounterStore, convRepo repository.ConversationRepo, fanout *realtime.Fanout) AlertService {
	return &alertServiceImpl{
		counters: counters,
		convRepo: convRepo,
		fanout:   fanout,
		viewing:  make(map[uint64]map[uint64]struct{}),
	}
}

func (s *alertServiceImpl) MarkViewing(viewerID, convID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewing[viewerID] == nil {
		s.viewing[viewerID] = make(map[uint64]struct{})
	}
	s.viewing[viewerID][convID] = struct{}{}
}

func (s *alertServiceImpl) ClearViewing(viewerID, convID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.viewing[viewerID], convID)
	if len(s.viewing[viewerID]) == 0 {
		delete(s.viewing, viewerID)
	}
}

func (s *alertServiceImpl) ClearAllViews(viewerID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.viewing, viewerID)
}

func (s *alertServiceImpl) isViewing(viewerID, convID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.viewing[viewerID][convID]
	return ok
}

// OnMessageDelivered 每条入站消息恰好加一；正在查看该会话的用户不计
func (s *alertServiceImpl) OnMessageDelivered(ctx context.Context, convID uint64, viewerID uint64) {
	if s.isViewing(viewerID, convID) {
		return
	}

	key := consts.AlertUnreadKey + strconv.FormatUint(viewerID, 10)
	field := strconv.FormatUint(convID, 10)
	if _, err := s.counters.HIncrBy(ctx, key, field, 1); err != nil {
		log.WarnContext(ctx, "未读计数累加失败", "viewerID", viewerID, "convID", convID, "err", err)
	}
}

// OnConversationOpened 打开会话即清零，重复调用是幂等的
func (s *alertServiceImpl) OnConversationOpened(ctx context.Context, convID uint64, viewerID uint64) error {
	key := consts.AlertUnreadKey + strconv.FormatUint(viewerID, 10)
	field := strconv.FormatUint(convID, 10)
	return s.counters.HDel(ctx, key, field)
}

// OnNotificationEvent 好友请求等全局通知：计数加一并实时推送。
// 该计数只能被显式确认递减，查看会话不会清空它。
func (s *alertServiceImpl) OnNotificationEvent(ctx context.Context, targetUserID uint64) error {
	key := consts.AlertNoticeKey + strconv.FormatUint(targetUserID, 10)
	if _, err := s.counters.IncrBy(ctx, key, 1); err != nil {
		return err
	}

	s.fanout.Deliver(0, []uint64{targetUserID}, realtime.EventNewRequest, nil)
	return nil
}

// AckNotification 接受/拒绝后显式递减，计数永不为负
func (s *alertServiceImpl) AckNotification(ctx context.Context, userID uint64) (int64, error) {
	key := consts.AlertNoticeKey + strconv.FormatUint(userID, 10)
	return s.counters.DecrFloor(ctx, key)
}

// Resync 重连全量校准：以数据库已读进度重算未读并覆盖缓存
func (s *alertServiceImpl) Resync(ctx context.Context, viewerID uint64) (*dto.UnreadDTO, error) {
	unread, err := s.convRepo.GetUnreadMap(ctx, viewerID)
	if err != nil {
		return nil, UnExpectedError
	}

	key := consts.AlertUnreadKey + strconv.FormatUint(viewerID, 10)
	values := make(map[uint64]uint64, len(unread))
	cache := make(map[string]interface{}, len(unread))
	for convID, count := range unread {
		values[convID] = count
		cache[strconv.FormatUint(convID, 10)] = count
	}
	if err := s.counters.HSetAll(ctx, key, cache); err != nil {
		log.WarnContext(ctx, "未读缓存覆盖失败", "viewerID", viewerID, "err", err)
	}

	noticeKey := consts.AlertNoticeKey + strconv.FormatUint(viewerID, 10)
	noticeCount := int64(0)
	if raw, err := s.counters.Get(ctx, noticeKey); err == nil && raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			noticeCount = n
		}
	}

	return &dto.UnreadDTO{Conversations: values, NoticeCount: noticeCount}, nil
}
