package service

import (
	"Palaver/internal/api/dto"
	"Palaver/internal/model"
	"Palaver/internal/pkg/consts"
	"Palaver/internal/pkg/minio"
	"Palaver/internal/pkg/mongo"
	"Palaver/internal/realtime"
	"Palaver/internal/repository"
	"context"
	"fmt"
	log "log/slog"
	"sync"
	"time"
)

// ChatService 消息流服务接口定义
type ChatService interface {
	SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	GetOrCreateDirect(ctx context.Context, userID, targetUserID uint64) (uint64, error)
	GetChatHistory(ctx context.Context, userID uint64, convID uint64, beforeSeq uint64, pageSize int) (*dto.HistoryPageDTO, error)
	GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error)
	MarkAsRead(ctx context.Context, userID uint64, convID uint64, seq uint64) error

	CreateGroup(ctx context.Context, creatorID uint64, req *dto.CreateGroupReq) (uint64, error)
	AddMembers(ctx context.Context, operatorID uint64, convID uint64, memberIDs []uint64) error
	RemoveMember(ctx context.Context, operatorID uint64, convID uint64, memberID uint64) error
	LeaveGroup(ctx context.Context, userID uint64, convID uint64) error
	DeleteConversation(ctx context.Context, operatorID uint64, convID uint64) error
}

// MessageAlerts 未读计数的入口，由告警服务实现
type MessageAlerts interface {
	OnMessageDelivered(ctx context.Context, convID uint64, viewerID uint64)
}

type chatServiceImpl struct {
	convRepo    repository.ConversationRepo
	messageRepo mongo.MessageRepo
	fanout      *realtime.Fanout
	typing      *realtime.TypingCoordinator
	presence    *realtime.PresenceTracker
	alerts      MessageAlerts

	// convLocks 会话级定序锁：定序与扇出必须在同一临界区内完成
	mu        sync.Mutex
	convLocks map[uint64]*sync.Mutex
}

func NewChatService(
	convRepo repository.ConversationRepo,
	messageRepo mongo.MessageRepo,
	fanout *realtime.Fanout,
	typing *realtime.TypingCoordinator,
	presence *realtime.PresenceTracker,
	alerts MessageAlerts,
) ChatService {
	return &chatServiceImpl{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		fanout:      fanout,
		typing:      typing,
		presence:    presence,
		alerts:      alerts,
		convLocks:   make(map[uint64]*sync.Mutex),
	}
}

// lockConversation 获取并锁定会话级定序锁。
// 并发发送时，若定序和扇出不在同一临界区，接收方可能先看到大 Seq 再看到小 Seq。
func (s *chatServiceImpl) lockConversation(convID uint64) *sync.Mutex {
	s.mu.Lock()
	lock, ok := s.convLocks[convID]
	if !ok {
		lock = &sync.Mutex{}
		s.convLocks[convID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock
}

// SendMessage 发送消息：定序 -> 实时扇出 -> 持久化。
// 持久化失败会明确告知调用方，但扇出可能已经先行送达，不做回滚。
func (s *chatServiceImpl) SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	if req.Content == "" && len(req.Attachments) == 0 {
		return nil, ErrParamInvalid
	}
	if req.MsgType != consts.MsgTypeText && req.MsgType != consts.MsgTypeMedia {
		return nil, ErrParamInvalid
	}

	convID := req.ConversationID
	if convID == 0 {
		if req.TargetUserID == 0 {
			return nil, ErrTargetUserInvalid
		}
		id, err := s.GetOrCreateDirect(ctx, senderID, req.TargetUserID)
		if err != nil {
			return nil, err
		}
		convID = id
	} else {
		if _, err := s.convRepo.GetConversation(ctx, convID); err != nil {
			return nil, ErrConversationNotFound
		}
	}

	isMember, err := s.convRepo.IsMember(ctx, convID, senderID)
	if err != nil {
		return nil, UnExpectedError
	}
	if !isMember {
		return nil, ErrNotAMember
	}

	members, err := s.convRepo.GetMemberIDs(ctx, convID)
	if err != nil {
		return nil, UnExpectedError
	}

	// MySQL 原子定序，单会话内 Seq 严格递增
	preview := req.Content
	if preview == "" {
		preview = "[附件]"
	}

	// 同会话内定序与扇出在同一临界区串行推进，接收方观察到的 Seq 才是单调的
	lock := s.lockConversation(convID)
	newSeq, err := s.convRepo.IncrMaxSeq(ctx, convID, preview, int8(req.MsgType), senderID)
	if err != nil {
		lock.Unlock()
		return nil, UnExpectedError
	}

	msgModel := &mongo.Message{
		ConversationID: convID,
		SenderID:       senderID,
		MsgType:        req.MsgType,
		Content:        req.Content,
		Attachments:    toAttachments(req.Attachments),
		Seq:            newSeq,
		CreatedAt:      time.Now(),
	}
	msgDTO := s.toMessageDTO(msgModel)

	// 实时扇出：完整消息 + 轻量角标事件，先于持久化
	s.fanout.Deliver(convID, members, realtime.EventNewMessage, &dto.NewMessageEvent{
		ConversationID: convID,
		Message:        msgDTO,
	})
	s.fanout.Deliver(convID, members, realtime.EventNewMessageAlert, &realtime.MessageAlertEvent{
		ConversationID: convID,
	})
	lock.Unlock()

	// 发送行为隐式终止输入状态
	s.typing.StopTyping(convID, senderID, excludeSelf(members, senderID))

	// 除发送者外逐人累计未读，正在查看该会话的成员不计
	for _, uid := range members {
		if uid == senderID {
			continue
		}
		s.alerts.OnMessageDelivered(ctx, convID, uid)
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.messageRepo.SaveMessage(writeCtx, msgModel); err != nil {
		log.ErrorContext(ctx, "消息持久化失败，扇出已先行", "convID", convID, "seq", newSeq, "err", err)
		return nil, ErrPersistenceFailure
	}

	return msgDTO, nil
}

// GetOrCreateDirect 针对单聊：获取或创建会话
func (s *chatServiceImpl) GetOrCreateDirect(ctx context.Context, userID, targetUserID uint64) (uint64, error) {
	if userID == targetUserID {
		return 0, ErrTargetUserInvalid
	}

	// 生成单聊唯一的 PeerKey
	var peerKey string
	if userID < targetUserID {
		peerKey = fmt.Sprintf("%d_%d", userID, targetUserID)
	} else {
		peerKey = fmt.Sprintf("%d_%d", targetUserID, userID)
	}

	conv, err := s.convRepo.GetConversationByPeerKey(ctx, peerKey)
	if err == nil {
		return conv.ID, nil
	}

	newConv := &model.Conversation{
		Type:          consts.ConvTypeDirect,
		PeerKey:       peerKey,
		LastMessageAt: time.Now(),
	}
	if err := s.convRepo.CreateConversation(ctx, newConv, []uint64{userID, targetUserID}); err != nil {
		return 0, UnExpectedError
	}
	return newConv.ID, nil
}

// GetChatHistory 向后分页：返回 beforeSeq 之前最近的一页，升序排列。
// beforeSeq 传 0 表示取最新一页。多取一条用于判断是否还有更早的消息。
func (s *chatServiceImpl) GetChatHistory(ctx context.Context, userID uint64, convID uint64, beforeSeq uint64, pageSize int) (*dto.HistoryPageDTO, error) {
	if pageSize <= 0 {
		pageSize = 20
	}

	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return nil, UnExpectedError
	}
	if !isMember {
		return nil, ErrNotAMember
	}

	models, err := s.messageRepo.GetHistory(ctx, convID, beforeSeq, pageSize+1)
	if err != nil {
		return nil, UnExpectedError
	}

	hasMore := len(models) > pageSize
	if hasMore {
		models = models[:pageSize]
	}

	// 仓储按 seq 降序返回，翻转为升序供直接展示
	res := make([]*dto.MessageDTO, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		res = append(res, s.toMessageDTO(models[i]))
	}

	return &dto.HistoryPageDTO{Messages: res, HasMore: hasMore}, nil
}

// GetConversationList 获取会话列表
func (s *chatServiceImpl) GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error) {
	members, err := s.convRepo.GetUserConversationMemList(ctx, userID)
	if err != nil {
		return nil, UnExpectedError
	}

	res := make([]*dto.ConversationDTO, 0, len(members))
	for _, m := range members {
		d := &dto.ConversationDTO{
			ConversationID: m.ConversationID,
			Type:           m.Conversation.Type,
			Name:           m.Conversation.Name,
			LastMsgContent: m.Conversation.LastMsgContent,
			LastMsgType:    m.Conversation.LastMsgType,
			LastSenderID:   m.Conversation.LastSenderID,
			LastMessageAt:  m.Conversation.LastMessageAt,
			UnreadCount:    m.UnreadCount,
		}

		if m.Conversation.Type == consts.ConvTypeDirect {
			peerID, _ := s.parsePeerID(m.Conversation.PeerKey, userID)
			d.PeerID = peerID
		}
		res = append(res, d)
	}
	return res, nil
}

// MarkAsRead 标记已读，seq 超过最新序号时收敛到最新
func (s *chatServiceImpl) MarkAsRead(ctx context.Context, userID uint64, convID uint64, seq uint64) error {
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return UnExpectedError
	}
	if !isMember {
		return ErrNotAMember
	}

	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		return ErrConversationNotFound
	}

	targetSeq := seq
	if targetSeq == 0 || targetSeq > conv.MaxMsgSeq {
		targetSeq = conv.MaxMsgSeq
	}

	if err = s.convRepo.UpdateReadSeq(ctx, convID, userID, targetSeq); err != nil {
		return UnExpectedError
	}
	return nil
}

// CreateGroup 创建群聊并通知全员刷新会话列表
func (s *chatServiceImpl) CreateGroup(ctx context.Context, creatorID uint64, req *dto.CreateGroupReq) (uint64, error) {
	memberIDs := appendUnique(req.MemberIDs, creatorID)
	if len(memberIDs) < consts.GroupMemberMin {
		return 0, ErrGroupTooSmall
	}
	if len(memberIDs) > consts.GroupMemberLimit {
		return 0, ErrGroupMemberLimit
	}

	newConv := &model.Conversation{
		Type:          consts.ConvTypeGroup,
		Name:          req.Name,
		CreatorID:     creatorID,
		LastMessageAt: time.Now(),
	}
	if err := s.convRepo.CreateConversation(ctx, newConv, memberIDs); err != nil {
		return 0, UnExpectedError
	}

	s.fanout.Deliver(newConv.ID, memberIDs, realtime.EventRefetchChats, nil)
	return newConv.ID, nil
}

// AddMembers 添加群成员，同步刷新在线名单的扇出目标
func (s *chatServiceImpl) AddMembers(ctx context.Context, operatorID uint64, convID uint64, memberIDs []uint64) error {
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		return ErrConversationNotFound
	}
	if conv.Type != consts.ConvTypeGroup {
		return ErrNotGroupChat
	}

	isMember, err := s.convRepo.IsMember(ctx, convID, operatorID)
	if err != nil {
		return UnExpectedError
	}
	if !isMember {
		return ErrNotAMember
	}

	current, err := s.convRepo.GetMemberIDs(ctx, convID)
	if err != nil {
		return UnExpectedError
	}
	if len(current)+len(memberIDs) > consts.GroupMemberLimit {
		return ErrGroupMemberLimit
	}

	if err := s.convRepo.AddMembers(ctx, convID, memberIDs); err != nil {
		return UnExpectedError
	}

	return s.refreshMembership(ctx, convID)
}

// RemoveMember 移除群成员，仅群主可操作
func (s *chatServiceImpl) RemoveMember(ctx context.Context, operatorID uint64, convID uint64, memberID uint64) error {
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		return ErrConversationNotFound
	}
	if conv.Type != consts.ConvTypeGroup {
		return ErrNotGroupChat
	}
	if conv.CreatorID != operatorID {
		return UnauthorizedError
	}

	if err := s.convRepo.RemoveMember(ctx, convID, memberID); err != nil {
		return UnExpectedError
	}

	// 被移出者也要收到刷新信号
	s.fanout.Deliver(convID, []uint64{memberID}, realtime.EventRefetchChats, nil)
	return s.refreshMembership(ctx, convID)
}

// LeaveGroup 主动退群
func (s *chatServiceImpl) LeaveGroup(ctx context.Context, userID uint64, convID uint64) error {
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		return ErrConversationNotFound
	}
	if conv.Type != consts.ConvTypeGroup {
		return ErrNotGroupChat
	}

	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return UnExpectedError
	}
	if !isMember {
		return ErrNotAMember
	}

	if err := s.convRepo.RemoveMember(ctx, convID, userID); err != nil {
		return UnExpectedError
	}

	return s.refreshMembership(ctx, convID)
}

// DeleteConversation 删除会话：批量清理消息与附件，再删除会话本身
func (s *chatServiceImpl) DeleteConversation(ctx context.Context, operatorID uint64, convID uint64) error {
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		return ErrConversationNotFound
	}

	isMember, err := s.convRepo.IsMember(ctx, convID, operatorID)
	if err != nil {
		return UnExpectedError
	}
	if !isMember {
		return ErrNotAMember
	}
	if conv.Type == consts.ConvTypeGroup && conv.CreatorID != operatorID {
		return UnauthorizedError
	}

	members, err := s.convRepo.GetMemberIDs(ctx, convID)
	if err != nil {
		return UnExpectedError
	}

	// 附件清理是尽力而为的，失败只记日志
	attachments, err := s.messageRepo.ListAttachments(ctx, convID)
	if err == nil {
		for _, a := range attachments {
			if err := minio.DeleteFile(ctx, a.ObjectName); err != nil {
				log.WarnContext(ctx, "附件清理失败", "object", a.ObjectName, "err", err)
			}
		}
	}

	if _, err := s.messageRepo.DeleteByConversation(ctx, convID); err != nil {
		return UnExpectedError
	}
	if err := s.convRepo.DeleteConversation(ctx, convID); err != nil {
		return UnExpectedError
	}

	s.presence.UpdateMembers(convID, nil)
	s.fanout.Deliver(convID, members, realtime.EventRefetchChats, nil)
	return nil
}

// refreshMembership 成员变更后统一收尾：同步在线名单目标并通知刷新
func (s *chatServiceImpl) refreshMembership(ctx context.Context, convID uint64) error {
	members, err := s.convRepo.GetMemberIDs(ctx, convID)
	if err != nil {
		return UnExpectedError
	}
	s.presence.UpdateMembers(convID, members)
	s.fanout.Deliver(convID, members, realtime.EventRefetchChats, nil)
	return nil
}

func (s *chatServiceImpl) parsePeerID(peerKey string, currentUserID uint64) (uint64, error) {
	var u1, u2 uint64
	_, err := fmt.Sscanf(peerKey, "%d_%d", &u1, &u2)
	if err != nil {
		return 0, err
	}
	if u1 == currentUserID {
		return u2, nil
	}
	return u1, nil
}

func (s *chatServiceImpl) toMessageDTO(m *mongo.Message) *dto.MessageDTO {
	return &dto.MessageDTO{
		ID: m.ID, ConversationID: m.ConversationID, SenderID: m.SenderID,
		MsgType: m.MsgType, Content: m.Content, Attachments: toAttachmentDTOs(m.Attachments),
		Seq: m.Seq, CreatedAt: m.CreatedAt,
	}
}

func toAttachments(in []dto.AttachmentDTO) []mongo.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]mongo.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, mongo.Attachment{
			ObjectName: a.ObjectName, MimeType: a.MimeType, URL: a.URL, Size: a.Size,
		})
	}
	return out
}

func toAttachmentDTOs(in []mongo.Attachment) []dto.AttachmentDTO {
	if len(in) == 0 {
		return nil
	}
	out := make([]dto.AttachmentDTO, 0, len(in))
	for _, a := range in {
		out = append(out, dto.AttachmentDTO{
			ObjectName: a.ObjectName, MimeType: a.MimeType, URL: a.URL, Size: a.Size,
		})
	}
	return out
}

func excludeSelf(members []uint64, self uint64) []uint64 {
	out := make([]uint64, 0, len(members))
	for _, uid := range members {
		if uid != self {
			out = append(out, uid)
		}
	}
	return out
}

func appendUnique(ids []uint64, id uint64) []uint64 {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}
