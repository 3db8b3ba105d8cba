package dto

import "time"

// SendMessageReq 发送消息请求体
type SendMessageReq struct {
	ConversationID uint64          `json:"conversation_id"`
	TargetUserID   uint64          `json:"target_user_id"`
	MsgType        int             `json:"msg_type" binding:"required,oneof=1 2"` // 1-文本, 2-附件
	Content        string          `json:"content"`
	Attachments    []AttachmentDTO `json:"attachments"`
}

// HistoryQueryReq 历史消息分页查询参数
type HistoryQueryReq struct {
	ConversationID uint64 `form:"conversation_id" binding:"required"`
	BeforeSeq      uint64 `form:"before_seq"` // 0 表示从最新一条往前翻
	PageSize       int    `form:"page_size"`
}

// DirectChatReq 定位或创建单聊
type DirectChatReq struct {
	TargetUserID uint64 `json:"target_user_id" binding:"required"`
}

// AttachmentDTO 附件引用
type AttachmentDTO struct {
	ObjectName string `json:"object_name"`
	MimeType   string `json:"mime_type"`
	URL        string `json:"url"`
	Size       int64  `json:"size"`
}

// MessageDTO 消息明细响应
type MessageDTO struct {
	ID             string          `json:"id,omitempty"`
	ConversationID uint64          `json:"conversation_id"`
	SenderID       uint64          `json:"sender_id"`
	MsgType        int             `json:"msg_type"`
	Content        string          `json:"content"`
	Attachments    []AttachmentDTO `json:"attachments,omitempty"`
	Seq            uint64          `json:"seq"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// HistoryPageDTO 历史消息分页响应，消息按创建时间升序排列
type HistoryPageDTO struct {
	Messages []*MessageDTO `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

// NewMessageEvent NEW_MESSAGE 的出站载荷
type NewMessageEvent struct {
	ConversationID uint64      `json:"conversationId"`
	Message        *MessageDTO `json:"message"`
}

// ConversationDTO 会话列表项响应
type ConversationDTO struct {
	ConversationID uint64    `json:"conversation_id"`
	Type           int8      `json:"type"` // 1-单聊, 2-群聊
	Name           string    `json:"name"`
	PeerID         uint64    `json:"peer_id"` // 对手方ID (单聊有效)
	LastMsgContent string    `json:"last_msg_content"`
	LastMsgType    int8      `json:"last_msg_type"`
	LastSenderID   uint64    `json:"last_sender_id"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
	UnreadCount    uint64    `json:"unreadCount"`
}

// CreateGroupReq 创建群聊请求
type CreateGroupReq struct {
	Name      string   `json:"name" binding:"required"`
	MemberIDs []uint64 `json:"member_ids" binding:"required,min=2"`
}

// MembersReq 增删群成员请求
type MembersReq struct {
	ConversationID uint64   `json:"conversation_id" binding:"required"`
	MemberIDs      []uint64 `json:"member_ids" binding:"required,min=1"`
}

// MarkAsReadReq 标记为已读请求
type MarkAsReadReq struct {
	ConversationID uint64 `json:"conversation_id" binding:"required"`
	Sequence       uint64 `json:"sequence"` // 客户端当前看到的最后一条消息序号，0 表示读到最新
}

// NoticeReq 好友请求等全局通知
type NoticeReq struct {
	TargetUserID uint64 `json:"target_user_id" binding:"required"`
}

// UnreadDTO 未读校准响应
type UnreadDTO struct {
	Conversations map[uint64]uint64 `json:"conversations"`
	NoticeCount   int64             `json:"notice_count"`
}
