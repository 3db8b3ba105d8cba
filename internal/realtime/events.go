package realtime

import (
	"github.com/goccy/go-json"
)

// 双向事件名，与客户端约定保持一致
const (
	EventChatJoined      = "CHAT_JOINED"
	EventChatLeave       = "CHAT_LEAVE"
	EventOnlineUsers     = "ONLINE_USERS"
	EventNewMessage      = "NEW_MESSAGE"
	EventNewMessageAlert = "NEW_MESSAGE_ALERT"
	EventStartTyping     = "START_TYPING"
	EventStopTyping      = "STOP_TYPING"
	EventNewRequest      = "NEW_REQUEST"
	EventRefetchChats    = "REFETCH_CHATS"
)

// Envelope 统一消息封包
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// outEnvelope 出站封包，Payload 直接序列化
type outEnvelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// EncodeEnvelope 序列化出站事件
func EncodeEnvelope(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(&outEnvelope{Event: event, Payload: payload})
}

func decodeEnvelope(data []byte, env *Envelope) error {
	return json.Unmarshal(data, env)
}

// ChatScopePayload CHAT_JOINED / CHAT_LEAVE 的入站载荷
type ChatScopePayload struct {
	ConversationID uint64   `json:"conversationId"`
	Members        []uint64 `json:"members"`
}

// TypingPayload START_TYPING / STOP_TYPING 的入站载荷
type TypingPayload struct {
	ConversationID uint64   `json:"conversationId"`
	Members        []uint64 `json:"members"`
}

// TypingEvent 出站输入状态事件
type TypingEvent struct {
	ConversationID uint64 `json:"conversationId"`
	UserID         uint64 `json:"userId"`
}

// MessageAlertEvent NEW_MESSAGE_ALERT 的出站载荷
type MessageAlertEvent struct {
	ConversationID uint64 `json:"conversationId"`
}
