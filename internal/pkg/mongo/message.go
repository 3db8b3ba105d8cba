package mongo

import (
	"time"
)

// Message MongoDB 消息明细模型
type Message struct {
	ID             string       `bson:"_id,omitempty" json:"id"`               // MongoDB 自动生成的 ObjectID
	ConversationID uint64       `bson:"conversation_id" json:"conversationId"` // 关联 MySQL 的会话 ID
	SenderID       uint64       `bson:"sender_id" json:"senderId"`             // 发送者 UID
	MsgType        int          `bson:"msg_type" json:"msgType"`               // 1-文本, 2-附件
	Content        string       `bson:"content" json:"content"`                // 文本内容或消息预览
	Attachments    []Attachment `bson:"attachments,omitempty" json:"attachments"`
	Seq            uint64       `bson:"seq" json:"seq"`             // 该消息在会话中的唯一绝对序号 (来自 MySQL)
	CreatedAt      time.Time    `bson:"created_at" json:"createdAt"` // 消息发送时间
}

// Attachment 附件引用
type Attachment struct {
	ObjectName string `bson:"object_name" json:"objectName"` // 对象存储中的引用
	MimeType   string `bson:"mime_type" json:"mimeType"`
	URL        string `bson:"url" json:"url"`
	Size       int64  `bson:"size" json:"size"`
}
