package consts

const (
	AlertUnreadKey = "alert:unread:" // Hash: conversation_id -> 未读数
	AlertNoticeKey = "alert:notice:" // String: 全局通知计数
)
