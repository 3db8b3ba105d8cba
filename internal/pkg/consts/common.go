package consts

const (
	MimePrefixImage = "image"
	MimePrefixAudio = "audio"
	MimePrefixVideo = "video"
)

const (
	// ConvTypeDirect 单聊
	ConvTypeDirect int8 = 1
	// ConvTypeGroup 群聊
	ConvTypeGroup int8 = 2
)

const (
	MsgTypeText  = 1
	MsgTypeMedia = 2
)

const (
	// AttachmentLimit 单条消息的附件数上限
	AttachmentLimit = 5
)

const (
	// GroupMemberLimit 群成员上限
	GroupMemberLimit = 100
	// GroupMemberMin 建群最少人数（含群主）
	GroupMemberMin = 3
)
