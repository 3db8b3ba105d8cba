package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid         = errors.New("参数错误")
	ErrNotAMember           = errors.New("不是会话成员")
	ErrConversationNotFound = errors.New("会话不存在")
	ErrPersistenceFailure   = errors.New("消息持久化失败")
	ErrTargetUserInvalid    = errors.New("目标用户无效")
	ErrGroupTooSmall        = errors.New("群聊至少需要三名成员")
	ErrGroupMemberLimit     = errors.New("群成员数量超过上限")
	ErrNotGroupChat         = errors.New("该操作仅支持群聊")
	ErrFileNotSupported     = errors.New("不支持的文件类型")
	UnauthorizedError       = errors.New("权限不足")
	UnExpectedError         = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:         BadRequest,
	ErrNotAMember:           Forbidden,
	ErrConversationNotFound: NotFound,
	ErrPersistenceFailure:   InternalServerError,
	ErrTargetUserInvalid:    BadRequest,
	ErrGroupTooSmall:        BadRequest,
	ErrGroupMemberLimit:     BadRequest,
	ErrNotGroupChat:         BadRequest,
	ErrFileNotSupported:     BadRequest,
	UnauthorizedError:       Unauthorized,
	UnExpectedError:         InternalServerError,
}
