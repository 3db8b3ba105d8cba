package handler

import (
	"Palaver/internal/api/dto"
	"Palaver/internal/pkg/response"
	"Palaver/internal/service"

	"github.com/gin-gonic/gin"
)

type AlertHandler struct {
	alertSvc service.AlertService
}

func NewAlertHandler(alertSvc service.AlertService) *AlertHandler {
	return &AlertHandler{
		alertSvc: alertSvc,
	}
}

// GetUnread 未读校准：全量重算后返回权威计数
func (s *AlertHandler) GetUnread(c *gin.Context) {
	userID := c.GetUint64("user_id")

	unread, err := s.alertSvc.Resync(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, unread)
}

// SendNotice 向目标用户推送一条全局通知（如好友请求）
func (s *AlertHandler) SendNotice(c *gin.Context) {
	var req dto.NoticeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	if err := s.alertSvc.OnNotificationEvent(c.Request.Context(), req.TargetUserID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// AckNotice 消费一条全局通知，计数递减且不会降到负数
func (s *AlertHandler) AckNotice(c *gin.Context) {
	userID := c.GetUint64("user_id")

	remaining, err := s.alertSvc.AckNotification(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"notice_count": remaining})
}
