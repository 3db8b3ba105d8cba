package handler

import (
	"Palaver/internal/api/dto"
	"Palaver/internal/pkg/response"
	"Palaver/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ImHandler struct {
	chatSvc  service.ChatService
	alertSvc service.AlertService
}

func NewImHandler(chatSvc service.ChatService, alertSvc service.AlertService) *ImHandler {
	return &ImHandler{
		chatSvc:  chatSvc,
		alertSvc: alertSvc,
	}
}

func (s *ImHandler) SendMessage(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	msg, err := s.chatSvc.SendMessage(c.Request.Context(), userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msg)
}

func (s *ImHandler) GetOrCreateDirect(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.DirectChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	convID, err := s.chatSvc.GetOrCreateDirect(c.Request.Context(), userID, req.TargetUserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"conversation_id": convID})
}

func (s *ImHandler) GetChatHistory(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.HistoryQueryReq
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, err)
		return
	}

	page, err := s.chatSvc.GetChatHistory(c.Request.Context(), userID, req.ConversationID, req.BeforeSeq, req.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, page)
}

func (s *ImHandler) GetConversationList(c *gin.Context) {
	userID := c.GetUint64("user_id")

	list, err := s.chatSvc.GetConversationList(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// MarkAsRead 推进已读游标，同时清空该会话的未读计数
func (s *ImHandler) MarkAsRead(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.MarkAsReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	if err := s.chatSvc.MarkAsRead(c.Request.Context(), userID, req.ConversationID, req.Sequence); err != nil {
		response.Error(c, err)
		return
	}
	if err := s.alertSvc.OnConversationOpened(c.Request.Context(), req.ConversationID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *ImHandler) CreateGroup(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.CreateGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	convID, err := s.chatSvc.CreateGroup(c.Request.Context(), userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"conversation_id": convID})
}

func (s *ImHandler) AddMembers(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.MembersReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	if err := s.chatSvc.AddMembers(c.Request.Context(), userID, req.ConversationID, req.MemberIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *ImHandler) RemoveMember(c *gin.Context) {
	userID := c.GetUint64("user_id")

	convID, err := strconv.ParseUint(c.Param("conv_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	memberID, err := strconv.ParseUint(c.Param("member_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	if err := s.chatSvc.RemoveMember(c.Request.Context(), userID, convID, memberID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *ImHandler) LeaveGroup(c *gin.Context) {
	userID := c.GetUint64("user_id")

	convID, err := strconv.ParseUint(c.Param("conv_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	if err := s.chatSvc.LeaveGroup(c.Request.Context(), userID, convID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *ImHandler) DeleteConversation(c *gin.Context) {
	userID := c.GetUint64("user_id")

	convID, err := strconv.ParseUint(c.Param("conv_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	if err := s.chatSvc.DeleteConversation(c.Request.Context(), userID, convID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
