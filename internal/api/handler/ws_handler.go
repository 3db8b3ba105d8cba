package handler

import (
	"Palaver/internal/api/config"
	"Palaver/internal/api/dto"
	"Palaver/internal/pkg/logger"
	"Palaver/internal/pkg/response"
	"Palaver/internal/pkg/security"
	"Palaver/internal/realtime"
	"Palaver/internal/service"
	"context"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WsHandler 实时网关：一条连接对应一台设备，
// 入站封包在此分发给各实时组件
type WsHandler struct {
	registry     *realtime.ConnectionRegistry
	presence     *realtime.PresenceTracker
	typing       *realtime.TypingCoordinator
	chatService  service.ChatService
	alertService service.AlertService
}

func NewWsHandler(
	registry *realtime.ConnectionRegistry,
	presence *realtime.PresenceTracker,
	typing *realtime.TypingCoordinator,
	chatService service.ChatService,
	alertService service.AlertService,
) *WsHandler {
	return &WsHandler{
		registry:     registry,
		presence:     presence,
		typing:       typing,
		chatService:  chatService,
		alertService: alertService,
	}
}

func (s *WsHandler) Connect(c *gin.Context) {
	// 鉴权
	token := c.Query("token")
	if token == "" {
		response.Error(c, service.UnauthorizedError)
		return
	}
	claims, err := security.ValidateToken(token)
	if err != nil {
		log.Warn("WS 鉴权失败", "err", err)
		response.Error(c, service.UnauthorizedError)
		return
	}
	userID := claims.UserID

	// 升级 Websocket
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}

	conn := realtime.NewConnection(ws, userID, config.Cfg.Realtime.SendBuffer)
	s.registry.Register(conn)

	log.Info("用户 WS 连接已建立", "userID", userID, "connID", conn.ID())

	defer func() {
		// 先注销连接：若是最后一条，注册表会触发下线广播
		s.registry.Unregister(conn)
		s.alertService.ClearAllViews(userID)
		conn.Close()
		log.Info("用户 WS 连接已断开", "userID", userID, "connID", conn.ID())
	}()

	ctx := context.WithValue(context.Background(), logger.TraceIDKey, "ws-"+conn.ID())

	go conn.WritePump()

	conn.ReadLoop(func(env realtime.Envelope) {
		s.dispatch(ctx, userID, env)
	})
}

// dispatch 入站事件分发
func (s *WsHandler) dispatch(ctx context.Context, userID uint64, env realtime.Envelope) {
	switch env.Event {
	case realtime.EventChatJoined:
		var p realtime.ChatScopePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.presence.Join(userID, p.ConversationID, p.Members)
		s.alertService.MarkViewing(userID, p.ConversationID)
		// 打开会话即视为读过，存量未读立即清零
		if err := s.alertService.OnConversationOpened(ctx, p.ConversationID, userID); err != nil {
			log.WarnContext(ctx, "清除会话未读失败", "userID", userID, "convID", p.ConversationID, "err", err)
		}

	case realtime.EventChatLeave:
		var p realtime.ChatScopePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.alertService.ClearViewing(userID, p.ConversationID)
		s.presence.Leave(userID, p.ConversationID, p.Members)

	case realtime.EventStartTyping:
		var p realtime.TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.typing.StartTyping(p.ConversationID, userID, withoutSelf(p.Members, userID))

	case realtime.EventStopTyping:
		var p realtime.TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.typing.StopTyping(p.ConversationID, userID, withoutSelf(p.Members, userID))

	case realtime.EventNewMessage:
		var p wsNewMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		msgType := p.MsgType
		if msgType == 0 {
			msgType = 1
		}
		// 成员列表以数据库为准，载荷中的 members 仅保持线上协议兼容
		_, err := s.chatService.SendMessage(ctx, userID, &dto.SendMessageReq{
			ConversationID: p.ConversationID,
			MsgType:        msgType,
			Content:        p.Content,
			Attachments:    p.Attachments,
		})
		if err != nil {
			log.WarnContext(ctx, "WS 消息发送失败", "userID", userID, "convID", p.ConversationID, "err", err)
		}

	default:
		log.WarnContext(ctx, "未知的入站事件", "event", env.Event, "userID", userID)
	}
}

func withoutSelf(members []uint64, self uint64) []uint64 {
	out := make([]uint64, 0, len(members))
	for _, id := range members {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

// wsNewMessagePayload NEW_MESSAGE 的入站载荷
type wsNewMessagePayload struct {
	ConversationID uint64              `json:"conversationId"`
	Members        []uint64            `json:"members"`
	MsgType        int                 `json:"msgType"`
	Content        string              `json:"content"`
	Attachments    []dto.AttachmentDTO `json:"attachments"`
}
