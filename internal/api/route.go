package api

import (
	"Palaver/internal/api/middleware"
	"Palaver/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		imGroup := apiGroup.Group("/im")
		{
			// WS 握手走 ?token= 鉴权，不挂中间件
			imGroup.GET("", group.WsHandler.Connect)

			authGroup := imGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware())
			{
				authGroup.POST("/send", group.ImHandler.SendMessage)
				authGroup.POST("/direct", group.ImHandler.GetOrCreateDirect)
				authGroup.GET("/history", group.ImHandler.GetChatHistory)
				authGroup.GET("/list", group.ImHandler.GetConversationList)
				authGroup.POST("/read", group.ImHandler.MarkAsRead)

				authGroup.POST("/group", group.ImHandler.CreateGroup)
				authGroup.POST("/group/members", group.ImHandler.AddMembers)
				authGroup.DELETE("/group/:conv_id/members/:member_id", group.ImHandler.RemoveMember)
				authGroup.POST("/group/:conv_id/leave", group.ImHandler.LeaveGroup)
				authGroup.DELETE("/:conv_id", group.ImHandler.DeleteConversation)
			}
		}

		alertGroup := apiGroup.Group("/alert")
		alertGroup.Use(middleware.AuthMiddleware())
		{
			alertGroup.GET("/unread", group.AlertHandler.GetUnread)
			alertGroup.POST("/notice", group.AlertHandler.SendNotice)
			alertGroup.POST("/notice/ack", group.AlertHandler.AckNotice)
		}

		mediaGroup := apiGroup.Group("/media")
		{
			mediaGroup.Use(middleware.AuthMiddleware())
			mediaGroup.POST("/upload", group.MediaHandler.Upload)
		}
	}

	return r
}
