package api

import "Palaver/internal/api/handler"

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	WsHandler    *handler.WsHandler
	ImHandler    *handler.ImHandler
	AlertHandler *handler.AlertHandler
	MediaHandler *handler.MediaHandler
}
