package realtime

import (
	log "log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	// DefaultSendBuffer 单连接发送缓冲，写满即丢
	DefaultSendBuffer = 256
)

// Connection 一条已鉴权的设备连接，同一用户可同时持有多条
type Connection struct {
	id          string
	userID      uint64
	connectedAt time.Time

	ws   *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func NewConnection(ws *websocket.Conn, userID uint64, sendBuffer int) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Connection{
		id:          uuid.NewString(),
		userID:      userID,
		connectedAt: time.Now(),
		ws:          ws,
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
	}
}

func (c *Connection) ID() string             { return c.id }
func (c *Connection) UserID() uint64         { return c.userID }
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// Push 非阻塞投递，缓冲已满或连接已关闭时返回 false
func (c *Connection) Push(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close 幂等关闭，重复调用是无害的
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// ReadLoop 阻塞读取入站封包，连接断开时返回
func (c *Connection) ReadLoop(onEvent func(Envelope)) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WS 读取异常中断", "userID", c.userID, "err", err)
			}
			return
		}

		var env Envelope
		if err := decodeEnvelope(data, &env); err != nil {
			log.Warn("WS 封包解析失败", "userID", c.userID, "err", err)
			continue
		}
		onEvent(env)
	}
}

// WritePump 消费发送缓冲并保持心跳，连接断开时返回
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Outbox 供测试观察投递结果
func (c *Connection) Outbox() <-chan []byte { return c.send }
