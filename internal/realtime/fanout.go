package realtime

import (
	log "log/slog"
)

// DeliveryAudit 投递审计旁路（Kafka 生产者实现）
type DeliveryAudit interface {
	Delivered(event string, convID uint64, recipients int)
}

// Fanout 唯一的出站扇出咽喉：把一个逻辑事件投递到一组成员的全部活跃连接。
// 至多一次语义：离线成员静默跳过，慢客户端缓冲写满即丢，绝不阻塞。
type Fanout struct {
	reg   *ConnectionRegistry
	audit DeliveryAudit
}

func NewFanout(reg *ConnectionRegistry, audit DeliveryAudit) *Fanout {
	return &Fanout{reg: reg, audit: audit}
}

// Deliver 把事件推给 members 的所有活跃连接。convID 用于审计，
// 非会话维度的事件（如在线名单）传 0。
func (s *Fanout) Deliver(convID uint64, members []uint64, event string, payload interface{}) {
	data, err := EncodeEnvelope(event, payload)
	if err != nil {
		log.Error("事件序列化失败", "event", event, "err", err)
		return
	}

	conns := s.reg.Resolve(members)
	delivered := 0
	for _, c := range conns {
		if c.Push(data) {
			delivered++
		}
	}

	if s.audit != nil {
		s.audit.Delivered(event, convID, delivered)
	}
}
