package kafka

import (
	"Palaver/internal/api/config"
	log "log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

// DeliveryRecord 投递审计事件，异步写入 Kafka 供离线分析
type DeliveryRecord struct {
	Event          string    `json:"event"`
	ConversationID uint64    `json:"conversation_id"`
	Recipients     int       `json:"recipients"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Producer 投递审计生产者，发送失败只记日志，不影响扇出
type Producer struct {
	producer sarama.AsyncProducer
	topic    string
}

func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	p, err := sarama.NewAsyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, err
	}

	prod := &Producer{producer: p, topic: cfg.DeliveryTopic}

	go func() {
		for err := range p.Errors() {
			log.Error("Kafka 投递审计写入失败", "topic", err.Msg.Topic, "err", err.Err)
		}
	}()

	return prod, nil
}

// Delivered 记录一次扇出投递
func (s *Producer) Delivered(event string, convID uint64, recipients int) {
	rec := DeliveryRecord{
		Event:          event,
		ConversationID: convID,
		Recipients:     recipients,
		OccurredAt:     time.Now(),
	}

	data, err := json.Marshal(&rec)
	if err != nil {
		return
	}

	select {
	case s.producer.Input() <- &sarama.ProducerMessage{
		Topic: s.topic,
		Value: sarama.ByteEncoder(data),
	}:
	default:
		// 生产者积压时丢弃审计事件，投递路径绝不阻塞
	}
}

func (s *Producer) Close() error {
	return s.producer.Close()
}
