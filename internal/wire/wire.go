package wire

import (
	"Palaver/internal/api"
	"Palaver/internal/api/config"
	"Palaver/internal/api/handler"
	"Palaver/internal/job"
	"Palaver/internal/pkg/cron"
	"Palaver/internal/pkg/kafka"
	"Palaver/internal/pkg/mongo"
	"Palaver/internal/pkg/redis"
	"Palaver/internal/realtime"
	"Palaver/internal/repository"
	"Palaver/internal/service"

	"github.com/gin-gonic/gin"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router        *gin.Engine
	DB            *gorm.DB
	CronManager   *cron.Manager
	KafkaProducer *kafka.Producer
}

func BuildApplication(db *gorm.DB, mongoDB *mongodrv.Database, cfg *config.Config) (*ApplicationContainer, error) {
	convRepo := repository.NewConversationRepo(db)
	messageRepo := mongo.NewMessageRepo(mongoDB)
	counters := redis.NewCounterStore()

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return nil, err
	}

	registry := realtime.NewConnectionRegistry()
	fanout := realtime.NewFanout(registry, producer)
	presence := realtime.NewPresenceTracker(registry, fanout)
	typing := realtime.NewTypingCoordinator(fanout)

	alertService := service.NewAlertService(counters, convRepo, fanout)
	chatService := service.NewChatService(convRepo, messageRepo, fanout, typing, presence, alertService)

	// 最后一条连接断开时同步清掉在线态和查看态
	registry.SetOfflineHook(func(userID uint64) {
		presence.OnDisconnect(userID)
		alertService.ClearAllViews(userID)
	})

	handlers := &api.HandlersGroup{
		WsHandler:    handler.NewWsHandler(registry, presence, typing, chatService, alertService),
		ImHandler:    handler.NewImHandler(chatService, alertService),
		AlertHandler: handler.NewAlertHandler(alertService),
		MediaHandler: handler.NewMediaHandler(),
	}

	router := api.SetupRouter(handlers)

	cronMgr := cron.NewCronManager(job.NewTypingSweepJob(typing))

	return &ApplicationContainer{
		Router:        router,
		DB:            db,
		CronManager:   cronMgr,
		KafkaProducer: producer,
	}, nil
}
