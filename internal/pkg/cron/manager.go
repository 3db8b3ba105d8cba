package cron

import (
	"Palaver/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine         *cron.Cron
	typingSweepJob *job.TypingSweepJob
}

func NewCronManager(typingSweepJob *job.TypingSweepJob) *Manager {
	return &Manager{
		engine:         cron.New(cron.WithSeconds()),
		typingSweepJob: typingSweepJob,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	// 输入状态 TTL 为秒级，每 30 秒清理一次过期残留即可
	if _, err := s.engine.AddJob("*/30 * * * * *", s.typingSweepJob); err != nil {
		return err
	}
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动")
	s.engine.Start()
}

func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	s.engine.Stop()
}
