package redis

import "context"

// CounterStore 基于 Redis 的计数存储，供告警服务注入使用
type CounterStore struct{}

func NewCounterStore() *CounterStore {
	return &CounterStore{}
}

func (s *CounterStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return HIncrBy(ctx, key, field, delta)
}

func (s *CounterStore) HDel(ctx context.Context, key string, fields ...string) error {
	return HDel(ctx, key, fields...)
}

func (s *CounterStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return HGetAll(ctx, key)
}

func (s *CounterStore) HSetAll(ctx context.Context, key string, values map[string]interface{}) error {
	return HSetAll(ctx, key, values)
}

func (s *CounterStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return IncrBy(ctx, key, delta)
}

func (s *CounterStore) DecrFloor(ctx context.Context, key string) (int64, error) {
	return DecrFloor(ctx, key)
}

func (s *CounterStore) Get(ctx context.Context, key string) (string, error) {
	return GetValue(ctx, key)
}
