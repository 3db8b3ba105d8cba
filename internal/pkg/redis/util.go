package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SetWithExpiration 设置键值对并设置过期时间
func SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return Rdb.Set(ctx, key, value, expiration).Err()
}

// GetValue 获取字符串类型的值
func GetValue(ctx context.Context, key string) (string, error) {
	value, err := Rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// HIncrBy 对 Hash 字段自增
func HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return Rdb.HIncrBy(ctx, key, field, delta).Result()
}

// HDel 删除 Hash 字段
func HDel(ctx context.Context, key string, fields ...string) error {
	return Rdb.HDel(ctx, key, fields...).Err()
}

// HGetAll 获取整个 Hash
func HGetAll(ctx context.Context, key string) (map[string]string, error) {
	value, err := Rdb.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

// HSetAll 用新映射整体覆盖 Hash
func HSetAll(ctx context.Context, key string, values map[string]interface{}) error {
	pipe := Rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		pipe.HSet(ctx, key, values)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// IncrBy 对 String 计数器自增
func IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return Rdb.IncrBy(ctx, key, delta).Result()
}

// decrFloorScript 自减并钳制到 0，计数永不为负
const decrFloorScript = "local v = redis.call('DECR', KEYS[1]) " +
	"if v < 0 then redis.call('SET', KEYS[1], 0) return 0 end " +
	"return v"

// DecrFloor 计数器减一，不低于 0
func DecrFloor(ctx context.Context, key string) (int64, error) {
	res, err := Rdb.Eval(ctx, decrFloorScript, []string{key}).Int64()
	if err != nil {
		return 0, err
	}
	return res, nil
}
