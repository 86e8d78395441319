package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"cashkeyboard/internal/pkg/redis"
	"cashkeyboard/internal/service/cash/domain"
)

const (
	rememberSourceScriptName = "remember_source"

	// 唯一索引才是最终裁决点，guard 只需覆盖重试风暴的时间窗口。
	sourceGuardTTL = 24 * time.Hour
)

// SourceGuardRedisAdapter 是 domain.SourceGuard 接口的 Redis 实现。
// 它把 (userId, sourceId) -> transactionId 的映射放在 Redis 里，
// 让重复请求在进数据库之前就被拦下。
type SourceGuardRedisAdapter struct {
	redisClient *redis.Client
}

var _ domain.SourceGuard = (*SourceGuardRedisAdapter)(nil)

// NewSourceGuardRedisAdapter 创建一个新的幂等守卫适配器实例。
// 它在创建时会加载所需的 Lua 脚本。
func NewSourceGuardRedisAdapter(redisClient *redis.Client) (*SourceGuardRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(rememberSourceScriptName, rememberSourceScript); err != nil {
		return nil, fmt.Errorf("failed to load source guard script: %w", err)
	}
	return &SourceGuardRedisAdapter{redisClient: redisClient}, nil
}

func sourceGuardKey(userID uuid.UUID, sourceID string) string {
	return fmt.Sprintf("cash:source:{%s}:%s", userID.String(), sourceID)
}

// PriorTransaction 查询 sourceId 是否已被处理。未处理过返回 uuid.Nil。
func (a *SourceGuardRedisAdapter) PriorTransaction(ctx context.Context, userID uuid.UUID, sourceID string) (uuid.UUID, error) {
	val, err := a.redisClient.GetClient().Get(ctx, sourceGuardKey(userID, sourceID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("source guard lookup: %w", err)
	}
	txID, err := uuid.Parse(val)
	if err != nil {
		// 脏数据当作未命中处理，数据库预检兜底
		return uuid.Nil, nil
	}
	return txID, nil
}

// Remember 在流水提交成功后登记 sourceId。
// 用 NX 写入：并发竞争时先提交的流水是唯一赢家，后来者不覆盖。
func (a *SourceGuardRedisAdapter) Remember(ctx context.Context, userID uuid.UUID, sourceID string, transactionID uuid.UUID) error {
	keys := []string{sourceGuardKey(userID, sourceID)}
	args := []interface{}{transactionID.String(), int64(sourceGuardTTL / time.Second)}

	_, err := a.redisClient.RunScript(ctx, rememberSourceScriptName, keys, args...)
	if err != nil {
		return fmt.Errorf("source guard remember: %w", err)
	}
	return nil
}

var rememberSourceScript = `
-- KEYS[1]: 幂等键, 例如: cash:source:{user-uuid}:ad_20240101_001
-- ARGV[1]: 已提交的流水 ID
-- ARGV[2]: 过期秒数

-- NX: 已有记录说明更早的请求已经登记过, 保留第一个值
if redis.call('set', KEYS[1], ARGV[1], 'NX', 'EX', tonumber(ARGV[2])) then
    return 1
end
return 0
`
