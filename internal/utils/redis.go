// 包 utils：Redis/PostgreSQL 连接工具，统一环境变量读取
package utils

import (
	"os"
	"strconv"

	"geo-attendance/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：使用地址与密码打开 Redis 客户端
// 背景：保留直接传入参数的能力，用于命令行参数与测试注入；地址为空时返回 nil（缓存与重放检测降级为关闭）
func OpenRedis(addr, pass string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

// OpenRedisFromEnv：从环境变量打开 Redis 客户端，支持 REDIS_DB 选择
// 约束：未配置 REDIS_HOST 时返回 nil；REDIS_DB 解析失败时忽略并回退到 0
func OpenRedisFromEnv() *redis.Client {
	addr := RedisAddrFromEnv()
	if addr == "" {
		logger.L().Debug("redis_disabled")
		return nil
	}
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			db = n
		}
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return OpenRedis(addr, os.Getenv("REDIS_PASS"), db)
}

// RedisAddrFromEnv：REDIS_HOST[:REDIS_PORT]，端口缺省 6379
func RedisAddrFromEnv() string {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return ""
	}
	return host + ":" + envOr("REDIS_PORT", "6379")
}
