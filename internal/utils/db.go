package utils

import (
	"database/sql"
	"net/url"
	"os"
	"strconv"

	_ "github.com/lib/pq"
)

const (
	defaultPGMaxOpen = 10
	defaultPGMaxIdle = 5
)

// PGConfig：PostgreSQL 连接参数，零值字段取默认
type PGConfig struct {
	Host, Port, User, Password, Database, SSLMode string
	MaxOpen, MaxIdle                              int
}

// PGConfigFromEnv：读取 PG_HOST/PG_PORT/PG_USER/PG_PASSWORD/PG_DB/PG_SSLMODE 与连接池变量
func PGConfigFromEnv() PGConfig {
	return PGConfig{
		Host:     envOr("PG_HOST", "localhost"),
		Port:     envOr("PG_PORT", "5432"),
		User:     envOr("PG_USER", "postgres"),
		Password: os.Getenv("PG_PASSWORD"),
		Database: envOr("PG_DB", "attendance"),
		SSLMode:  envOr("PG_SSLMODE", "disable"),
		MaxOpen:  envPositive("PG_MAX_OPEN_CONNS", defaultPGMaxOpen),
		MaxIdle:  envPositive("PG_MAX_IDLE_CONNS", defaultPGMaxIdle),
	}
}

// DSN：密码含特殊字符时经 url.UserPassword 转义
func (c PGConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	return u.String()
}

// OpenPostgres：按默认连接池打开；不做 Ping，由调用方决定何时探活
func OpenPostgres(dsn string) (*sql.DB, error) {
	return openPool(dsn, defaultPGMaxOpen, defaultPGMaxIdle)
}

// OpenPostgresFromEnv：PG_DSN 优先，否则由 PG_* 拼接
func OpenPostgresFromEnv() (*sql.DB, error) {
	c := PGConfigFromEnv()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		dsn = c.DSN()
	}
	return openPool(dsn, c.MaxOpen, c.MaxIdle)
}

func openPool(dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	return db, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envPositive(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return def
}
