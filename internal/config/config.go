package config

import "time"

type Config struct {
	Service     *ServiceConfig
	Redis       *RedisConfig
	Postgres    *PostgresConfig
	Worker      *WorkerConfig
	Hub         *HubConfig
	Logger      *LoggerConfig
	Tracer      *TracerConfig
	SecretToken string
}

type ServiceConfig struct {
	Name string
	Env  string
	Addr string
}

type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

type WorkerConfig struct {
	MessageGroup string
}

// HubConfig tunes the real-time coordination layer.
type HubConfig struct {
	PendingBufferCap  int
	SendBuffer        int
	ReadLimit         int64
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	RosterTTL         time.Duration
	RosterWindow      time.Duration
	TokenTTL          time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

type TracerConfig struct {
	Address string
}
