// Package config загружает конфигурацию Outpost.
//
// Источники по возрастанию приоритета: значения по умолчанию,
// YAML-файл, .env, переменные окружения OUTPOST_*, флаги командной строки.
// Ключ "execution_api.url" читается из OUTPOST_EXECUTION_API_URL.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shaiso/Outpost/internal/domain"
	"github.com/shaiso/Outpost/internal/mq"
	"github.com/shaiso/Outpost/internal/repo"
	"github.com/shaiso/Outpost/internal/statestore"
	"github.com/shaiso/Outpost/internal/worker"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "OUTPOST"

// DefaultHTTPAddr — адрес API executor'а. Не совпадает с портом
// control API scheduler'а (execution_api.local_addr, localhost:8080).
const DefaultHTTPAddr = ":8090"

// ErrInvalidConfig — недопустимое значение в конфигурации.
var ErrInvalidConfig = errors.New("invalid config")

// Допустимые значения backend'ов.
const (
	StateMemory   = "memory"
	StateRedis    = "redis"
	StatePostgres = "postgres"
	StateDynamoDB = "dynamodb"

	TransportRabbitMQ = "rabbitmq"
	TransportKafka    = "kafka"

	ArchiveFile = "file"
	ArchiveS3   = "s3"
)

// Config — корневая конфигурация.
type Config struct {
	Env          string             `mapstructure:"env"`
	Log          LogConfig          `mapstructure:"log"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	State        StateConfig        `mapstructure:"state"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	DynamoDB     DynamoDBConfig     `mapstructure:"dynamodb"`
	Dispatch     DispatchConfig     `mapstructure:"dispatch"`
	RabbitMQ     RabbitMQConfig     `mapstructure:"rabbitmq"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Executor     ExecutorConfig     `mapstructure:"executor"`
	ExecutionAPI ExecutionAPIConfig `mapstructure:"execution_api"`
	Tunnel       TunnelConfig       `mapstructure:"tunnel"`
	Heartbeat    HeartbeatConfig    `mapstructure:"heartbeat"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Archive      ArchiveConfig      `mapstructure:"archive"`
	Worker       WorkerConfig       `mapstructure:"worker"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type StateConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type DynamoDBConfig struct {
	// Table — пустая: namespace outpost-state-<env>.
	Table    string `mapstructure:"table"`
	Endpoint string `mapstructure:"endpoint"`
}

type DispatchConfig struct {
	Transport string `mapstructure:"transport"`
}

type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Prefetch int    `mapstructure:"prefetch"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Group   string   `mapstructure:"group"`
}

type ExecutorConfig struct {
	Parallelism int           `mapstructure:"parallelism"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
}

type ExecutionAPIConfig struct {
	URL        string `mapstructure:"url"`
	BaseURL    string `mapstructure:"base_url"`
	EnvVar     string `mapstructure:"env_var"`
	LocalAddr  string `mapstructure:"local_addr"`
	LocalCheck bool   `mapstructure:"local_check"`
}

type TunnelConfig struct {
	Server     string `mapstructure:"server"`
	User       string `mapstructure:"user"`
	KeyFile    string `mapstructure:"key_file"`
	Password   string `mapstructure:"password"`
	KnownHosts string `mapstructure:"known_hosts"`
	PublicURL  string `mapstructure:"public_url"`
}

// Enabled — туннель настроен.
func (t TunnelConfig) Enabled() bool {
	return t.Server != ""
}

type HeartbeatConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Cron     string        `mapstructure:"cron"`
}

type NotifyConfig struct {
	WebhookURL   string `mapstructure:"webhook_url"`
	WebhookToken string `mapstructure:"webhook_token"`
}

type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	// Bucket — пустой: namespace outpost-logs-<env>.
	Bucket   string `mapstructure:"bucket"`
	Endpoint string `mapstructure:"endpoint"`
}

type WorkerConfig struct {
	Concurrency     int      `mapstructure:"concurrency"`
	WorkloadCommand []string `mapstructure:"workload_command"`
}

// Defaults возвращает значения по умолчанию.
func Defaults() map[string]any {
	return map[string]any{
		"env":                       domain.DefaultEnv,
		"log.level":                 "info",
		"log.format":                "json",
		"http.addr":                 DefaultHTTPAddr,
		"state.backend":             StateMemory,
		"state.ttl":                 statestore.DefaultStateTTL,
		"redis.addr":                "localhost:6379",
		"redis.password":            "",
		"redis.db":                  0,
		"postgres.dsn":              repo.DefaultDSN,
		"dynamodb.table":            "",
		"dynamodb.endpoint":         "",
		"dispatch.transport":        TransportRabbitMQ,
		"rabbitmq.url":              mq.DefaultURL(),
		"rabbitmq.prefetch":         1,
		"kafka.brokers":             []string{"localhost:9092"},
		"kafka.group":               "outpost-workers",
		"executor.parallelism":      100,
		"executor.stale_after":      time.Duration(0),
		"execution_api.url":         "",
		"execution_api.base_url":    "",
		"execution_api.env_var":     domain.DefaultEndpointEnvVar,
		"execution_api.local_addr":  "localhost:8080",
		"execution_api.local_check": true,
		"tunnel.server":             "",
		"tunnel.user":               "",
		"tunnel.key_file":           "",
		"tunnel.password":           "",
		"tunnel.known_hosts":        "",
		"tunnel.public_url":         "",
		"heartbeat.interval":        5 * time.Second,
		"heartbeat.cron":            "",
		"notify.webhook_url":        "",
		"notify.webhook_token":      "",
		"archive.backend":           ArchiveFile,
		"archive.dir":               "/var/log/outpost",
		"archive.bucket":            "",
		"archive.endpoint":          "",
		"worker.concurrency":        4,
		"worker.workload_command":   worker.DefaultWorkloadCommand,
	}
}

// New создаёт viper с префиксом окружения и значениями по умолчанию.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, val := range Defaults() {
		v.SetDefault(key, val)
	}
	return v
}

// BindFlag связывает флаг с ключом конфигурации.
func BindFlag(v *viper.Viper, key string, fs *pflag.FlagSet, name string) {
	if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %q → %q: %v", name, key, err))
	}
}

// Load читает .env (если есть), YAML-файл (если задан) и собирает Config.
func Load(v *viper.Viper, file, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения перечислимых полей и лимиты.
func (c *Config) Validate() error {
	if !slices.Contains([]string{StateMemory, StateRedis, StatePostgres, StateDynamoDB}, c.State.Backend) {
		return fmt.Errorf("%w: state.backend %q", ErrInvalidConfig, c.State.Backend)
	}
	if !slices.Contains([]string{TransportRabbitMQ, TransportKafka}, c.Dispatch.Transport) {
		return fmt.Errorf("%w: dispatch.transport %q", ErrInvalidConfig, c.Dispatch.Transport)
	}
	if !slices.Contains([]string{ArchiveFile, ArchiveS3}, c.Archive.Backend) {
		return fmt.Errorf("%w: archive.backend %q", ErrInvalidConfig, c.Archive.Backend)
	}
	if c.Executor.Parallelism <= 0 {
		return fmt.Errorf("%w: executor.parallelism must be positive", ErrInvalidConfig)
	}
	if c.Executor.StaleAfter < 0 {
		return fmt.Errorf("%w: executor.stale_after must not be negative", ErrInvalidConfig)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("%w: worker.concurrency must be positive", ErrInvalidConfig)
	}
	if c.ExecutionAPI.LocalCheck && listensOn(c.HTTP.Addr, c.ExecutionAPI.LocalAddr) {
		return fmt.Errorf("%w: execution_api.local_addr %q points at the executor's own http.addr %q",
			ErrInvalidConfig, c.ExecutionAPI.LocalAddr, c.HTTP.Addr)
	}
	if c.Dispatch.Transport == TransportKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: kafka.brokers is required for kafka transport", ErrInvalidConfig)
	}
	return nil
}

// listensOn сообщает, попадёт ли подключение к target на listener listen.
func listensOn(listen, target string) bool {
	lhost, lport, err := net.SplitHostPort(listen)
	if err != nil {
		return false
	}
	thost, tport, err := net.SplitHostPort(target)
	if err != nil || lport != tport {
		return false
	}

	switch {
	case strings.EqualFold(lhost, thost):
		return true
	case lhost == "" || isUnspecified(lhost):
		return true
	default:
		return isLoopback(lhost) && isLoopback(thost)
	}
}

func isUnspecified(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.IsUnspecified()
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// StateNamespace — префикс ключей и имя таблицы состояния.
func (c *Config) StateNamespace() string {
	return domain.Namespace(domain.NamespaceState, c.Env)
}

// DispatchQueue — очередь или topic dispatch.
func (c *Config) DispatchQueue() string {
	return domain.Namespace(domain.NamespaceDispatch, c.Env)
}

// StateTable — таблица DynamoDB.
func (c *Config) StateTable() string {
	if c.DynamoDB.Table != "" {
		return c.DynamoDB.Table
	}
	return c.StateNamespace()
}

// LogsBucket — bucket архива логов.
func (c *Config) LogsBucket() string {
	if c.Archive.Bucket != "" {
		return c.Archive.Bucket
	}
	return domain.Namespace(domain.NamespaceLogs, c.Env)
}
