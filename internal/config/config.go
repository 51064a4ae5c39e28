package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Redis   RedisConfig
	Storage StorageConfig
	Logger  LoggerConfig
	LLM     LLMConfig
	Quiz    QuizConfig
	Worker  WorkerConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type LoggerConfig struct {
	Level string
	Env   string
}

// ProviderConfig holds the static settings for one AI backend. Runtime
// overrides from the key-value store are merged over these per job.
type ProviderConfig struct {
	Enabled        bool
	BaseURL        string
	Model          string
	APIKey         string
	TimeoutConnect time.Duration
	TimeoutRead    time.Duration
	TimeoutWrite   time.Duration
	Temperature    float64
	MinCallTime    time.Duration
}

type LLMConfig struct {
	// ProviderOrder is the comma-separated default order, e.g.
	// "openrouter,hfrouter,ollama". A healthcheck-informed order cached in
	// Redis takes precedence when available.
	ProviderOrder string

	// Budget is the wall-clock ceiling for generating one lesson's quiz,
	// shared across providers and retries.
	Budget time.Duration

	// MaxRetries caps attempts per provider before budget-based capping.
	MaxRetries int

	// BackoffBase is multiplied by the attempt number between retries.
	BackoffBase time.Duration

	// AttemptOverhead is the per-attempt fixed cost (connect, parse) added
	// to the read timeout when capping attempts against the budget.
	AttemptOverhead time.Duration

	// SafetyMargin is subtracted from the remaining budget when computing a
	// dynamic read timeout so an attempt never blows the budget exactly.
	SafetyMargin time.Duration

	// OrderCacheTTL bounds how long the preflight provider order is reused.
	OrderCacheTTL time.Duration

	OpenRouter ProviderConfig
	HFRouter   ProviderConfig
	Ollama     ProviderConfig
}

type QuizConfig struct {
	// TargetQuestions is how many questions each lesson quiz gets.
	TargetQuestions int

	// MinQuestions is the minimum acceptable validated count from a
	// provider before falling through to the next one.
	MinQuestions int

	PassThreshold int
	AttemptsLimit int

	// SessionTTL is the default quiz-session ceiling when the quiz has no
	// time limit.
	SessionTTL time.Duration

	// FinalExamFloor is the minimum question count final-exam assembly aims
	// for via round-robin top-up.
	FinalExamFloor int

	// FinalPerLesson is how many questions each lesson contributes to the
	// final exam in the first pass.
	FinalPerLesson int
}

type WorkerConfig struct {
	Concurrency  int
	QueueName    string
	JobTimeout   time.Duration
	ResultTTL    time.Duration
	LockTTL      time.Duration
	TitleLockTTL time.Duration
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("db.user", "corelms")
	viper.SetDefault("db.name", "corelms")
	viper.SetDefault("db.sslmode", "disable")

	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.bucket", "corelms")
	viper.SetDefault("storage.use_ssl", false)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.env", "development")

	viper.SetDefault("llm.provider_order", "openrouter,hfrouter,ollama")
	viper.SetDefault("llm.budget", "90s")
	viper.SetDefault("llm.max_retries", 3)
	viper.SetDefault("llm.backoff_base", "350ms")
	viper.SetDefault("llm.attempt_overhead", "2s")
	viper.SetDefault("llm.safety_margin", "1s")
	viper.SetDefault("llm.order_cache_ttl", "5m")

	viper.SetDefault("llm.openrouter.enabled", false)
	viper.SetDefault("llm.openrouter.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("llm.openrouter.timeout_connect", "3s")
	viper.SetDefault("llm.openrouter.timeout_read", "12s")
	viper.SetDefault("llm.openrouter.timeout_write", "12s")
	viper.SetDefault("llm.openrouter.temperature", 0.2)
	viper.SetDefault("llm.openrouter.min_call_time", "4s")

	viper.SetDefault("llm.hfrouter.enabled", false)
	viper.SetDefault("llm.hfrouter.base_url", "https://router.huggingface.co/v1")
	viper.SetDefault("llm.hfrouter.timeout_connect", "3s")
	viper.SetDefault("llm.hfrouter.timeout_read", "12s")
	viper.SetDefault("llm.hfrouter.timeout_write", "12s")
	viper.SetDefault("llm.hfrouter.temperature", 0.2)
	viper.SetDefault("llm.hfrouter.min_call_time", "4s")

	viper.SetDefault("llm.ollama.enabled", false)
	viper.SetDefault("llm.ollama.base_url", "http://localhost:11434")
	viper.SetDefault("llm.ollama.model", "gemma3:4b")
	viper.SetDefault("llm.ollama.timeout_read", "35s")
	viper.SetDefault("llm.ollama.temperature", 0.2)
	viper.SetDefault("llm.ollama.min_call_time", "8s")

	viper.SetDefault("quiz.target_questions", 5)
	viper.SetDefault("quiz.min_questions", 3)
	viper.SetDefault("quiz.pass_threshold", 70)
	viper.SetDefault("quiz.attempts_limit", 3)
	viper.SetDefault("quiz.session_ttl", "1h")
	viper.SetDefault("quiz.final_exam_floor", 10)
	viper.SetDefault("quiz.final_per_lesson", 2)

	viper.SetDefault("worker.concurrency", 2)
	viper.SetDefault("worker.queue_name", "corelms")
	viper.SetDefault("worker.job_timeout", "2h")
	viper.SetDefault("worker.result_ttl", "24h")
	viper.SetDefault("worker.lock_ttl", "6h")
	viper.SetDefault("worker.title_lock_ttl", "720h")
}

func providerConfig(prefix string) ProviderConfig {
	return ProviderConfig{
		Enabled:        viper.GetBool(prefix + ".enabled"),
		BaseURL:        viper.GetString(prefix + ".base_url"),
		Model:          viper.GetString(prefix + ".model"),
		APIKey:         viper.GetString(prefix + ".api_key"),
		TimeoutConnect: viper.GetDuration(prefix + ".timeout_connect"),
		TimeoutRead:    viper.GetDuration(prefix + ".timeout_read"),
		TimeoutWrite:   viper.GetDuration(prefix + ".timeout_write"),
		Temperature:    viper.GetFloat64(prefix + ".temperature"),
		MinCallTime:    viper.GetDuration(prefix + ".min_call_time"),
	}
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("CORELMS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A config file is optional; env + defaults are enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:         viper.GetInt("server.port"),
			ReadTimeout:  viper.GetDuration("server.read_timeout"),
			WriteTimeout: viper.GetDuration("server.write_timeout"),
		},
		DB: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetInt("db.port"),
			User:     viper.GetString("db.user"),
			Password: viper.GetString("db.password"),
			DBName:   viper.GetString("db.name"),
			SSLMode:  viper.GetString("db.sslmode"),
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			Endpoint:  viper.GetString("storage.endpoint"),
			AccessKey: viper.GetString("storage.access_key"),
			SecretKey: viper.GetString("storage.secret_key"),
			Bucket:    viper.GetString("storage.bucket"),
			UseSSL:    viper.GetBool("storage.use_ssl"),
		},
		Logger: LoggerConfig{
			Level: viper.GetString("logger.level"),
			Env:   viper.GetString("logger.env"),
		},
		LLM: LLMConfig{
			ProviderOrder:   viper.GetString("llm.provider_order"),
			Budget:          viper.GetDuration("llm.budget"),
			MaxRetries:      viper.GetInt("llm.max_retries"),
			BackoffBase:     viper.GetDuration("llm.backoff_base"),
			AttemptOverhead: viper.GetDuration("llm.attempt_overhead"),
			SafetyMargin:    viper.GetDuration("llm.safety_margin"),
			OrderCacheTTL:   viper.GetDuration("llm.order_cache_ttl"),
			OpenRouter:      providerConfig("llm.openrouter"),
			HFRouter:        providerConfig("llm.hfrouter"),
			Ollama:          providerConfig("llm.ollama"),
		},
		Quiz: QuizConfig{
			TargetQuestions: viper.GetInt("quiz.target_questions"),
			MinQuestions:    viper.GetInt("quiz.min_questions"),
			PassThreshold:   viper.GetInt("quiz.pass_threshold"),
			AttemptsLimit:   viper.GetInt("quiz.attempts_limit"),
			SessionTTL:      viper.GetDuration("quiz.session_ttl"),
			FinalExamFloor:  viper.GetInt("quiz.final_exam_floor"),
			FinalPerLesson:  viper.GetInt("quiz.final_per_lesson"),
		},
		Worker: WorkerConfig{
			Concurrency:  viper.GetInt("worker.concurrency"),
			QueueName:    viper.GetString("worker.queue_name"),
			JobTimeout:   viper.GetDuration("worker.job_timeout"),
			ResultTTL:    viper.GetDuration("worker.result_ttl"),
			LockTTL:      viper.GetDuration("worker.lock_ttl"),
			TitleLockTTL: viper.GetDuration("worker.title_lock_ttl"),
		},
	}

	return config, nil
}

// GetDSN builds the Postgres DSN for sqlx/pgx.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User,
		c.DB.Password,
		c.DB.Host,
		c.DB.Port,
		c.DB.DBName,
		c.DB.SSLMode,
	)
}
