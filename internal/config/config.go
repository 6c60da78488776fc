package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Victor-armando18/service-pricing/pkg/engine"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix = "PRICING_"

	defaultPort             = "8080"
	defaultRatePerSecond    = 10
	defaultRateBurst        = 20
	defaultRulesSource      = SourceFile
	defaultRulesDir         = "data/rules"
	defaultRulesVersion     = "v1"
	defaultMySQLDSN         = "root:@tcp(127.0.0.1:3306)/pricing?parseTime=true"
	defaultRedisTTL         = 5 * time.Minute
	defaultKafkaTopic       = "pricing-events"
	defaultLogLevel         = "info"
	defaultBatchWorkers     = 4
	defaultMinPrice         = "0.01"
	defaultMaxChangePercent = "50"
)

const (
	SourceFile  = "file"
	SourceMySQL = "mysql"
)

// Config groups runtime settings by concern. Values come from an optional
// YAML file, then PRICING_* environment variables.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Engine EngineConfig `yaml:"engine"`
	Buybox BuyboxConfig `yaml:"buybox"`
	Rules  RulesConfig  `yaml:"rules"`
	MySQL  MySQLConfig  `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Port          string  `yaml:"port"`
	RatePerSecond float64 `yaml:"ratePerSecond"`
	RateBurst     int     `yaml:"rateBurst"`
	// JWTSecret guards rule mutation endpoints. Empty disables the guard.
	JWTSecret    string `yaml:"jwtSecret"`
	BatchWorkers int    `yaml:"batchWorkers"`
}

// EngineConfig mirrors engine.Config with string decimals so YAML and env
// values keep their exact scale.
type EngineConfig struct {
	MinPrice              string `yaml:"minPrice"`
	MaxPrice              string `yaml:"maxPrice"`
	MinMargin             string `yaml:"minMargin"`
	MaxMargin             string `yaml:"maxMargin"`
	MaxPriceChangePercent string `yaml:"maxPriceChangePercent"`
	Mode                  string `yaml:"mode"`
	DefaultStacking       string `yaml:"defaultStacking"`
}

type BuyboxConfig struct {
	Weights engine.ScoreWeights `yaml:"weights"`
}

type RulesConfig struct {
	Source  string `yaml:"source"`
	Dir     string `yaml:"dir"`
	Version string `yaml:"version"`
}

type MySQLConfig struct {
	DSN     string `yaml:"dsn"`
	Retries int    `yaml:"retries"`
}

// RedisConfig enables the rule cache when Addr is set.
type RedisConfig struct {
	Addr string        `yaml:"addr"`
	TTL  time.Duration `yaml:"ttl"`
}

// KafkaConfig enables event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// ValidationError lists every field that is missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: invalid fields [%s]", strings.Join(e.fields, ", "))
}

func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load.
type Option func(*loaderOptions)

type loaderOptions struct {
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvMap injects variables that take precedence over the process
// environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:          defaultPort,
			RatePerSecond: defaultRatePerSecond,
			RateBurst:     defaultRateBurst,
			BatchWorkers:  defaultBatchWorkers,
		},
		Engine: EngineConfig{
			MinPrice:              defaultMinPrice,
			MinMargin:             "0",
			MaxMargin:             "100",
			MaxPriceChangePercent: defaultMaxChangePercent,
			Mode:                  string(engine.FailFast),
			DefaultStacking:       string(engine.StackingSequential),
		},
		Buybox: BuyboxConfig{Weights: engine.DefaultScoreWeights()},
		Rules: RulesConfig{
			Source:  defaultRulesSource,
			Dir:     defaultRulesDir,
			Version: defaultRulesVersion,
		},
		MySQL: MySQLConfig{DSN: defaultMySQLDSN, Retries: 3},
		Redis: RedisConfig{TTL: defaultRedisTTL},
		Kafka: KafkaConfig{Topic: defaultKafkaTopic},
		Log:   LogConfig{Level: defaultLogLevel},
	}
}

// Load reads path (skipped when empty) over the defaults, applies the
// environment, then validates.
func Load(path string, opts ...Option) (Config, error) {
	options := loaderOptions{useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	env := func(key string) (string, bool) {
		if v, ok := options.envMap[envPrefix+key]; ok {
			return v, true
		}
		if options.useSystemEnv {
			return os.LookupEnv(envPrefix + key)
		}
		return "", false
	}
	var invalid []string
	if err := cfg.applyEnv(env); err != nil {
		invalid = append(invalid, err.fields...)
	}
	if err := cfg.validate(); err != nil {
		invalid = append(invalid, err.fields...)
	}
	if len(invalid) > 0 {
		return Config{}, &ValidationError{fields: invalid}
	}
	return cfg, nil
}

func (c *Config) applyEnv(env func(string) (string, bool)) *ValidationError {
	var bad []string
	str := func(key string, dst *string) {
		if v, ok := env(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := env(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				bad = append(bad, envPrefix+key)
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := env(key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				bad = append(bad, envPrefix+key)
				return
			}
			*dst = f
		}
	}

	str("PORT", &c.Server.Port)
	float("RATE_PER_SECOND", &c.Server.RatePerSecond)
	integer("RATE_BURST", &c.Server.RateBurst)
	str("JWT_SECRET", &c.Server.JWTSecret)
	integer("BATCH_WORKERS", &c.Server.BatchWorkers)

	str("ENGINE_MIN_PRICE", &c.Engine.MinPrice)
	str("ENGINE_MAX_PRICE", &c.Engine.MaxPrice)
	str("ENGINE_MIN_MARGIN", &c.Engine.MinMargin)
	str("ENGINE_MAX_MARGIN", &c.Engine.MaxMargin)
	str("ENGINE_MAX_PRICE_CHANGE_PERCENT", &c.Engine.MaxPriceChangePercent)
	str("ENGINE_MODE", &c.Engine.Mode)
	str("ENGINE_STACKING", &c.Engine.DefaultStacking)

	float("BUYBOX_WEIGHT_PRICE", &c.Buybox.Weights.Price)
	float("BUYBOX_WEIGHT_RATING", &c.Buybox.Weights.SellerRating)
	float("BUYBOX_WEIGHT_FULFILLMENT", &c.Buybox.Weights.Fulfillment)
	float("BUYBOX_WEIGHT_STOCK", &c.Buybox.Weights.Stock)

	str("RULES_SOURCE", &c.Rules.Source)
	str("RULES_DIR", &c.Rules.Dir)
	str("RULES_VERSION", &c.Rules.Version)

	str("MYSQL_DSN", &c.MySQL.DSN)
	integer("MYSQL_RETRIES", &c.MySQL.Retries)

	str("REDIS_ADDR", &c.Redis.Addr)
	if v, ok := env("REDIS_TTL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			bad = append(bad, envPrefix+"REDIS_TTL")
		} else {
			c.Redis.TTL = d
		}
	}

	if v, ok := env("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
	str("KAFKA_TOPIC", &c.Kafka.Topic)

	str("LOG_LEVEL", &c.Log.Level)
	if v, ok := env("LOG_PRETTY"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			bad = append(bad, envPrefix+"LOG_PRETTY")
		} else {
			c.Log.Pretty = b
		}
	}

	if len(bad) > 0 {
		return &ValidationError{fields: bad}
	}
	return nil
}

func (c Config) validate() *ValidationError {
	var bad []string
	if c.Server.Port == "" {
		bad = append(bad, "server.port")
	}
	if c.Server.RatePerSecond < 0 {
		bad = append(bad, "server.ratePerSecond")
	}
	if c.Server.BatchWorkers < 1 {
		bad = append(bad, "server.batchWorkers")
	}
	if _, err := c.EngineConfig(zerolog.Nop()); err != nil {
		bad = append(bad, "engine")
	}
	w := c.Buybox.Weights
	if w.Price < 0 || w.SellerRating < 0 || w.Fulfillment < 0 || w.Stock < 0 {
		bad = append(bad, "buybox.weights")
	}
	switch c.Rules.Source {
	case SourceFile:
		if c.Rules.Dir == "" {
			bad = append(bad, "rules.dir")
		}
	case SourceMySQL:
		if c.MySQL.DSN == "" {
			bad = append(bad, "mysql.dsn")
		}
	default:
		bad = append(bad, "rules.source")
	}
	if c.Rules.Version == "" {
		bad = append(bad, "rules.version")
	}
	if c.Redis.Addr != "" && c.Redis.TTL <= 0 {
		bad = append(bad, "redis.ttl")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		bad = append(bad, "kafka.topic")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		bad = append(bad, "log.level")
	}
	if len(bad) > 0 {
		return &ValidationError{fields: bad}
	}
	return nil
}

// EngineConfig converts the engine section into engine.Config.
func (c Config) EngineConfig(logger zerolog.Logger) (engine.Config, error) {
	out := engine.DefaultConfig()
	out.Logger = logger

	parse := func(name, raw string, dst *decimal.Decimal) error {
		if strings.TrimSpace(raw) == "" {
			return nil
		}
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("engine.%s: %q is not a number", name, raw)
		}
		*dst = d
		return nil
	}
	if err := parse("minPrice", c.Engine.MinPrice, &out.MinPrice); err != nil {
		return engine.Config{}, err
	}
	if strings.TrimSpace(c.Engine.MaxPrice) != "" {
		var hi decimal.Decimal
		if err := parse("maxPrice", c.Engine.MaxPrice, &hi); err != nil {
			return engine.Config{}, err
		}
		out.MaxPrice = decimal.NewNullDecimal(hi)
	}
	if err := parse("minMargin", c.Engine.MinMargin, &out.MinMargin); err != nil {
		return engine.Config{}, err
	}
	if err := parse("maxMargin", c.Engine.MaxMargin, &out.MaxMargin); err != nil {
		return engine.Config{}, err
	}
	if err := parse("maxPriceChangePercent", c.Engine.MaxPriceChangePercent, &out.MaxPriceChangePercent); err != nil {
		return engine.Config{}, err
	}

	if c.Engine.Mode != "" {
		mode := engine.ValidationMode(strings.ToUpper(c.Engine.Mode))
		if mode != engine.FailFast && mode != engine.CollectAll {
			return engine.Config{}, fmt.Errorf("engine.mode: unknown mode %q", c.Engine.Mode)
		}
		out.Mode = mode
	}
	if c.Engine.DefaultStacking != "" {
		policy := engine.StackingPolicy(strings.ToUpper(c.Engine.DefaultStacking))
		if !policy.Valid() {
			return engine.Config{}, fmt.Errorf("engine.defaultStacking: unknown policy %q", c.Engine.DefaultStacking)
		}
		out.DefaultStacking = policy
	}
	if out.MinMargin.GreaterThan(out.MaxMargin) {
		return engine.Config{}, fmt.Errorf("engine: minMargin %s exceeds maxMargin %s", out.MinMargin, out.MaxMargin)
	}
	return out, nil
}

// Logger builds the process logger from the log section.
func (c Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if c.Log.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "pricing").Logger()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
