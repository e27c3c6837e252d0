package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"lobsim/engine"
)

// EnvPrefix prefixes every environment override, e.g. LOBSIM_SIM_WORKERS.
const EnvPrefix = "LOBSIM"

// Config is the full runtime configuration.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Engine EngineConfig `mapstructure:"engine"`
	Sim    SimConfig    `mapstructure:"sim"`
	Server ServerConfig `mapstructure:"server"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig mirrors engine.Config with file-friendly types.
type EngineConfig struct {
	TransactionCostRate  float64       `mapstructure:"transaction_cost_rate"`
	ImpactCoefficient    float64       `mapstructure:"impact_coefficient"`
	ImpactCap            float64       `mapstructure:"impact_cap"`
	ImpactModel          string        `mapstructure:"impact_model"`
	PermanentImpactRatio float64       `mapstructure:"permanent_impact_ratio"`
	CancelProbability    float64       `mapstructure:"cancel_probability"`
	Latency              time.Duration `mapstructure:"latency"`
	LiquidityInterval    int64         `mapstructure:"liquidity_interval"`
	LiquiditySpread      float64       `mapstructure:"liquidity_spread"`
	LiquidityQty         float64       `mapstructure:"liquidity_qty"`
	MinOrderSize         float64       `mapstructure:"min_order_size"`
	MinPriceDiff         float64       `mapstructure:"min_price_diff"`
	SplitDivisor         float64       `mapstructure:"split_divisor"`
	MinSplit             int           `mapstructure:"min_split"`
	MaxSplit             int           `mapstructure:"max_split"`
	SplitJitter          float64       `mapstructure:"split_jitter"`
	MaxMatchIterations   int           `mapstructure:"max_match_iterations"`
	Seed                 int64         `mapstructure:"seed"`
	Debug                bool          `mapstructure:"debug"`
}

type SimConfig struct {
	BatchSize       int     `mapstructure:"batch_size"`
	Workers         int     `mapstructure:"workers"`
	InjectLiquidity bool    `mapstructure:"inject_liquidity"`
	CSV             string  `mapstructure:"csv"`
	Rows            int     `mapstructure:"rows"`
	Levels          int     `mapstructure:"levels"`
	BasePrice       float64 `mapstructure:"base_price"`
}

type ServerConfig struct {
	Addr          string        `mapstructure:"addr"`
	AuthToken     string        `mapstructure:"auth_token"`
	AllowedOrigin string        `mapstructure:"allowed_origin"`
	StreamBuffer  int           `mapstructure:"stream_buffer"`
	Bots          bool          `mapstructure:"bots"`
	BotInterval   time.Duration `mapstructure:"bot_interval"`
	LiquidityTick time.Duration `mapstructure:"liquidity_tick"`
	SeedPrice     float64       `mapstructure:"seed_price"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

func setDefaults(v *viper.Viper) {
	d := engine.DefaultConfig()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("engine.transaction_cost_rate", d.TransactionCostRate)
	v.SetDefault("engine.impact_coefficient", d.ImpactCoefficient)
	v.SetDefault("engine.impact_cap", d.ImpactCap)
	v.SetDefault("engine.impact_model", "simple")
	v.SetDefault("engine.permanent_impact_ratio", d.PermanentImpactRatio)
	v.SetDefault("engine.cancel_probability", d.CancelProbability)
	v.SetDefault("engine.latency", d.LatencyFactor)
	v.SetDefault("engine.liquidity_interval", d.LiquidityInterval)
	v.SetDefault("engine.liquidity_spread", d.LiquiditySpread)
	v.SetDefault("engine.liquidity_qty", d.LiquidityQty)
	v.SetDefault("engine.min_order_size", d.MinOrderSize)
	v.SetDefault("engine.min_price_diff", d.MinPriceDiff)
	v.SetDefault("engine.split_divisor", d.SplitDivisor)
	v.SetDefault("engine.min_split", d.MinSplit)
	v.SetDefault("engine.max_split", d.MaxSplit)
	v.SetDefault("engine.split_jitter", d.SplitJitter)
	v.SetDefault("engine.max_match_iterations", d.MaxMatchIterations)
	v.SetDefault("engine.seed", d.Seed)
	v.SetDefault("engine.debug", false)

	v.SetDefault("sim.batch_size", 1000)
	v.SetDefault("sim.workers", 1)
	v.SetDefault("sim.inject_liquidity", true)
	v.SetDefault("sim.csv", "")
	v.SetDefault("sim.rows", 10_000)
	v.SetDefault("sim.levels", 5)
	v.SetDefault("sim.base_price", 100.0)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("server.allowed_origin", "*")
	v.SetDefault("server.stream_buffer", 1024)
	v.SetDefault("server.bots", true)
	v.SetDefault("server.bot_interval", 200*time.Millisecond)
	v.SetDefault("server.liquidity_tick", time.Second)
	v.SetDefault("server.seed_price", 100.0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "lobsim.trades")
	v.SetDefault("kafka.batch_timeout", 10*time.Millisecond)
}

// Load reads defaults, then the YAML file at path when path is non-empty,
// then LOBSIM_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
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

// Validate rejects values the engine or simulator cannot run with.
func (c *Config) Validate() error {
	if _, err := engine.ParseImpactModel(c.Engine.ImpactModel); err != nil {
		return fmt.Errorf("engine.impact_model: %w", err)
	}
	if p := c.Engine.CancelProbability; p < 0 || p > 1 {
		return fmt.Errorf("engine.cancel_probability %v outside [0,1]", p)
	}
	if c.Engine.MinSplit > c.Engine.MaxSplit {
		return fmt.Errorf("engine.min_split %d exceeds max_split %d", c.Engine.MinSplit, c.Engine.MaxSplit)
	}
	if c.Sim.Workers < 0 {
		return fmt.Errorf("sim.workers %d is negative", c.Sim.Workers)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka enabled without brokers or topic")
	}
	return nil
}

// EngineConfig converts the engine section, attaching logger and metrics.
func (c *Config) EngineConfig(logger *zap.Logger, metrics *engine.Metrics) engine.Config {
	e := c.Engine
	model, _ := engine.ParseImpactModel(e.ImpactModel)
	return engine.Config{
		TransactionCostRate:  e.TransactionCostRate,
		ImpactCoefficient:    e.ImpactCoefficient,
		ImpactCap:            e.ImpactCap,
		ImpactModel:          model,
		PermanentImpactRatio: e.PermanentImpactRatio,
		CancelProbability:    e.CancelProbability,
		LatencyFactor:        e.Latency,
		LiquidityInterval:    e.LiquidityInterval,
		LiquiditySpread:      e.LiquiditySpread,
		LiquidityQty:         e.LiquidityQty,
		MinOrderSize:         e.MinOrderSize,
		MinPriceDiff:         e.MinPriceDiff,
		SplitDivisor:         e.SplitDivisor,
		MinSplit:             e.MinSplit,
		MaxSplit:             e.MaxSplit,
		SplitJitter:          e.SplitJitter,
		MaxMatchIterations:   e.MaxMatchIterations,
		Seed:                 e.Seed,
		Debug:                e.Debug,
		Logger:               logger,
		Metrics:              metrics,
	}
}
