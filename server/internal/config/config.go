package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"kairos-demo/server/internal/playback"

	"gopkg.in/yaml.v3"
)

// Config 全局配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Playback PlaybackConfig `yaml:"playback"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Session  SessionConfig  `yaml:"session"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Logging  LoggingConfig  `yaml:"logging"`
	Paths    PathsConfig    `yaml:"paths"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AllowedOrigins 是 CORS 与 WebSocket 允许的来源
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr 返回监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PlaybackConfig 回放节奏（毫秒级时长用 Go duration 写法，如 1500ms）。
// 未写的字段取默认值；显式写 0 表示跳过这段等待，delay_scale: 0 表示忽略剧本里的 delay。
type PlaybackConfig struct {
	TurnDelay   time.Duration `yaml:"turn_delay"`
	DelayScale  float64       `yaml:"delay_scale"`
	SubmitPause time.Duration `yaml:"submit_pause"`
	Thinking    time.Duration `yaml:"thinking"`
	Cooldown    time.Duration `yaml:"cooldown"`
	ReplyDelay  time.Duration `yaml:"reply_delay"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
	// Watch 为 true 时文件变化会热更新目录
	Watch bool `yaml:"watch"`
}

type SessionConfig struct {
	MaxIdle       time.Duration `yaml:"max_idle"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type GatewayConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	OutboundBuffer int           `yaml:"outbound_buffer"`
	InboundBuffer  int           `yaml:"inbound_buffer"`
}

type LoggingConfig struct {
	// Output: stdout | stderr | 文件路径
	Output string `yaml:"output"`
	Prefix string `yaml:"prefix"`
}

type PathsConfig struct {
	// Prefs 是首次访问标记等偏好的持久化文件
	Prefs string `yaml:"prefs"`
}

// Timing 转换为回放引擎使用的节奏。
func (p PlaybackConfig) Timing() playback.Timing {
	return playback.Timing{
		TurnDelay:   p.TurnDelay,
		DelayScale:  p.DelayScale,
		SubmitPause: p.SubmitPause,
		Thinking:    p.Thinking,
		Cooldown:    p.Cooldown,
		ReplyDelay:  p.ReplyDelay,
	}
}

func defaultPlayback() PlaybackConfig {
	t := playback.DefaultTiming()
	return PlaybackConfig{
		TurnDelay:   t.TurnDelay,
		DelayScale:  t.DelayScale,
		SubmitPause: t.SubmitPause,
		Thinking:    t.Thinking,
		Cooldown:    t.Cooldown,
		ReplyDelay:  t.ReplyDelay,
	}
}

// Default 返回全部使用默认值的配置
func Default() *Config {
	cfg := &Config{Playback: defaultPlayback()}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults 填充零值字段。playback 不在这里处理：它的 0 有含义，默认值在解析前预置。
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}

	if c.Catalog.Path == "" {
		c.Catalog.Path = "server/configs/catalog.yaml"
	}

	if c.Session.MaxIdle == 0 {
		c.Session.MaxIdle = 30 * time.Minute
	}
	if c.Session.SweepInterval == 0 {
		c.Session.SweepInterval = time.Minute
	}

	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = 30 * time.Second
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = 10 * time.Second
	}
	if c.Gateway.OutboundBuffer == 0 {
		c.Gateway.OutboundBuffer = 256
	}
	if c.Gateway.InboundBuffer == 0 {
		c.Gateway.InboundBuffer = 32
	}

	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
	if c.Paths.Prefs == "" {
		c.Paths.Prefs = ".kairos/prefs.yaml"
	}
}

// Load 从文件加载配置，summary 为空时不打印配置摘要
func Load(path string, summary io.Writer) (*Config, error) {
	if summary == nil {
		summary = io.Discard
	}
	fmt.Fprintf(summary, "📋 Loading config from: %s\n", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// 先预置默认值，文件里没写的字段保持不变
	cfg := Config{Playback: defaultPlayback()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.applyEnv(summary); err != nil {
		return nil, err
	}

	fmt.Fprintf(summary, "\n📊 Configuration Summary:\n")
	fmt.Fprintf(summary, "   Server: %s\n", cfg.Server.Addr())
	fmt.Fprintf(summary, "   Catalog: %s (watch=%v)\n", cfg.Catalog.Path, cfg.Catalog.Watch)
	fmt.Fprintf(summary, "   Turn delay: %v (scale %.2f)\n", cfg.Playback.TurnDelay, cfg.Playback.DelayScale)
	fmt.Fprintf(summary, "   Session max idle: %v\n", cfg.Session.MaxIdle)
	fmt.Fprintf(summary, "   Prefs: %s\n\n", cfg.Paths.Prefs)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	fmt.Fprintf(summary, "✅ Config validation passed\n\n")

	return &cfg, nil
}

// applyEnv 用环境变量覆盖配置
func (c *Config) applyEnv(summary io.Writer) error {
	if path := os.Getenv("KAIROS_CATALOG"); path != "" {
		fmt.Fprintf(summary, "📁 Using KAIROS_CATALOG from environment: %s\n", path)
		c.Catalog.Path = path
	}
	if port := os.Getenv("KAIROS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("parse KAIROS_PORT: %w", err)
		}
		fmt.Fprintf(summary, "🔌 Using KAIROS_PORT from environment: %d\n", p)
		c.Server.Port = p
	}
	if prefs := os.Getenv("KAIROS_PREFS"); prefs != "" {
		fmt.Fprintf(summary, "📁 Using KAIROS_PREFS from environment: %s\n", prefs)
		c.Paths.Prefs = prefs
	}
	return nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog path is required")
	}
	if c.Playback.DelayScale < 0 {
		return fmt.Errorf("playback delay_scale must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"turn_delay":   c.Playback.TurnDelay,
		"submit_pause": c.Playback.SubmitPause,
		"thinking":     c.Playback.Thinking,
		"cooldown":     c.Playback.Cooldown,
		"reply_delay":  c.Playback.ReplyDelay,
	} {
		if d < 0 {
			return fmt.Errorf("playback %s must not be negative", name)
		}
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session sweep_interval must be positive")
	}
	return nil
}

// NewLogger 按 logging 配置创建日志器，返回的 closer 用于关闭日志文件
func (c LoggingConfig) NewLogger() (*log.Logger, io.Closer, error) {
	var (
		w      io.Writer
		closer io.Closer = io.NopCloser(nil)
	)
	switch c.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}
	return log.New(w, c.Prefix, log.LstdFlags|log.Lmicroseconds), closer, nil
}
