package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/apk-analysis/frida-enum/internal/console"
	"github.com/apk-analysis/frida-enum/internal/frida"
	"github.com/apk-analysis/frida-enum/internal/retry"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 FRIDA_ENUM_FRIDA_HOST 覆盖 frida.host
const EnvPrefix = "FRIDA_ENUM"

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Console ConsoleConfig `mapstructure:"console"`
	Frida   FridaConfig   `mapstructure:"frida"`
	Dex     DexConfig     `mapstructure:"dex"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// ConsoleConfig 日志参数格式化
type ConsoleConfig struct {
	MaxElements int  `mapstructure:"max_elements"` // 数组最多展示的元素个数
	Deep        bool `mapstructure:"deep"`         // 容器一律按完整 JSON 输出
}

// FridaConfig frida 连接配置
type FridaConfig struct {
	Binary    string        `mapstructure:"binary"`
	Host      string        `mapstructure:"host"`   // 网络模式地址，如 "192.168.2.34:27042"
	Device    string        `mapstructure:"device"` // ADB 设备序列号
	USB       bool          `mapstructure:"usb"`
	Target    string        `mapstructure:"target"` // 包名
	Spawn     bool          `mapstructure:"spawn"`
	Timeout   time.Duration `mapstructure:"timeout"`
	ScriptDir string        `mapstructure:"script_dir"`
	Inbound   bool          `mapstructure:"inbound"` // 网络跟踪时同时 hook recv/recvfrom

	MaxCapture int `mapstructure:"max_capture"` // 网络跟踪时每个缓冲区最多抓取的字节数
}

// DexConfig 离线 DEX 解析
type DexConfig struct {
	Concurrency int `mapstructure:"concurrency"` // APK 内多个 dex 并行解析的数量
}

// RetryConfig 启动 frida 的重试配置
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Strategy        string        `mapstructure:"strategy"` // fixed, linear, exponential
}

// MetricsConfig 指标导出
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // 非空时退出前写入 node_exporter textfile 格式
}

// SetDefaults 写入默认值
// AutomaticEnv 只对已知的 key 生效，所以每个 key 都要有默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("console.max_elements", console.DefaultMaxElements)
	v.SetDefault("console.deep", false)

	v.SetDefault("frida.binary", frida.DefaultBinary)
	v.SetDefault("frida.host", "")
	v.SetDefault("frida.device", "")
	v.SetDefault("frida.usb", true)
	v.SetDefault("frida.target", "")
	v.SetDefault("frida.spawn", false)
	v.SetDefault("frida.timeout", 60*time.Second)
	v.SetDefault("frida.script_dir", "")
	v.SetDefault("frida.inbound", false)
	v.SetDefault("frida.max_capture", frida.DefaultMaxCapture)

	v.SetDefault("dex.concurrency", 4)

	def := retry.DefaultConfig()
	v.SetDefault("retry.max_attempts", def.MaxAttempts)
	v.SetDefault("retry.initial_interval", def.InitialInterval)
	v.SetDefault("retry.max_interval", def.MaxInterval)
	v.SetDefault("retry.strategy", string(def.Strategy))

	v.SetDefault("metrics.textfile", "")
}

// Load 读取配置文件，path 为空时只使用默认值和环境变量
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith 使用调用方的 viper 实例（命令行参数已绑定在上面）
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	// 环境变量覆盖（支持嵌套配置）
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 检查枚举类取值
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log.format %q (json or text)", c.Log.Format)
	}

	switch retry.Strategy(c.Retry.Strategy) {
	case retry.StrategyFixed, retry.StrategyLinear, retry.StrategyExponential:
	default:
		return fmt.Errorf("invalid retry.strategy %q (fixed, linear or exponential)", c.Retry.Strategy)
	}

	if c.Console.MaxElements < 0 {
		return fmt.Errorf("invalid console.max_elements %d", c.Console.MaxElements)
	}
	return nil
}

// Options 转换为格式化参数
func (c ConsoleConfig) Options() console.Options {
	return console.Options{
		MaxElements: c.MaxElements,
		Deep:        c.Deep,
	}
}

// Options 转换为 frida 客户端参数
func (c FridaConfig) Options() frida.Options {
	return frida.Options{
		Binary:    c.Binary,
		Host:      c.Host,
		Device:    c.Device,
		USB:       c.USB,
		Target:    c.Target,
		Spawn:     c.Spawn,
		Timeout:   c.Timeout,
		ScriptDir: c.ScriptDir,
	}
}

// Config 转换为重试配置
func (c RetryConfig) Config(logger *logrus.Logger) *retry.Config {
	return &retry.Config{
		MaxAttempts:     c.MaxAttempts,
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
		Strategy:        retry.Strategy(c.Strategy),
		Logger:          logger,
	}
}
