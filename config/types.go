package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// Config 描述服务核心的全部运行参数，由宿主进程在 Start 时传入。
type Config struct {
	Host        string   `mapstructure:"Host"`
	Port        int      `mapstructure:"Port"`
	Workers     int      `mapstructure:"Workers"`
	Timeout     Duration `mapstructure:"Timeout"`
	MaxRequests int      `mapstructure:"MaxRequests"`
	Keepalive   Duration `mapstructure:"Keepalive"`

	SSLEnabled  bool   `mapstructure:"SSLEnabled"`
	SSLCertFile string `mapstructure:"SSLCertFile"`
	SSLKeyFile  string `mapstructure:"SSLKeyFile"`

	// AllowedOrigins/RateLimit* 供 security 中间件使用，空值表示放行。
	AllowedOrigins    []string `mapstructure:"AllowedOrigins"`
	RateLimitRequests int      `mapstructure:"RateLimitRequests"`
	RateLimitPeriod   Duration `mapstructure:"RateLimitPeriod"`

	// Middlewares 按顺序列出在 Start 阶段按名称装配的中间件。
	Middlewares []string `mapstructure:"Middlewares"`

	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
}

// Default 返回一份可直接启动的配置，测试与嵌入式宿主可在其上覆盖字段。
func Default() *Config {
	return &Config{
		Host:        "localhost",
		Port:        8000,
		Workers:     4,
		Timeout:     Duration(30 * time.Second),
		MaxRequests: 1000,
		Keepalive:   Duration(5 * time.Second),
		LogLevel:    "info",
		LogMaxSize:  100,
		LogCompress: true,
	}
}

// Addr 拼接监听地址，供宿主的传输层与日志字段复用。
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
