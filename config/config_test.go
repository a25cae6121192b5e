package config

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("默认配置应通过校验: %v", err)
	}
}

func TestValidateRejectsInvalidFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"空 Host", func(c *Config) { c.Host = " " }, "Host"},
		{"端口为 0", func(c *Config) { c.Port = 0 }, "Port"},
		{"端口超界", func(c *Config) { c.Port = 70000 }, "Port"},
		{"Workers 为 0", func(c *Config) { c.Workers = 0 }, "Workers"},
		{"Timeout 为 0", func(c *Config) { c.Timeout = 0 }, "Timeout"},
		{"MaxRequests 为负", func(c *Config) { c.MaxRequests = -1 }, "MaxRequests"},
		{"SSL 缺证书", func(c *Config) { c.SSLEnabled = true }, "SSLCertFile"},
		{"SSL 缺私钥", func(c *Config) {
			c.SSLEnabled = true
			c.SSLCertFile = "/tmp/cert.pem"
		}, "SSLKeyFile"},
		{"证书材料未启用 SSL", func(c *Config) { c.SSLCertFile = "/tmp/cert.pem" }, "SSLEnabled"},
		{"限流周期缺失", func(c *Config) { c.RateLimitRequests = 10 }, "RateLimitPeriod"},
		{"空中间件名", func(c *Config) { c.Middlewares = []string{" "} }, "Middlewares"},
		{"重复中间件", func(c *Config) { c.Middlewares = []string{"security", "Security"} }, "Middlewares"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			var fieldErr FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("期望 FieldError，得到 %v", err)
			}
			if fieldErr.Field != tc.field {
				t.Fatalf("期望字段 %s，得到 %s", tc.field, fieldErr.Field)
			}
		})
	}
}

func TestValidateAcceptsSSLWithMaterial(t *testing.T) {
	cfg := Default()
	cfg.SSLEnabled = true
	cfg.SSLCertFile = "/etc/reqcore/cert.pem"
	cfg.SSLKeyFile = "/etc/reqcore/key.pem"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("完整证书材料应通过校验: %v", err)
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1500ms")); err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if d.DurationValue() != 1500*time.Millisecond {
		t.Fatalf("期望 1.5s，得到 %s", d.DurationValue())
	}

	if err := d.UnmarshalText([]byte("30")); err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if d.DurationValue() != 30*time.Second {
		t.Fatalf("纯数字应按秒解释，得到 %s", d.DurationValue())
	}

	if err := d.UnmarshalText([]byte("abc")); err == nil {
		t.Fatalf("非法写法应报错")
	}
}

func TestAddr(t *testing.T) {
	cfg := Default()
	if cfg.Addr() != "localhost:8000" {
		t.Fatalf("地址拼接不符: %s", cfg.Addr())
	}
}
