package config

import (
	"errors"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if strings.TrimSpace(c.Host) == "" {
		return newFieldError("Host", "不能为空")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return newFieldError("Port", "必须在 1-65535")
	}
	if c.Workers <= 0 {
		return newFieldError("Workers", "必须大于 0")
	}
	if c.Timeout.DurationValue() <= 0 {
		return newFieldError("Timeout", "必须大于 0")
	}
	if c.MaxRequests < 0 {
		return newFieldError("MaxRequests", "不能为负数")
	}
	if c.Keepalive.DurationValue() < 0 {
		return newFieldError("Keepalive", "不能为负数")
	}

	if c.SSLEnabled {
		if strings.TrimSpace(c.SSLCertFile) == "" {
			return newFieldError("SSLCertFile", "SSLEnabled 时必须提供证书")
		}
		if strings.TrimSpace(c.SSLKeyFile) == "" {
			return newFieldError("SSLKeyFile", "SSLEnabled 时必须提供私钥")
		}
	}
	if !c.SSLEnabled && (c.SSLCertFile != "" || c.SSLKeyFile != "") {
		return newFieldError("SSLEnabled", "提供证书材料时必须同时开启")
	}

	if c.RateLimitRequests < 0 {
		return newFieldError("RateLimitRequests", "不能为负数")
	}
	if c.RateLimitRequests > 0 && c.RateLimitPeriod.DurationValue() <= 0 {
		return newFieldError("RateLimitPeriod", "启用限流时必须大于 0")
	}

	seen := map[string]struct{}{}
	for _, key := range c.Middlewares {
		normalized := strings.ToLower(strings.TrimSpace(key))
		if normalized == "" {
			return newFieldError("Middlewares", "中间件名称不能为空")
		}
		if _, dup := seen[normalized]; dup {
			return newFieldError("Middlewares", "重复的中间件: "+normalized)
		}
		seen[normalized] = struct{}{}
	}

	return nil
}
