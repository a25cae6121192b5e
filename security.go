package reqcore

import (
	"strings"
	"sync"
	"time"

	"github.com/reqcore/reqcore/config"
)

func init() {
	MustRegisterStageFactory("security", func(cfg *config.Config, _ *Server) (Stage, error) {
		return NewSecurityStage(cfg.AllowedOrigins, cfg.RateLimitRequests, cfg.RateLimitPeriod.DurationValue()), nil
	})
}

// SecurityStage 在流水线最外层做准入检查：来源白名单与固定窗口限流。
// 两者任一拒绝都会短路，后续阶段与处理器不再执行。
type SecurityStage struct {
	allowedOrigins map[string]struct{}

	limit  int
	period time.Duration

	mu          sync.Mutex
	windowStart time.Time
	windowCount int
}

// NewSecurityStage 创建 security 中间件。origins 为空表示不做来源校验，
// limit<=0 表示不限流。
func NewSecurityStage(origins []string, limit int, period time.Duration) *SecurityStage {
	s := &SecurityStage{limit: limit, period: period}
	if len(origins) > 0 {
		s.allowedOrigins = make(map[string]struct{}, len(origins))
		for _, origin := range origins {
			normalized := strings.ToLower(strings.TrimSpace(origin))
			if normalized != "" {
				s.allowedOrigins[normalized] = struct{}{}
			}
		}
	}
	return s
}

// Intercept 实现 Stage。
func (s *SecurityStage) Intercept(c *RequestContext, next Next) (*Response, error) {
	if s.allowedOrigins != nil {
		origin := strings.ToLower(strings.TrimSpace(c.Request.Header["Origin"]))
		if _, ok := s.allowedOrigins[origin]; !ok {
			return TextResponse(StatusForbidden, "origin not allowed"), nil
		}
	}

	if s.limit > 0 && !s.allow(time.Now()) {
		return TextResponse(StatusTooManyRequests, "rate limit exceeded"), nil
	}

	return next(c)
}

// allow 执行固定窗口计数，窗口过期即重置。
func (s *SecurityStage) allow(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.windowStart.IsZero() || now.Sub(s.windowStart) >= s.period {
		s.windowStart = now
		s.windowCount = 0
	}
	if s.windowCount >= s.limit {
		return false
	}
	s.windowCount++
	return true
}
