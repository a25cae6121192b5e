package reqcore

import (
	"reflect"
	"testing"
	"time"

	"github.com/reqcore/reqcore/config"
)

// traceStage 记录进入/退出顺序，用于验证洋葱语义。
func traceStage(name string, trace *[]string) Stage {
	return StageFunc(func(c *RequestContext, next Next) (*Response, error) {
		*trace = append(*trace, name+":in")
		resp, err := next(c)
		*trace = append(*trace, name+":out")
		return resp, err
	})
}

func TestComposeChainOnionOrder(t *testing.T) {
	var trace []string
	stages := []Stage{
		traceStage("A", &trace),
		traceStage("B", &trace),
		traceStage("C", &trace),
	}
	terminal := func(c *RequestContext) (*Response, error) {
		trace = append(trace, "handler")
		return TextResponse(StatusOK, "ok"), nil
	}

	resp, err := composeChain(stages, terminal)(&RequestContext{})
	if err != nil {
		t.Fatalf("执行链失败: %v", err)
	}
	if resp.Status != StatusOK {
		t.Fatalf("期望 200，得到 %d", resp.Status)
	}

	want := []string{"A:in", "B:in", "C:in", "handler", "C:out", "B:out", "A:out"}
	if !reflect.DeepEqual(trace, want) {
		t.Fatalf("洋葱顺序不符: %v", trace)
	}
}

func TestComposeChainShortCircuit(t *testing.T) {
	var trace []string
	downstream := 0

	stages := []Stage{
		traceStage("A", &trace),
		StageFunc(func(c *RequestContext, next Next) (*Response, error) {
			// 不调用 next，直接短路。
			return TextResponse(StatusForbidden, "denied"), nil
		}),
		StageFunc(func(c *RequestContext, next Next) (*Response, error) {
			downstream++
			return next(c)
		}),
	}
	terminal := func(c *RequestContext) (*Response, error) {
		downstream++
		return TextResponse(StatusOK, "ok"), nil
	}

	resp, err := composeChain(stages, terminal)(&RequestContext{})
	if err != nil {
		t.Fatalf("执行链失败: %v", err)
	}
	if resp.Status != StatusForbidden {
		t.Fatalf("短路响应应为 403，得到 %d", resp.Status)
	}
	if downstream != 0 {
		t.Fatalf("短路后下游不应执行，计数 %d", downstream)
	}

	// 已进入的外层阶段仍然完成退出段。
	want := []string{"A:in", "A:out"}
	if !reflect.DeepEqual(trace, want) {
		t.Fatalf("外层阶段应完整退出: %v", trace)
	}
}

func TestStageRegistryRejectsDuplicateKey(t *testing.T) {
	noop := StageFunc(func(c *RequestContext, next Next) (*Response, error) { return next(c) })
	factory := func(_ *config.Config, _ *Server) (Stage, error) { return noop, nil }

	if err := RegisterStageFactory("dup-probe", factory); err != nil {
		t.Fatalf("首次注册失败: %v", err)
	}
	if err := RegisterStageFactory("dup-probe", factory); err == nil {
		t.Fatalf("重复键应返回错误")
	}
}

func TestBuiltinStageKeysPresent(t *testing.T) {
	keys := StageKeys()
	found := map[string]bool{}
	for _, key := range keys {
		found[key] = true
	}
	if !found["security"] || !found["metrics"] {
		t.Fatalf("内建中间件应已注册: %v", keys)
	}
}

func TestSecurityStageRejectsUnknownOrigin(t *testing.T) {
	stage := NewSecurityStage([]string{"http://localhost:3000"}, 0, 0)
	next := func(c *RequestContext) (*Response, error) {
		return TextResponse(StatusOK, "ok"), nil
	}

	rc := &RequestContext{Request: &Request{Header: map[string]string{"Origin": "http://evil.example"}}}
	resp, err := stage.Intercept(rc, next)
	if err != nil {
		t.Fatalf("security 阶段不应返回错误: %v", err)
	}
	if resp.Status != StatusForbidden {
		t.Fatalf("未知来源应被拒绝，得到 %d", resp.Status)
	}

	rc = &RequestContext{Request: &Request{Header: map[string]string{"Origin": "http://localhost:3000"}}}
	resp, err = stage.Intercept(rc, next)
	if err != nil {
		t.Fatalf("security 阶段不应返回错误: %v", err)
	}
	if resp.Status != StatusOK {
		t.Fatalf("白名单来源应放行，得到 %d", resp.Status)
	}
}

func TestSecurityStageRateLimitWindow(t *testing.T) {
	stage := NewSecurityStage(nil, 2, time.Hour)
	next := func(c *RequestContext) (*Response, error) {
		return TextResponse(StatusOK, "ok"), nil
	}
	rc := &RequestContext{Request: &Request{Header: map[string]string{}}}

	for i := 0; i < 2; i++ {
		resp, _ := stage.Intercept(rc, next)
		if resp.Status != StatusOK {
			t.Fatalf("窗口内第 %d 次请求应放行，得到 %d", i+1, resp.Status)
		}
	}
	resp, _ := stage.Intercept(rc, next)
	if resp.Status != StatusTooManyRequests {
		t.Fatalf("超限请求应得到 429，得到 %d", resp.Status)
	}

	// 窗口过期后计数重置。
	stage.mu.Lock()
	stage.windowStart = time.Now().Add(-2 * time.Hour)
	stage.mu.Unlock()
	resp, _ = stage.Intercept(rc, next)
	if resp.Status != StatusOK {
		t.Fatalf("新窗口应重新放行，得到 %d", resp.Status)
	}
}
