package reqcore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/reqcore/reqcore/logging"
)

// Dispatcher 执行单次请求：构建 RequestContext、解析路由、运行组合后的
// 流水线，并保证任何失败都被捕获并渲染，绝不向外抛出原始错误。
// 多个调用方并发进入是安全的，派发过程中不持有任何服务级锁。
type Dispatcher struct {
	registry *Registry
	composed Next
	timeout  time.Duration
	metrics  *aggregator
	logger   *logrus.Logger
	stopCh   <-chan struct{}
}

type dispatchResult struct {
	resp *Response
	err  error
}

// Dispatch 派发一次请求并返回最终响应。失败已经由错误映射渲染成响应。
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	rc := &RequestContext{
		ID:        uuid.NewString(),
		Request:   req,
		StartedAt: time.Now(),
	}
	d.metrics.begin()

	route, params, err := d.registry.Resolve(req.Method, req.Path)
	if err != nil {
		return d.fail(rc, err)
	}
	rc.route = route
	rc.Params = params

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	rc.ctx = runCtx

	done := make(chan dispatchResult, 1)
	go d.run(rc, done)

	select {
	case res := <-done:
		if res.err != nil {
			return d.fail(rc, res.err)
		}
		if res.resp == nil {
			return d.fail(rc, newError(KindInternal, "pipeline produced no response"))
		}
		return d.complete(rc, res.resp)
	case <-runCtx.Done():
		// 请求超过期限即被放弃，流水线 goroutine 自行结束。
		return d.fail(rc, runCtx.Err())
	case <-d.stopCh:
		return d.fail(rc, newError(KindShutdown, "request abandoned during shutdown"))
	}
}

// run 在独立 goroutine 中执行流水线，panic 在此处被隔离成普通错误。
func (d *Dispatcher) run(rc *RequestContext, done chan<- dispatchResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			done <- dispatchResult{err: newError(KindInternal, "pipeline panic: %v", recovered)}
		}
	}()
	resp, err := d.composed(rc)
	done <- dispatchResult{resp: resp, err: err}
}

func (d *Dispatcher) complete(rc *RequestContext, resp *Response) *Response {
	elapsed := time.Since(rc.StartedAt)
	d.metrics.finish("", elapsed)

	if d.logger != nil {
		d.logger.WithFields(
			logging.RequestFields(rc.ID, rc.Request.Method, rc.Request.Path, resp.Status, "", elapsed),
		).Debug("请求完成")
	}
	return resp
}

// fail 是派发失败的唯一出口：渲染信封、记指标、打日志。
// 未识别的错误对外只呈现 internal 文案，原始错误保留在日志通道。
func (d *Dispatcher) fail(rc *RequestContext, err error) *Response {
	resp, kind := renderError(err, rc.ID)
	elapsed := time.Since(rc.StartedAt)
	d.metrics.finish(kind, elapsed)

	if d.logger != nil {
		fields := logging.RequestFields(rc.ID, rc.Request.Method, rc.Request.Path, resp.Status, string(kind), elapsed)
		entry := d.logger.WithFields(fields).WithError(err)
		if kind == KindInternal {
			entry.Error("请求失败")
		} else {
			entry.Warn("请求失败")
		}
	}
	return resp
}
