package reqcore

import (
	"context"
	"time"
)

// 核心工作在传输层之上，状态码仅作为响应语义的约定值，不绑定具体 HTTP 版本。
const (
	StatusOK               = 200
	StatusNotFound         = 404
	StatusMethodNotAllowed = 405
	StatusForbidden        = 403
	StatusTooManyRequests  = 429
	StatusRequestTimeout   = 408
	StatusUnavailable      = 503
	StatusInternalError    = 500
)

// Request 是已解析的入站请求抽象，由宿主的传输层构造。
type Request struct {
	Method string
	Path   string
	Header map[string]string
	Body   []byte
}

// Response 是核心产出的响应抽象，由宿主的传输层编码回写。
type Response struct {
	Status int
	Header map[string]string
	Body   []byte
}

// TextResponse 构造纯文本响应，处理器的便捷入口。
func TextResponse(status int, body string) *Response {
	return &Response{
		Status: status,
		Header: map[string]string{"Content-Type": "text/plain"},
		Body:   []byte(body),
	}
}

// RequestContext 承载单次请求的全部可变状态，生命周期由 Dispatcher 独占，
// 请求结束即丢弃，绝不跨请求共享。
type RequestContext struct {
	ctx context.Context

	// ID 在准入时生成，服务运行期内唯一。
	ID        string
	Request   *Request
	Params    map[string]string
	StartedAt time.Time

	// attrs 供中间件向后续阶段传递数据。
	attrs map[string]interface{}

	route *Route
}

// Context 返回携带请求期限的 context，处理器在等待下游 IO 时应当传递它。
func (c *RequestContext) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Param 读取路由匹配提取的路径参数。
func (c *RequestContext) Param(key string) (string, bool) {
	value, ok := c.Params[key]
	return value, ok
}

// Set 写入请求级属性，供中间件向内层阶段传值。
func (c *RequestContext) Set(key string, value interface{}) {
	if c.attrs == nil {
		c.attrs = make(map[string]interface{}, 4)
	}
	c.attrs[key] = value
}

// Get 读取请求级属性，不存在时返回 nil。
func (c *RequestContext) Get(key string) interface{} {
	if c.attrs == nil {
		return nil
	}
	return c.attrs[key]
}

// Handler 是路由终点的能力接口。实现方返回响应或错误，
// 错误由核心统一分类渲染，处理器不自行构造错误信封。
type Handler interface {
	Serve(*RequestContext) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(*RequestContext) (*Response, error)

// Serve makes HandlerFunc satisfy Handler.
func (f HandlerFunc) Serve(c *RequestContext) (*Response, error) {
	return f(c)
}
