package reqcore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/reqcore/reqcore/config"
)

// ErrorKind 是核心错误分类的封闭集合，Error Mapper 依据它渲染响应。
type ErrorKind string

const (
	KindConfig           ErrorKind = "config"
	KindDuplicateRoute   ErrorKind = "duplicate_route"
	KindInvalidPattern   ErrorKind = "invalid_pattern"
	KindRouteNotFound    ErrorKind = "route_not_found"
	KindMethodNotAllowed ErrorKind = "method_not_allowed"
	KindTimeout          ErrorKind = "timeout"
	KindShutdown         ErrorKind = "shutdown"
	KindInvalidState     ErrorKind = "invalid_state"
	KindInternal         ErrorKind = "internal"
)

// Error 携带分类信息的核心错误类型。处理器与中间件返回普通 error 即可，
// 只有核心代码构造 *Error；未分类的错误最终一律归入 KindInternal。
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// ErrorEnvelope 是所有失败响应共享的稳定结构。
type ErrorEnvelope struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Classify 将任意错误归入封闭分类。映射必须是全函数：
// 任何派发阶段的失败都有确定的分类，未识别者归为 internal。
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Kind
	}

	var fieldErr config.FieldError
	if errors.As(err, &fieldErr) {
		return KindConfig
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindShutdown
	}

	return KindInternal
}

// statusForKind 输出各分类对应的响应状态码。
func statusForKind(kind ErrorKind) int {
	switch kind {
	case KindRouteNotFound:
		return StatusNotFound
	case KindMethodNotAllowed:
		return StatusMethodNotAllowed
	case KindTimeout:
		return StatusRequestTimeout
	case KindShutdown, KindInvalidState:
		return StatusUnavailable
	default:
		return StatusInternalError
	}
}

// clientMessage 输出面向调用方的安全文案。internal 永远不透出内部细节，
// 原始错误仅进入日志与指标通道。
func clientMessage(kind ErrorKind, err error) string {
	switch kind {
	case KindRouteNotFound:
		return "route not found"
	case KindMethodNotAllowed:
		return "method not allowed"
	case KindTimeout:
		return "request timed out"
	case KindShutdown:
		return "server is not accepting requests"
	case KindInternal:
		return "internal server error"
	default:
		var coreErr *Error
		if errors.As(err, &coreErr) {
			return coreErr.Message
		}
		return string(kind)
	}
}

// renderError 将失败渲染成带 ErrorEnvelope 的响应，供 Dispatcher 统一调用。
func renderError(err error, requestID string) (*Response, ErrorKind) {
	kind := Classify(err)
	envelope := ErrorEnvelope{
		Kind:      kind,
		Message:   clientMessage(kind, err),
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	}

	body, marshalErr := json.Marshal(envelope)
	if marshalErr != nil {
		// 信封本身无法序列化时退化为最小文本，分类保持不变。
		body = []byte(`{"kind":"internal","message":"internal server error"}`)
	}

	resp := &Response{
		Status: statusForKind(kind),
		Header: map[string]string{"Content-Type": "application/json"},
		Body:   body,
	}
	return resp, kind
}
