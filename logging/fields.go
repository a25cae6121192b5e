package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// LifecycleFields 构建 action + 状态字段，供启动/停机日志复用。
func LifecycleFields(action, state string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"state":  state,
	}
}

// RequestFields 提供单次请求的结构化字段，供派发完成后的日志复用。
func RequestFields(requestID, method, path string, status int, errorKind string, elapsed time.Duration) logrus.Fields {
	fields := logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"status":     status,
		"elapsed_ms": float64(elapsed) / float64(time.Millisecond),
	}
	if errorKind != "" {
		fields["error_kind"] = errorKind
	}
	return fields
}
