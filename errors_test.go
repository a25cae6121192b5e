package reqcore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/reqcore/reqcore/config"
)

func TestClassifyIsTotal(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{newError(KindRouteNotFound, "x"), KindRouteNotFound},
		{fmt.Errorf("wrapped: %w", newError(KindMethodNotAllowed, "x")), KindMethodNotAllowed},
		{config.FieldError{Field: "Port", Reason: "bad"}, KindConfig},
		{context.DeadlineExceeded, KindTimeout},
		{context.Canceled, KindShutdown},
		{errors.New("anything else"), KindInternal},
	}

	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %s，期望 %s", tc.err, got, tc.want)
		}
	}

	if Classify(nil) != "" {
		t.Fatalf("nil 不应有分类")
	}
}

func TestRenderErrorEnvelopeShape(t *testing.T) {
	resp, kind := renderError(newError(KindTimeout, "deadline hit"), "req-7")
	if kind != KindTimeout {
		t.Fatalf("期望 timeout，得到 %s", kind)
	}
	if resp.Status != StatusRequestTimeout {
		t.Fatalf("期望 408，得到 %d", resp.Status)
	}
	if resp.Header["Content-Type"] != "application/json" {
		t.Fatalf("信封应为 JSON 响应")
	}

	envelope := decodeEnvelope(t, resp)
	if envelope.Kind != KindTimeout || envelope.RequestID != "req-7" {
		t.Fatalf("信封字段不符: %+v", envelope)
	}
	if envelope.Timestamp.IsZero() {
		t.Fatalf("信封应携带时间戳")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := wrapError(KindConfig, cause, "invalid configuration")
	if !errors.Is(err, cause) {
		t.Fatalf("包装错误应可解包到原因")
	}
	if Classify(err) != KindConfig {
		t.Fatalf("包装错误应保持分类，得到 %s", Classify(err))
	}
}
