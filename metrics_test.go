package reqcore

import (
	"sync"
	"testing"
	"time"
)

func TestAggregatorExactUnderConcurrency(t *testing.T) {
	agg := newAggregator()

	const workers = 20
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				agg.begin()
				if j%5 == 0 {
					agg.finish(KindInternal, time.Millisecond)
				} else {
					agg.finish("", time.Millisecond)
				}
			}
		}(i)
	}
	wg.Wait()

	snap := agg.snapshot()
	if snap.RequestsTotal != workers*perWorker {
		t.Fatalf("requestsTotal 应为 %d，得到 %d", workers*perWorker, snap.RequestsTotal)
	}
	if snap.InFlight != 0 {
		t.Fatalf("inFlight 应归零，得到 %d", snap.InFlight)
	}
	wantErrors := uint64(workers * perWorker / 5)
	if snap.ErrorsByKind[KindInternal] != wantErrors {
		t.Fatalf("internal 计数应为 %d，得到 %d", wantErrors, snap.ErrorsByKind[KindInternal])
	}

	var bucketSum uint64
	for _, bucket := range snap.LatencyBuckets {
		bucketSum += bucket.Count
	}
	if bucketSum != snap.RequestsTotal {
		t.Fatalf("直方图计数应与总量一致: %d != %d", bucketSum, snap.RequestsTotal)
	}
}

func TestSnapshotIsDetachedCopy(t *testing.T) {
	agg := newAggregator()
	agg.begin()
	agg.finish(KindTimeout, 10*time.Millisecond)

	snap := agg.snapshot()

	agg.begin()
	agg.finish(KindTimeout, 10*time.Millisecond)

	if snap.RequestsTotal != 1 {
		t.Fatalf("快照不应随后续写入变化，得到 %d", snap.RequestsTotal)
	}
	if snap.ErrorsByKind[KindTimeout] != 1 {
		t.Fatalf("快照错误计数不应随后续写入变化: %v", snap.ErrorsByKind)
	}
}

func TestBucketIndexBoundaries(t *testing.T) {
	if idx := bucketIndex(time.Millisecond); idx != 0 {
		t.Fatalf("1ms 应落在第一桶，得到 %d", idx)
	}
	if idx := bucketIndex(5 * time.Millisecond); idx != 0 {
		t.Fatalf("桶上界应闭合，得到 %d", idx)
	}
	if idx := bucketIndex(time.Minute); idx != len(latencyBounds) {
		t.Fatalf("超限样本应落在溢出桶，得到 %d", idx)
	}
}

func TestMetricsStageTracksEndpoints(t *testing.T) {
	agg := newAggregator()
	stage := NewMetricsStage(agg)

	rc := &RequestContext{Request: &Request{Method: "GET", Path: "/health"}}
	next := func(c *RequestContext) (*Response, error) {
		return TextResponse(StatusOK, "ok"), nil
	}

	for i := 0; i < 3; i++ {
		if _, err := stage.Intercept(rc, next); err != nil {
			t.Fatalf("metrics 阶段不应失败: %v", err)
		}
	}

	snap := agg.snapshot()
	if snap.Endpoints["GET /health"] != 3 {
		t.Fatalf("端点计数应为 3，得到 %v", snap.Endpoints)
	}
	if _, ok := rc.Get("metrics.elapsed").(time.Duration); !ok {
		t.Fatalf("metrics 阶段应写入耗时属性")
	}
}
