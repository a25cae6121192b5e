package reqcore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/reqcore/reqcore/config"
)

func init() {
	MustRegisterStageFactory("metrics", func(_ *config.Config, server *Server) (Stage, error) {
		return NewMetricsStage(server.metrics), nil
	})
}

// latencyBounds 是延迟直方图的桶上界，最后一桶收纳全部超限样本。
var latencyBounds = []time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	2500 * time.Millisecond,
	5 * time.Second,
}

// LatencyBucket 是快照中的单个直方图桶。
type LatencyBucket struct {
	UpperBound time.Duration
	Count      uint64
}

// MetricsSnapshot 是聚合计数的只读副本，读取方拿到的是拷贝而非活引用。
type MetricsSnapshot struct {
	RequestsTotal  uint64
	InFlight       int64
	ErrorsByKind   map[ErrorKind]uint64
	LatencyBuckets []LatencyBucket
	Endpoints      map[string]uint64
}

// aggregator 是唯一的热点共享可变状态。inFlight 走原子操作；
// 总量、错误分类与直方图在同一把锁内更新，快照不会看到桶与计数不一致。
type aggregator struct {
	inFlight atomic.Int64

	mu            sync.Mutex
	requestsTotal uint64
	errorsByKind  map[ErrorKind]uint64
	buckets       []uint64
	endpoints     map[string]uint64
}

func newAggregator() *aggregator {
	return &aggregator{
		errorsByKind: make(map[ErrorKind]uint64),
		buckets:      make([]uint64, len(latencyBounds)+1),
		endpoints:    make(map[string]uint64),
	}
}

// begin 在准入成功后调用。
func (a *aggregator) begin() {
	a.inFlight.Add(1)
}

// finish 是派发完成后的统一入口，成功与失败都会经过这里。
func (a *aggregator) finish(kind ErrorKind, elapsed time.Duration) {
	a.inFlight.Add(-1)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.requestsTotal++
	if kind != "" {
		a.errorsByKind[kind]++
	}
	a.buckets[bucketIndex(elapsed)]++
}

// trackEndpoint 记录单个端点的请求量，由 metrics 中间件调用。
func (a *aggregator) trackEndpoint(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.endpoints[key]++
}

func bucketIndex(elapsed time.Duration) int {
	for i, bound := range latencyBounds {
		if elapsed <= bound {
			return i
		}
	}
	return len(latencyBounds)
}

// snapshot 在单个临界区内完成拷贝，不阻塞写入方超过一次 map 复制的开销。
func (a *aggregator) snapshot() MetricsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := MetricsSnapshot{
		RequestsTotal:  a.requestsTotal,
		InFlight:       a.inFlight.Load(),
		ErrorsByKind:   make(map[ErrorKind]uint64, len(a.errorsByKind)),
		LatencyBuckets: make([]LatencyBucket, len(a.buckets)),
	}
	for kind, count := range a.errorsByKind {
		snap.ErrorsByKind[kind] = count
	}
	for i, count := range a.buckets {
		bound := time.Duration(-1)
		if i < len(latencyBounds) {
			bound = latencyBounds[i]
		}
		snap.LatencyBuckets[i] = LatencyBucket{UpperBound: bound, Count: count}
	}
	if len(a.endpoints) > 0 {
		snap.Endpoints = make(map[string]uint64, len(a.endpoints))
		for key, count := range a.endpoints {
			snap.Endpoints[key] = count
		}
	}
	return snap
}

// MetricsStage 按端点记录请求量与耗时属性，计数落在服务器的聚合器上。
type MetricsStage struct {
	agg *aggregator
}

// NewMetricsStage 创建 metrics 中间件，聚合器由服务器持有。
func NewMetricsStage(agg *aggregator) *MetricsStage {
	return &MetricsStage{agg: agg}
}

// Intercept 实现 Stage。耗时写入请求属性，端点计数进入聚合器。
func (m *MetricsStage) Intercept(c *RequestContext, next Next) (*Response, error) {
	start := time.Now()
	resp, err := next(c)
	elapsed := time.Since(start)

	c.Set("metrics.elapsed", elapsed)
	if m.agg != nil {
		m.agg.trackEndpoint(c.Request.Method + " " + c.Request.Path)
	}
	return resp, err
}
