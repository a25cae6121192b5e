package reqcore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reqcore/reqcore/config"
	"github.com/reqcore/reqcore/internal/version"
	"github.com/reqcore/reqcore/logging"
)

// ServerState 是服务生命周期的枚举状态。迁移单向推进：
// Created → Starting → Running → Draining → Stopped，Stopped 为终态。
type ServerState int32

const (
	StateCreated ServerState = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

// String 输出日志与健康检查使用的状态名。
func (s ServerState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Health 是健康检查的只读视图。
type Health struct {
	State  string
	Uptime time.Duration
}

// Server 聚合生命周期、路由注册表、中间件链与指标面。
// 宿主进程在启动阶段完成 Register/Use，随后 Start 冻结装配。
type Server struct {
	mu    sync.Mutex
	state atomic.Int32

	registry *Registry
	stages   []Stage
	metrics  *aggregator

	cfg        *config.Config
	logger     *logrus.Logger
	dispatcher *Dispatcher

	startedAt time.Time
	stopCh    chan struct{}
	stoppedCh chan struct{}
	sem       chan struct{}

	// admitMu 保证 Draining 之后不再有新的 wg.Add，使排空等待安全。
	admitMu sync.RWMutex
	wg      sync.WaitGroup
}

// NewServer 创建处于 Created 状态的服务实例。
func NewServer() *Server {
	return &Server{
		registry:  NewRegistry(),
		metrics:   newAggregator(),
		stoppedCh: make(chan struct{}),
	}
}

// State 返回当前生命周期状态，原子读取，永不阻塞。
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

// Register 注册一条路由。仅允许在启动之前调用。
func (s *Server) Register(method, pattern string, handler Handler) error {
	if state := s.State(); state != StateCreated && state != StateStarting {
		return newError(KindInvalidState, "cannot register route in state %s", state)
	}
	return s.registry.Register(method, pattern, handler)
}

// Use 按顺序追加中间件阶段。顺序在注册时确定，服务生命周期内不变。
func (s *Server) Use(stage Stage) error {
	if state := s.State(); state != StateCreated && state != StateStarting {
		return newError(KindInvalidState, "cannot add middleware in state %s", state)
	}
	if stage == nil {
		return newError(KindInvalidState, "stage is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = append(s.stages, stage)
	return nil
}

// Start 将服务从 Created 推进到 Running。配置非法时返回 config 分类错误
// 且状态保持 Created。重复调用（Starting/Running）是无副作用的空操作。
func (s *Server) Start(cfg *config.Config) (ServerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch state := s.State(); state {
	case StateStarting, StateRunning:
		return state, nil
	case StateDraining, StateStopped:
		return state, newError(KindInvalidState, "cannot start server in state %s", state)
	}

	if cfg == nil {
		return StateCreated, newError(KindConfig, "configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return StateCreated, wrapError(KindConfig, err, "invalid configuration")
	}

	logger, err := logging.InitLogger(cfg)
	if err != nil {
		return StateCreated, wrapError(KindConfig, err, "logger setup failed")
	}

	s.state.Store(int32(StateStarting))

	// 配置声明的中间件按名称装配，追加在 Use 注册的阶段之后。
	stages := make([]Stage, 0, len(s.stages)+len(cfg.Middlewares))
	stages = append(stages, s.stages...)
	for _, key := range cfg.Middlewares {
		factory, ok := ResolveStageFactory(key)
		if !ok {
			s.state.Store(int32(StateCreated))
			return StateCreated, newError(KindConfig, "unknown middleware key: %s", key)
		}
		stage, err := factory(cfg, s)
		if err != nil {
			s.state.Store(int32(StateCreated))
			return StateCreated, wrapError(KindConfig, err, "middleware construction failed")
		}
		stages = append(stages, stage)
	}
	s.stages = stages

	s.registry.Freeze()
	s.stopCh = make(chan struct{})
	s.sem = make(chan struct{}, cfg.Workers)

	// 洋葱在此折叠一次，请求路径上直接调用组合函数。
	terminal := func(c *RequestContext) (*Response, error) {
		return c.route.Handler.Serve(c)
	}
	s.dispatcher = &Dispatcher{
		registry: s.registry,
		composed: composeChain(stages, terminal),
		timeout:  cfg.Timeout.DurationValue(),
		metrics:  s.metrics,
		logger:   logger,
		stopCh:   s.stopCh,
	}

	s.cfg = cfg
	s.logger = logger
	s.startedAt = time.Now()
	s.state.Store(int32(StateRunning))

	fields := logging.LifecycleFields("startup", StateRunning.String())
	fields["addr"] = cfg.Addr()
	fields["workers"] = cfg.Workers
	fields["routes"] = s.registry.Len()
	fields["middlewares"] = len(stages)
	fields["ssl"] = cfg.SSLEnabled
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("服务进入运行状态")

	return StateRunning, nil
}

// Stop 将服务排空并停止。Draining 期间拒绝新准入，在途请求最多等待
// timeout；超时后强制放弃，未完成的请求按 shutdown 分类计入指标。
// 重复调用幂等；对 Created 状态的服务是直接落到 Stopped 的空操作。
func (s *Server) Stop(timeout time.Duration) (ServerState, error) {
	s.mu.Lock()

	switch state := s.State(); state {
	case StateStopped:
		s.mu.Unlock()
		return StateStopped, nil
	case StateCreated:
		s.state.Store(int32(StateStopped))
		close(s.stoppedCh)
		s.mu.Unlock()
		return StateStopped, nil
	case StateDraining:
		// 另一个 Stop 正在排空，等待其完成以保证幂等语义。
		s.mu.Unlock()
		<-s.stoppedCh
		return StateStopped, nil
	}

	s.admitMu.Lock()
	s.state.Store(int32(StateDraining))
	s.admitMu.Unlock()
	logger := s.logger
	s.mu.Unlock()

	if logger != nil {
		logger.WithFields(logging.LifecycleFields("shutdown", StateDraining.String())).Info("开始排空在途请求")
	}

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	forced := false
	if timeout > 0 {
		select {
		case <-drained:
		case <-time.After(timeout):
			// 强制放弃：在途派发收到 stop 信号后立即返回 shutdown 响应。
			forced = true
			close(s.stopCh)
			<-drained
		}
	} else {
		<-drained
	}

	s.mu.Lock()
	if !forced {
		close(s.stopCh)
	}
	s.state.Store(int32(StateStopped))
	close(s.stoppedCh)
	s.mu.Unlock()

	if logger != nil {
		fields := logging.LifecycleFields("shutdown", StateStopped.String())
		fields["forced"] = forced
		logger.WithFields(fields).Info("服务已停止")
	}
	return StateStopped, nil
}

// Status 返回当前状态与运行时长，永不阻塞。
func (s *Server) Status() (ServerState, time.Duration) {
	state := s.State()
	if state < StateRunning {
		return state, 0
	}
	return state, time.Since(s.startedAt)
}

// Health 输出健康检查视图，O(1) 无锁读取。
func (s *Server) Health() Health {
	state, uptime := s.Status()
	return Health{State: state.String(), Uptime: uptime}
}

// Metrics 返回聚合计数的快照副本。
func (s *Server) Metrics() MetricsSnapshot {
	return s.metrics.snapshot()
}

// Dispatch 是宿主传输层的请求入口。非 Running 状态一律拒绝准入，
// worker 信号量约束并发派发数。
func (s *Server) Dispatch(ctx context.Context, req *Request) *Response {
	s.admitMu.RLock()
	if s.State() != StateRunning {
		s.admitMu.RUnlock()
		resp, _ := renderError(newError(KindShutdown, "server is not running"), "")
		return resp
	}
	s.wg.Add(1)
	s.admitMu.RUnlock()
	defer s.wg.Done()

	select {
	case s.sem <- struct{}{}:
	case <-s.stopCh:
		resp, _ := renderError(newError(KindShutdown, "request abandoned during shutdown"), "")
		return resp
	}
	defer func() { <-s.sem }()

	return s.dispatcher.Dispatch(ctx, req)
}
