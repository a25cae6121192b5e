package reqcore

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/reqcore/reqcore/config"
)

// Next 推进流水线到下一阶段。阶段不调用 next 即为短路，
// 下游阶段与处理器都不会执行。
type Next func(*RequestContext) (*Response, error)

// Stage 是中间件的能力接口：进入时可检查/修改请求，调用 next 后可观察
// 最终响应或错误。阶段按注册顺序进入、逆序退出。
type Stage interface {
	Intercept(*RequestContext, Next) (*Response, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc func(*RequestContext, Next) (*Response, error)

// Intercept makes StageFunc satisfy Stage.
func (f StageFunc) Intercept(c *RequestContext, next Next) (*Response, error) {
	return f(c, next)
}

// composeChain 在启动时把阶段列表折叠为单个函数，请求路径上不再重建洋葱。
func composeChain(stages []Stage, terminal Next) Next {
	composed := terminal
	for i := len(stages) - 1; i >= 0; i-- {
		stage := stages[i]
		inner := composed
		composed = func(c *RequestContext) (*Response, error) {
			return stage.Intercept(c, inner)
		}
	}
	return composed
}

// StageFactory 根据配置构造一个中间件实例，供按名称装配使用。
type StageFactory func(cfg *config.Config, server *Server) (Stage, error)

var globalStages = newStageRegistry()

type stageRegistry struct {
	mu        sync.RWMutex
	factories map[string]StageFactory
}

func newStageRegistry() *stageRegistry {
	return &stageRegistry{factories: make(map[string]StageFactory)}
}

// RegisterStageFactory 将工厂加入全局注册表，重复键会返回错误。
func RegisterStageFactory(key string, factory StageFactory) error {
	return globalStages.register(key, factory)
}

// MustRegisterStageFactory 在注册失败时 panic，适合 init() 中调用。
func MustRegisterStageFactory(key string, factory StageFactory) {
	if err := RegisterStageFactory(key, factory); err != nil {
		panic(err)
	}
}

// ResolveStageFactory 返回指定键的工厂。
func ResolveStageFactory(key string) (StageFactory, bool) {
	return globalStages.resolve(key)
}

// StageKeys 返回所有已注册工厂的键值，供诊断与配置校验使用。
func StageKeys() []string {
	return globalStages.keys()
}

func (r *stageRegistry) normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *stageRegistry) register(key string, factory StageFactory) error {
	normalized := r.normalizeKey(key)
	if normalized == "" {
		return fmt.Errorf("stage key is required")
	}
	if factory == nil {
		return fmt.Errorf("stage factory is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[normalized]; exists {
		return fmt.Errorf("stage %s already registered", normalized)
	}
	r.factories[normalized] = factory
	return nil
}

func (r *stageRegistry) resolve(key string) (StageFactory, bool) {
	normalized := r.normalizeKey(key)
	if normalized == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[normalized]
	return factory, ok
}

func (r *stageRegistry) keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.factories))
	for key := range r.factories {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
