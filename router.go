package reqcore

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

type segmentKind int

const (
	segmentLiteral segmentKind = iota
	segmentNamed
	segmentWildcard
)

// segment 是路径模式编译后的最小单元：字面量、命名参数或通配符。
// 模式在注册时编译一次，匹配阶段不再做字符串解析。
type segment struct {
	kind  segmentKind
	value string
}

// Route 是不可变的路由三元组，注册后不再修改。
type Route struct {
	Method  string
	Pattern string
	Handler Handler

	segments []segment
}

// node 是按段组织的匹配树节点。同一位置的优先级固定为
// 字面量 > 命名参数 > 通配符。
type node struct {
	literals map[string]*node
	named    *node
	namedKey string
	wildcard *Route
	route    *Route
}

func newNode() *node {
	return &node{literals: make(map[string]*node)}
}

// Registry 提供 (method, pattern) 到 Handler 的注册与解析能力。
// 启动前只追加，冻结后只读，解析路径无需加锁。
type Registry struct {
	mu       sync.Mutex
	frozen   atomic.Bool
	trees    map[string]*node
	patterns map[string]struct{}
	routes   []*Route
}

// NewRegistry 创建空注册表。调用方应在启动阶段注册完毕后冻结。
func NewRegistry() *Registry {
	return &Registry{
		trees:    make(map[string]*node),
		patterns: make(map[string]struct{}),
	}
}

// Register 注册一条路由。重复的 (method, pattern) 或非法模式会返回分类错误。
func (r *Registry) Register(method, pattern string, handler Handler) error {
	if r.frozen.Load() {
		return newError(KindInvalidState, "registry is frozen, register before start")
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return newError(KindInvalidPattern, "method is required")
	}
	if handler == nil {
		return newError(KindInvalidPattern, "handler is required")
	}

	segments, err := compilePattern(pattern)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := method + " " + pattern
	if _, exists := r.patterns[key]; exists {
		return newError(KindDuplicateRoute, "route already registered: %s %s", method, pattern)
	}

	route := &Route{Method: method, Pattern: pattern, Handler: handler, segments: segments}
	if err := r.insert(method, route); err != nil {
		return err
	}

	r.patterns[key] = struct{}{}
	r.routes = append(r.routes, route)
	return nil
}

// Freeze 将注册表置为只读。服务进入 Running 前调用一次。
func (r *Registry) Freeze() {
	r.frozen.Store(true)
}

// Len 返回已注册路由数量。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routes)
}

// List 返回按注册顺序排列的路由摘要，用于调试或状态报告输出。
func (r *Registry) List() []Route {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Route, len(r.routes))
	for i, route := range r.routes {
		result[i] = *route
	}
	return result
}

// Resolve 解析 (method, path)。路径能匹配但方法不符时返回 method_not_allowed，
// 与完全未命中的 route_not_found 区分开。
func (r *Registry) Resolve(method, path string) (*Route, map[string]string, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	parts := splitPath(path)

	if tree, ok := r.trees[method]; ok {
		params := make(map[string]string)
		if route := matchNode(tree, parts, 0, params); route != nil {
			return route, params, nil
		}
	}

	// 其它方法能命中同一路径时，归类为方法不允许。
	for m, tree := range r.trees {
		if m == method {
			continue
		}
		scratch := make(map[string]string)
		if matchNode(tree, parts, 0, scratch) != nil {
			return nil, nil, newError(KindMethodNotAllowed, "method %s not allowed for %s", method, path)
		}
	}

	return nil, nil, newError(KindRouteNotFound, "no route for %s %s", method, path)
}

func (r *Registry) insert(method string, route *Route) error {
	tree, ok := r.trees[method]
	if !ok {
		tree = newNode()
		r.trees[method] = tree
	}

	cur := tree
	for _, seg := range route.segments {
		switch seg.kind {
		case segmentLiteral:
			child, ok := cur.literals[seg.value]
			if !ok {
				child = newNode()
				cur.literals[seg.value] = child
			}
			cur = child
		case segmentNamed:
			if cur.named == nil {
				cur.named = newNode()
				cur.namedKey = seg.value
			} else if cur.namedKey != seg.value {
				return newError(KindInvalidPattern,
					"conflicting parameter name at same position: {%s} vs {%s}", cur.namedKey, seg.value)
			}
			cur = cur.named
		case segmentWildcard:
			cur.wildcard = route
			return nil
		}
	}

	cur.route = route
	return nil
}

// matchNode 递归匹配剩余路径段，必要时回溯以保证优先级语义。
// 成功时 params 已填充；失败路径上写入的参数会被回滚。
func matchNode(n *node, parts []string, idx int, params map[string]string) *Route {
	if idx == len(parts) {
		return n.route
	}

	part := parts[idx]

	if child, ok := n.literals[part]; ok {
		if route := matchNode(child, parts, idx+1, params); route != nil {
			return route
		}
	}

	if n.named != nil {
		params[n.namedKey] = part
		if route := matchNode(n.named, parts, idx+1, params); route != nil {
			return route
		}
		delete(params, n.namedKey)
	}

	if n.wildcard != nil {
		params["*"] = strings.Join(parts[idx:], "/")
		return n.wildcard
	}

	return nil
}

// compilePattern 将路径模式编译为段序列，拒绝各类畸形写法。
func compilePattern(pattern string) ([]segment, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, newError(KindInvalidPattern, "pattern must start with /: %q", pattern)
	}
	if pattern == "/" {
		return nil, nil
	}

	parts := strings.Split(strings.TrimPrefix(pattern, "/"), "/")
	segments := make([]segment, 0, len(parts))
	seenNames := make(map[string]struct{})

	for i, part := range parts {
		switch {
		case part == "":
			return nil, newError(KindInvalidPattern, "empty segment in pattern: %q", pattern)
		case part == "*":
			if i != len(parts)-1 {
				return nil, newError(KindInvalidPattern, "wildcard must be the final segment: %q", pattern)
			}
			segments = append(segments, segment{kind: segmentWildcard})
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			name := part[1 : len(part)-1]
			if name == "" || strings.ContainsAny(name, "{}") {
				return nil, newError(KindInvalidPattern, "invalid parameter segment %q in %q", part, pattern)
			}
			if _, dup := seenNames[name]; dup {
				return nil, newError(KindInvalidPattern, "duplicate parameter name %q in %q", name, pattern)
			}
			seenNames[name] = struct{}{}
			segments = append(segments, segment{kind: segmentNamed, value: name})
		case strings.ContainsAny(part, "{}*"):
			return nil, newError(KindInvalidPattern, "invalid segment %q in %q", part, pattern)
		default:
			segments = append(segments, segment{kind: segmentLiteral, value: part})
		}
	}

	return segments, nil
}

// splitPath 将请求路径拆分为段，根路径返回空切片。
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// sortedMethods 输出排序后的方法列表，仅用于诊断输出的稳定性。
func (r *Registry) sortedMethods() []string {
	methods := make([]string, 0, len(r.trees))
	for m := range r.trees {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}
