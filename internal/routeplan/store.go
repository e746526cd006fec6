// 包 routeplan：路线存储，持有权威航点列表、规划结果、人工校准、完成状态，并编排解析与规划
package routeplan

import (
	"context"
	"sync"
	"time"

	"route-api/internal/coord"
	"route-api/internal/geocache"
	"route-api/internal/kv"
	"route-api/internal/logger"
	"route-api/internal/model"
	"route-api/internal/resolver"
)

// RouteOptimizer：路线规划端口，返回的折线为 GCJ-02
type RouteOptimizer interface {
	Optimize(ctx context.Context, waypoints []model.Waypoint, mode model.TransportMode) (model.OptimizedRoute, error)
}

type EventKind string

const (
	EventWaypoints   EventKind = "waypoints"
	EventRoute       EventKind = "route"
	EventAdjustments EventKind = "adjustments"
	EventCompletion  EventKind = "completion"
	EventDeviation   EventKind = "deviation"
	EventFocus       EventKind = "focus"
	EventAdvisory    EventKind = "advisory"
	EventError       EventKind = "error"
)

// Event：状态变化通知，订阅方据此调用 Snapshot 或具体查询
type Event struct {
	Kind EventKind
}

type Options struct {
	TravelMode    model.TravelMode
	TransportMode model.TransportMode
	Resolver      resolver.Options
	GeocodeCache  geocache.Options
}

type displayEntry struct {
	base   coord.Coordinate
	offLat float64
	offLon float64
	value  coord.Coordinate
}

// 文档注释：路线存储
// 背景：所有状态变更经同一把互斥锁串行化；地理编码与路线规划在后台 goroutine 执行，
// 回写前分别核对解析代次与列表版本，过期结果直接丢弃。
// 约束：持久化在持锁状态下同步完成，保证写入顺序与内存状态一致；订阅回调在释放锁后同步调用。
type Store struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	res      *resolver.Resolver
	geoCache *geocache.Cache
	opt      RouteOptimizer
	kv       kv.Store

	mu            sync.Mutex
	waypoints     []model.Waypoint
	listVersion   uint64
	route         *model.OptimizedRoute
	adjustments   map[string]model.WaypointAdjustment
	completed     map[string]struct{}
	display       map[string]displayEntry
	deviation     *model.DeviationWarning
	travel        model.TravelMode
	transport     model.TransportMode
	isResolving   bool
	isOptimizing  bool
	optimizeSeq   uint64
	advisory      string
	lastError     string
	highlight     []model.Waypoint
	jumpTarget    *model.MapJumpTarget
	focusToken    uint64
	tabJumpToken  uint64
	generation    uint64
	cancelResolve context.CancelFunc

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// 文档注释：创建路线存储
// 背景：依赖全部显式注入；store 为 nil 时使用内存后端。启动时读取校准表、完成集合与地理编码缓存，
// 任一读取或解码失败都按空状态继续。
func New(ctx context.Context, geo resolver.Geocoder, opt RouteOptimizer, store kv.Store, opts Options) *Store {
	if store == nil {
		store = kv.NewMemory()
	}
	if opts.TravelMode == "" {
		opts.TravelMode = model.TravelDriving
	}
	if opts.TransportMode == "" {
		opts.TransportMode = model.TransportDriving
	}
	cctx, cancel := context.WithCancel(ctx)
	gc := geocache.New(store, opts.GeocodeCache)
	s := &Store{
		ctx:         cctx,
		cancel:      cancel,
		geoCache:    gc,
		res:         resolver.New(geo, gc, opts.Resolver),
		opt:         opt,
		kv:          store,
		adjustments: map[string]model.WaypointAdjustment{},
		completed:   map[string]struct{}{},
		display:     map[string]displayEntry{},
		travel:      opts.TravelMode,
		transport:   opts.TransportMode,
		subs:        map[int]func(Event){},
	}
	if err := gc.Load(cctx); err != nil {
		logger.Component("routeplan").Warn("geocode_cache_load_error", "err", err)
	}
	s.loadAdjustments()
	s.loadCompleted()
	return s
}

// Close：取消后台任务并等待其退出
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait：阻塞直到当前后台解析与规划全部结束
func (s *Store) Wait() { s.wg.Wait() }

// Subscribe：注册状态变化回调，返回取消函数
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(kinds ...EventKind) {
	if len(kinds) == 0 {
		return
	}
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, k := range kinds {
		for _, fn := range fns {
			fn(Event{Kind: k})
		}
	}
}

// Snapshot：整体状态的只读拷贝
type Snapshot struct {
	Waypoints       []model.Waypoint        `json:"waypoints"`
	Route           *model.OptimizedRoute   `json:"route,omitempty"`
	TravelMode      model.TravelMode        `json:"travelMode"`
	TransportMode   model.TransportMode     `json:"transportMode"`
	IsResolving     bool                    `json:"isResolving"`
	IsOptimizing    bool                    `json:"isOptimizing"`
	Advisory        string                  `json:"advisory,omitempty"`
	LastError       string                  `json:"lastError,omitempty"`
	Deviation       *model.DeviationWarning `json:"deviation,omitempty"`
	Highlight       []model.Waypoint        `json:"highlight,omitempty"`
	JumpTarget      *model.MapJumpTarget    `json:"jumpTarget,omitempty"`
	MapFocusToken   uint64                  `json:"mapFocusToken"`
	MapTabJumpToken uint64                  `json:"mapTabJumpToken"`
	Completed       []string                `json:"completed"`
	ListVersion     uint64                  `json:"listVersion"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Waypoints:       append([]model.Waypoint(nil), s.waypoints...),
		TravelMode:      s.travel,
		TransportMode:   s.transport,
		IsResolving:     s.isResolving,
		IsOptimizing:    s.isOptimizing,
		Advisory:        s.advisory,
		LastError:       s.lastError,
		Highlight:       append([]model.Waypoint(nil), s.highlight...),
		MapFocusToken:   s.focusToken,
		MapTabJumpToken: s.tabJumpToken,
		Completed:       make([]string, 0, len(s.completed)),
		ListVersion:     s.listVersion,
		UpdatedAt:       time.Now(),
	}
	if s.route != nil {
		r := s.route.Clone()
		snap.Route = &r
	}
	if s.deviation != nil {
		d := *s.deviation
		snap.Deviation = &d
	}
	if s.jumpTarget != nil {
		j := *s.jumpTarget
		snap.JumpTarget = &j
	}
	for _, w := range s.waypoints {
		if _, ok := s.completed[w.StableKey()]; ok {
			snap.Completed = append(snap.Completed, w.StableKey())
		}
	}
	return snap
}

func (s *Store) Waypoints() []model.Waypoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Waypoint(nil), s.waypoints...)
}

// Route：当前规划结果，没有时返回 false
func (s *Store) Route() (model.OptimizedRoute, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.route == nil {
		return model.OptimizedRoute{}, false
	}
	return s.route.Clone(), true
}

func (s *Store) Advisory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advisory
}

func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *Store) DeviationWarning() (model.DeviationWarning, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deviation == nil {
		return model.DeviationWarning{}, false
	}
	return *s.deviation, true
}

func (s *Store) TravelMode() model.TravelMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.travel
}

func (s *Store) TransportMode() model.TransportMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// GeocodeCache：供维护接口查询缓存规模
func (s *Store) GeocodeCache() *geocache.Cache { return s.geoCache }
