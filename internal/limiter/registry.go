package limiter

import (
	"sync"

	"github.com/thep200/mastery-crawler/cfg"
)

type registryKey struct {
	class  string
	region string
}

// Registry tạo lười và cache limiter theo từng cặp (class, region).
// Lock của registry chỉ bảo vệ việc tạo entry; mỗi limiter tự khóa
// riêng nên các cặp endpoint/region không liên quan không chặn nhau.
type Registry struct {
	mu       sync.Mutex
	limiters map[registryKey]*RateLimiter
	limits   map[string]cfg.RateLimit
	sleeper  Sleeper
}

// Quota dùng khi endpoint class không có trong bảng cấu hình
var defaultLimit = cfg.RateLimit{PerSecond: 20, Per2Min: 100}

func NewRegistry(limits map[string]cfg.RateLimit, sleeper Sleeper) *Registry {
	return &Registry{
		limiters: make(map[registryKey]*RateLimiter),
		limits:   limits,
		sleeper:  sleeper,
	}
}

func (g *Registry) Get(class, region string) *RateLimiter {
	key := registryKey{class: class, region: region}

	g.mu.Lock()
	defer g.mu.Unlock()

	if lim, ok := g.limiters[key]; ok {
		return lim
	}
	limits, ok := g.limits[class]
	if !ok {
		limits = defaultLimit
	}
	lim := NewRateLimiter(class, region, limits, g.sleeper)
	g.limiters[key] = lim
	return lim
}
