package ratelimit

import (
	"sync"
	"time"
)

// Limiter keys shared across accounts. Quotas are issued per app, not per account.
const (
	KeyTwitter   = "twitter"
	KeyYouTube   = "youtube"
	KeyInstagram = "instagram"
	KeyReddit    = "reddit"
	KeyLLM       = "llm"
)

// DefaultConfigs returns the documented quota of every platform we call.
func DefaultConfigs() map[string]Config {
	return map[string]Config{
		// recent search: 60 requests / 15 min per app on the basic tier
		KeyTwitter: {Reservoir: 50, RefreshAmount: 50, RefreshInterval: 15 * time.Minute, MaxConcurrent: 1, MinSpacing: time.Second},
		// 10k quota units / day; a run costs roughly 100 units
		KeyYouTube:   {Reservoir: 100, RefreshAmount: 100, RefreshInterval: 24 * time.Hour, MaxConcurrent: 1, MinSpacing: time.Second},
		KeyInstagram: {Reservoir: 200, RefreshAmount: 200, RefreshInterval: time.Hour, MaxConcurrent: 1, MinSpacing: 500 * time.Millisecond},
		KeyReddit:    {Reservoir: 60, RefreshAmount: 60, RefreshInterval: time.Minute, MaxConcurrent: 2, MinSpacing: time.Second},
		KeyLLM:       {Reservoir: 60, RefreshAmount: 60, RefreshInterval: time.Minute, MaxConcurrent: 5, MinSpacing: 200 * time.Millisecond},
	}
}

// FallbackConfig is used for keys without a configured quota
var FallbackConfig = Config{Reservoir: 30, RefreshAmount: 30, RefreshInterval: time.Minute, MaxConcurrent: 1, MinSpacing: time.Second}

// Registry hands out one process-wide limiter per key.
// Limiters for different keys never block each other.
type Registry struct {
	mu       sync.Mutex
	configs  map[string]Config
	limiters map[string]*Limiter
}

// NewRegistry creates a registry; nil configs means DefaultConfigs.
func NewRegistry(configs map[string]Config) *Registry {
	if configs == nil {
		configs = DefaultConfigs()
	}
	return &Registry{
		configs:  configs,
		limiters: make(map[string]*Limiter),
	}
}

// For returns the limiter for key, creating it on first use
func (r *Registry) For(key string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[key]; ok {
		return l
	}
	cfg, ok := r.configs[key]
	if !ok {
		cfg = FallbackConfig
	}
	l := New(key, cfg)
	r.limiters[key] = l
	return l
}
