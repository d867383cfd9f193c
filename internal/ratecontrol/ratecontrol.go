// Package ratecontrol loads per-adapter outbound rate limits from
// config/adapters.yaml. External archives ban aggressive polling, so
// the limits ship in config rather than code and can be reloaded
// without a restart.
package ratecontrol

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

type config struct {
	AdapterLimits struct {
		DefaultRPS float64 `yaml:"default_rps"`
		Overrides  map[string]struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"overrides"`
	} `yaml:"adapter_limits"`
}

// Limit is the outbound request budget for one adapter.
type Limit struct {
	RPS   float64
	Burst int
}

var (
	mu          sync.RWMutex
	loaded      *config
	initialized bool
)

var defaultPaths = []string{
	os.Getenv("IKARIS_ADAPTERS_CONFIG_PATH"),
	"/app/config/adapters.yaml",
	"./config/adapters.yaml",
	"../../config/adapters.yaml",
}

func loadLocked() {
	var cfg config
	for _, p := range defaultPaths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var tmp config
		if err := yaml.Unmarshal(data, &tmp); err != nil {
			log.Printf("WARNING: failed to unmarshal adapter limits from %s: %v", p, err)
			continue
		}
		cfg = tmp
		log.Printf("Loaded adapter rate limits from %s", p)
		break
	}
	if cfg.AdapterLimits.DefaultRPS == 0 && len(cfg.AdapterLimits.Overrides) == 0 {
		if path, ok := findUpConfig(); ok {
			if data, err := os.ReadFile(path); err == nil {
				var tmp config
				if err := yaml.Unmarshal(data, &tmp); err == nil {
					cfg = tmp
					log.Printf("Loaded adapter rate limits from %s", path)
				}
			}
		}
	}
	loaded = &cfg
	initialized = true
}

func findUpConfig() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 6; i++ {
		cand := filepath.Join(wd, "config", "adapters.yaml")
		if _, err := os.Stat(cand); err == nil {
			return cand, true
		}
		wd = filepath.Dir(wd)
	}
	return "", false
}

func get() *config {
	mu.RLock()
	if initialized {
		defer mu.RUnlock()
		return loaded
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if !initialized {
		loadLocked()
	}
	return loaded
}

// Reload re-reads the config file and rebuilds limiters. The config
// watcher calls this when adapters.yaml changes on disk.
func Reload() {
	mu.Lock()
	loadLocked()
	mu.Unlock()

	limMu.Lock()
	limiters = make(map[string]*rate.Limiter)
	limMu.Unlock()
}

// LimitForAdapter returns the configured budget for an adapter,
// falling back to the default and finally to a conservative 1 rps.
func LimitForAdapter(name string) Limit {
	cfg := get()
	key := strings.ToLower(strings.TrimSpace(name))
	if override, ok := cfg.AdapterLimits.Overrides[key]; ok && override.RPS > 0 {
		burst := override.Burst
		if burst <= 0 {
			burst = 1
		}
		return Limit{RPS: override.RPS, Burst: burst}
	}
	if cfg.AdapterLimits.DefaultRPS > 0 {
		return Limit{RPS: cfg.AdapterLimits.DefaultRPS, Burst: 1}
	}
	return Limit{RPS: 1, Burst: 1}
}

var (
	limMu    sync.Mutex
	limiters = make(map[string]*rate.Limiter)
)

// LimiterFor returns the shared token-bucket limiter for an adapter.
// Limiters are rebuilt on Reload so edits take effect mid-flight.
func LimiterFor(name string) *rate.Limiter {
	key := strings.ToLower(strings.TrimSpace(name))

	limMu.Lock()
	defer limMu.Unlock()
	if lim, ok := limiters[key]; ok {
		return lim
	}
	l := LimitForAdapter(key)
	lim := rate.NewLimiter(rate.Limit(l.RPS), l.Burst)
	limiters[key] = lim
	return lim
}

// Wait blocks until the adapter's budget grants one request.
func Wait(ctx context.Context, name string) error {
	return LimiterFor(name).Wait(ctx)
}
