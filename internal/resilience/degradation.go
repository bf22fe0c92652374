package resilience

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Level is how degraded a dependency currently is.
type Level int

const (
	LevelNormal Level = iota
	LevelDegraded
	LevelCritical
	LevelUnavailable
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelDegraded:
		return "degraded"
	case LevelCritical:
		return "critical"
	case LevelUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// DegradationConfig holds the error-rate thresholds for each level.
type DegradationConfig struct {
	Window              int           `json:"window"` // outcomes kept per dependency
	DegradedThreshold   float64       `json:"degraded_threshold"`
	CriticalThreshold   float64       `json:"critical_threshold"`
	UnavailableAfter    float64       `json:"unavailable_threshold"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	HealthCheckTimeout  time.Duration `json:"health_check_timeout"`
}

func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		Window:              100,
		DegradedThreshold:   0.1,
		CriticalThreshold:   0.25,
		UnavailableAfter:    0.5,
		HealthCheckInterval: 30 * time.Second,
		HealthCheckTimeout:  5 * time.Second,
	}
}

// DependencyHealth is the reportable state of one dependency.
type DependencyHealth struct {
	Name          string    `json:"name"`
	Level         Level     `json:"level"`
	ErrorRate     float64   `json:"error_rate"`
	Observations  int       `json:"observations"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorTime time.Time `json:"last_error_time"`
	Optional      bool      `json:"optional"`
}

// HealthCheckFunc probes a dependency.
type HealthCheckFunc func(ctx context.Context) error

type dependency struct {
	outcomes []bool // true is a failure
	next     int
	filled   bool
	health   DependencyHealth
	check    HealthCheckFunc
}

// DegradationTracker keeps a rolling error rate per dependency. Predictions
// degrade instead of failing, so this is how operators see that the model or
// the sentiment service has dropped out.
type DegradationTracker struct {
	config DegradationConfig
	logger *slog.Logger

	mu   sync.RWMutex
	deps map[string]*dependency
}

func NewDegradationTracker(config DegradationConfig, logger *slog.Logger) *DegradationTracker {
	if config.Window <= 0 {
		config.Window = DefaultDegradationConfig().Window
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DegradationTracker{config: config, logger: logger, deps: make(map[string]*dependency)}
}

// Register adds a dependency. check may be nil when outcomes are only recorded inline.
func (t *DegradationTracker) Register(name string, optional bool, check HealthCheckFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deps[name] = &dependency{
		outcomes: make([]bool, t.config.Window),
		health:   DependencyHealth{Name: name, Optional: optional},
		check:    check,
	}
}

// Record adds one outcome; a nil err is a success. Unknown names are ignored.
func (t *DegradationTracker) Record(name string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.deps[name]
	if !ok {
		return
	}
	d.outcomes[d.next] = err != nil
	d.next = (d.next + 1) % len(d.outcomes)
	if d.next == 0 {
		d.filled = true
	}
	if err != nil {
		d.health.LastError = err.Error()
		d.health.LastErrorTime = time.Now()
	}
	t.update(d)
}

func (t *DegradationTracker) update(d *dependency) {
	n := d.next
	if d.filled {
		n = len(d.outcomes)
	}
	failures := 0
	for i := 0; i < n; i++ {
		if d.outcomes[i] {
			failures++
		}
	}

	old := d.health.Level
	d.health.Observations = n
	d.health.ErrorRate = 0
	if n > 0 {
		d.health.ErrorRate = float64(failures) / float64(n)
	}
	switch rate := d.health.ErrorRate; {
	case rate >= t.config.UnavailableAfter:
		d.health.Level = LevelUnavailable
	case rate >= t.config.CriticalThreshold:
		d.health.Level = LevelCritical
	case rate >= t.config.DegradedThreshold:
		d.health.Level = LevelDegraded
	default:
		d.health.Level = LevelNormal
	}

	if old != d.health.Level {
		t.logger.Warn("Dependency level changed",
			"dependency", d.health.Name,
			"old_level", old.String(),
			"new_level", d.health.Level.String(),
			"error_rate", d.health.ErrorRate)
	}
}

// Health returns every dependency sorted by name.
func (t *DegradationTracker) Health() []DependencyHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]DependencyHealth, 0, len(t.deps))
	for _, d := range t.deps {
		out = append(out, d.health)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Status summarizes Health: "unhealthy" when a required dependency is
// unavailable, "degraded" when anything is below normal, "healthy" otherwise.
func (t *DegradationTracker) Status() string {
	status := "healthy"
	for _, h := range t.Health() {
		if h.Level == LevelNormal {
			continue
		}
		if h.Level == LevelUnavailable && !h.Optional {
			return "unhealthy"
		}
		status = "degraded"
	}
	return status
}

// CheckNow runs every registered health check once, concurrently.
func (t *DegradationTracker) CheckNow(ctx context.Context) {
	t.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(t.deps))
	for name, d := range t.deps {
		if d.check != nil {
			checks[name] = d.check
		}
	}
	t.mu.RUnlock()

	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, t.config.HealthCheckTimeout)
			defer cancel()
			t.Record(name, check(checkCtx))
		}()
	}
	wg.Wait()
}

// Run calls CheckNow immediately and then every HealthCheckInterval until ctx is done.
func (t *DegradationTracker) Run(ctx context.Context) {
	t.CheckNow(ctx)
	ticker := time.NewTicker(t.config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.CheckNow(ctx)
		}
	}
}
