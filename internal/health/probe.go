// Package health aggregates subordinate dependency checks into one
// liveness/readiness verdict. The database is the only critical
// dependency: losing it makes the process unhealthy, while an unreachable
// cache store, low disk, or stale backup only degrade it. In production the
// probe also gates startup: a failing database check halts the process
// before it ever serves traffic.
package health

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/cacheengine"
	"github.com/aerosuite/platform/internal/logging"
)

// Status is the aggregate verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is one subordinate probe.
type Check struct {
	Name     string
	Critical bool // failing a critical check makes the whole process unhealthy
	Run      func(ctx context.Context) error
}

// CheckResult is the recorded outcome of one check.
type CheckResult struct {
	Name      string    `json:"name"`
	OK        bool      `json:"ok"`
	Critical  bool      `json:"critical"`
	Error     string    `json:"error,omitempty"`
	LatencyMs float64   `json:"latencyMs"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Result is the aggregate outcome.
type Result struct {
	Status    Status                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	System    SystemInfo             `json:"system"`
	Timestamp time.Time              `json:"timestamp"`
}

// SystemInfo carries process-level facts for the health endpoints.
type SystemInfo struct {
	UptimeSeconds  float64 `json:"uptimeSeconds"`
	Goroutines     int     `json:"goroutines"`
	HeapAllocBytes uint64  `json:"heapAllocBytes"`
	MemUsedPercent float64 `json:"memUsedPercent"`
}

// Probe evaluates registered checks, caching results between the periodic
// refreshes its cron schedule drives.
type Probe struct {
	log     *logging.Logger
	started time.Time
	timeout time.Duration

	mu     sync.RWMutex
	checks []Check
	last   map[string]CheckResult

	cron *cron.Cron
}

// New constructs an empty Probe.
func New(log *logging.Logger) *Probe {
	return &Probe{
		log:     log,
		started: time.Now(),
		timeout: 5 * time.Second,
		last:    make(map[string]CheckResult),
	}
}

// Register adds a check.
func (p *Probe) Register(c Check) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks = append(p.checks, c)
}

// StartPeriodic refreshes all checks on the given cron spec (e.g.
// "@every 30s") so reads between refreshes stay cheap.
func (p *Probe) StartPeriodic(spec string) error {
	p.cron = cron.New()
	if _, err := p.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		p.Evaluate(ctx)
	}); err != nil {
		return err
	}
	p.cron.Start()
	return nil
}

// Stop halts the periodic refresh.
func (p *Probe) Stop() {
	if p.cron != nil {
		ctx := p.cron.Stop()
		<-ctx.Done()
	}
}

// Evaluate runs every registered check now and returns the aggregate.
func (p *Probe) Evaluate(ctx context.Context) Result {
	p.mu.RLock()
	checks := append([]Check(nil), p.checks...)
	p.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	status := StatusHealthy
	for _, c := range checks {
		start := time.Now()
		err := c.Run(ctx)
		res := CheckResult{
			Name:      c.Name,
			OK:        err == nil,
			Critical:  c.Critical,
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
			CheckedAt: time.Now(),
		}
		if err != nil {
			res.Error = err.Error()
			if c.Critical {
				status = StatusUnhealthy
			} else if status == StatusHealthy {
				status = StatusDegraded
			}
			if p.log != nil {
				p.log.LogEvent(ctx, "health.check_failed", map[string]interface{}{
					"check": c.Name, "critical": c.Critical, "error": err.Error(),
				})
			}
		}
		results[c.Name] = res
	}

	p.mu.Lock()
	p.last = results
	p.mu.Unlock()

	return Result{
		Status:    status,
		Checks:    results,
		System:    p.systemInfo(),
		Timestamp: time.Now(),
	}
}

// Cached returns the last evaluated result without re-running checks; it
// falls back to a live evaluation when nothing has run yet.
func (p *Probe) Cached(ctx context.Context) Result {
	p.mu.RLock()
	last := p.last
	p.mu.RUnlock()
	if len(last) == 0 {
		return p.Evaluate(ctx)
	}

	status := StatusHealthy
	results := make(map[string]CheckResult, len(last))
	for name, res := range last {
		results[name] = res
		if !res.OK {
			if res.Critical {
				status = StatusUnhealthy
			} else if status == StatusHealthy {
				status = StatusDegraded
			}
		}
	}
	return Result{Status: status, Checks: results, System: p.systemInfo(), Timestamp: time.Now()}
}

func (p *Probe) systemInfo() SystemInfo {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	info := SystemInfo{
		UptimeSeconds:  time.Since(p.started).Seconds(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: ms.HeapAlloc,
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemUsedPercent = vm.UsedPercent
	}
	return info
}

// Gate enforces the production startup rule: a failing critical check in a
// production environment aborts startup.
func (p *Probe) Gate(ctx context.Context, env string) error {
	result := p.Evaluate(ctx)
	if result.Status == StatusUnhealthy && env == "production" {
		for name, res := range result.Checks {
			if res.Critical && !res.OK {
				return apperrors.DependencyUnavailable(name, fmt.Errorf("%s", res.Error))
			}
		}
		return apperrors.New(apperrors.KindDependencyUnavailable, "critical health check failed")
	}
	return nil
}

// DatabaseCheck pings the database; it is the critical dependency.
func DatabaseCheck(db *sqlx.DB) Check {
	return Check{
		Name:     "database",
		Critical: true,
		Run: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
	}
}

// CacheCheck pings the cache engine's shared store. A local-only engine
// always passes.
func CacheCheck(engine *cacheengine.Engine) Check {
	return Check{
		Name: "cache",
		Run: func(ctx context.Context) error {
			return engine.Ping(ctx)
		},
	}
}

// DiskCheck fails when free space on path drops below minFreeBytes.
func DiskCheck(path string, minFreeBytes uint64) Check {
	return Check{
		Name: "disk",
		Run: func(ctx context.Context) error {
			usage, err := disk.UsageWithContext(ctx, path)
			if err != nil {
				return err
			}
			if usage.Free < minFreeBytes {
				return fmt.Errorf("free disk %d bytes below threshold %d", usage.Free, minFreeBytes)
			}
			return nil
		},
	}
}

// BackupCheck fails when the most recent backup is older than maxAge.
// lastBackup reports the completion time of the newest backup.
func BackupCheck(lastBackup func(ctx context.Context) (time.Time, error), maxAge time.Duration) Check {
	return Check{
		Name: "backup",
		Run: func(ctx context.Context) error {
			at, err := lastBackup(ctx)
			if err != nil {
				return err
			}
			if age := time.Since(at); age > maxAge {
				return fmt.Errorf("last backup %s old, threshold %s", age.Round(time.Second), maxAge)
			}
			return nil
		},
	}
}
