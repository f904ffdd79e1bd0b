package admission

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"github.com/file2link/packer/internal/logging"
)

// Denial reasons returned by TryAcquire.
const (
	ReasonCPU  = "cpu saturated"
	ReasonBusy = "busy"
)

// Sampler reports host utilization as percentages in [0, 100].
type Sampler interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
}

// SystemSampler samples the host with gopsutil.
type SystemSampler struct {
	// Interval is the CPU measurement window. Zero compares against the
	// previous call.
	Interval time.Duration
}

// CPUPercent returns overall CPU utilization across all cores.
func (s SystemSampler) CPUPercent(ctx context.Context) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, s.Interval, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, errors.New("admission: no cpu sample")
	}
	return pcts[0], nil
}

// MemoryPercent returns used virtual memory as a percentage.
func (s SystemSampler) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// Status is a read-only snapshot of the gate.
type Status struct {
	Active     int     `json:"active"`
	Max        int     `json:"max"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
	CanAccept  bool    `json:"can_accept"`
}

// Options configures a Controller.
type Options struct {
	MaxConcurrent int
	CPULimit      float64
	Sampler       Sampler
	Logger        *zap.Logger
}

// Controller limits how many heavy jobs run at once and refuses new ones
// while the host CPU is saturated. Safe for concurrent use.
type Controller struct {
	max      int
	cpuLimit float64
	sampler  Sampler
	logger   *zap.Logger

	mu     sync.Mutex
	active int
}

// New creates a Controller. MaxConcurrent defaults to 1, CPULimit to 80 and
// Sampler to a SystemSampler with a one second window.
func New(opts Options) *Controller {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.CPULimit <= 0 {
		opts.CPULimit = 80
	}
	if opts.Sampler == nil {
		opts.Sampler = SystemSampler{Interval: time.Second}
	}
	return &Controller{
		max:      opts.MaxConcurrent,
		cpuLimit: opts.CPULimit,
		sampler:  opts.Sampler,
		logger:   logging.WithComponent(opts.Logger, "admission"),
	}
}

// TryAcquire claims a slot. It never blocks on other holders; a denial
// carries ReasonCPU or ReasonBusy.
func (c *Controller) TryAcquire() (bool, string) {
	// Sampling can take the whole measurement window, so it runs outside
	// the lock. The count check and increment are atomic.
	cpuPct := c.cpuPercent(context.Background())
	if cpuPct > c.cpuLimit {
		c.logger.Info("admission denied", zap.String("reason", ReasonCPU), zap.Float64("cpu_percent", cpuPct))
		return false, ReasonCPU
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active >= c.max {
		c.logger.Info("admission denied", zap.String("reason", ReasonBusy), zap.Int("active", c.active))
		return false, ReasonBusy
	}
	c.active++
	c.logger.Debug("slot acquired", zap.Int("active", c.active), zap.Int("max", c.max))
	return true, ""
}

// Release frees a slot. Extra calls are harmless; the count never drops
// below zero.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active > 0 {
		c.active--
	}
	c.logger.Debug("slot released", zap.Int("active", c.active))
}

// Active returns the number of slots currently held.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Status samples the host and reports the gate state. It does not change it.
func (c *Controller) Status() Status {
	ctx := context.Background()
	cpuPct := c.cpuPercent(ctx)
	memPct, err := c.sampler.MemoryPercent(ctx)
	if err != nil {
		c.logger.Warn("memory sampling failed", zap.Error(err))
		memPct = 0
	}

	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	return Status{
		Active:     active,
		Max:        c.max,
		CPUPercent: cpuPct,
		MemPercent: memPct,
		CanAccept:  active < c.max && cpuPct <= c.cpuLimit,
	}
}

// cpuPercent samples CPU and treats a failed sample as idle. This fails
// open: a broken sampler never blocks admission, so the concurrency limit is
// the only guard left when it happens.
func (c *Controller) cpuPercent(ctx context.Context) float64 {
	pct, err := c.sampler.CPUPercent(ctx)
	if err != nil {
		c.logger.Warn("cpu sampling failed, admitting as if idle", zap.Error(err))
		return 0
	}
	return pct
}

// DeniedError is returned by Enter when no slot is available.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "admission denied: " + e.Reason
}

// Slot is a held admission slot. Release may be called any number of times;
// only the first call frees the slot.
type Slot struct {
	once sync.Once
	c    *Controller
}

// Release frees the slot.
func (s *Slot) Release() {
	s.once.Do(s.c.Release)
}

// Enter claims a slot and returns a handle that releases it exactly once.
// A denial is returned as *DeniedError.
func (c *Controller) Enter() (*Slot, error) {
	ok, reason := c.TryAcquire()
	if !ok {
		return nil, &DeniedError{Reason: reason}
	}
	return &Slot{c: c}, nil
}
