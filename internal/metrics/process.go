package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// Sample is a point-in-time resource reading of the managed server process.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	Children   int       `json:"children"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sampler periodically reads CPU and memory of the managed process and
// exports them as gauges. Gauges are reset to zero while nothing runs.
type Sampler struct {
	interval time.Duration
	pidFn    func() int32
	log      *slog.Logger

	mu   sync.RWMutex
	last *Sample
	proc *process.Process

	cpu      prometheus.Gauge
	rss      prometheus.Gauge
	threads  prometheus.Gauge
	children prometheus.Gauge

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewSampler creates a sampler that asks pidFn for the current PID (0 means absent).
func NewSampler(interval time.Duration, pidFn func() int32, log *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "server", Name: name, Help: help})
	}
	return &Sampler{
		interval: interval,
		pidFn:    pidFn,
		log:      log,
		cpu:      gauge("cpu_percent", "CPU usage percentage of the managed server process."),
		rss:      gauge("memory_rss_bytes", "Resident memory of the managed server process."),
		threads:  gauge("num_threads", "Threads of the managed server process."),
		children: gauge("children", "Descendant processes of the managed server process."),
		stopCh:   make(chan struct{}),
	}
}

// Register registers the sampler's gauges.
func (s *Sampler) Register(r prometheus.Registerer) error {
	return registerAll(r, []prometheus.Collector{s.cpu, s.rss, s.threads, s.children})
}

// Start launches the sampling loop until ctx ends or Stop is called.
func (s *Sampler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-t.C:
				s.Collect(ctx)
			}
		}
	}()
}

func (s *Sampler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Collect takes one sample now. It returns nil when no process is running.
func (s *Sampler) Collect(ctx context.Context) *Sample {
	pid := s.pidFn()
	if pid <= 0 {
		s.reset()
		return nil
	}
	p := s.handleFor(ctx, pid)
	if p == nil {
		s.reset()
		return nil
	}
	smp := &Sample{PID: pid, Timestamp: time.Now()}
	// the first CPU reading of a fresh handle is measured since process start
	if cpu, err := p.PercentWithContext(ctx, 0); err == nil {
		smp.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		smp.MemoryRSS = mem.RSS
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		smp.NumThreads = n
	}
	if kids, err := p.ChildrenWithContext(ctx); err == nil {
		smp.Children = len(kids)
	}

	s.cpu.Set(smp.CPUPercent)
	s.rss.Set(float64(smp.MemoryRSS))
	s.threads.Set(float64(smp.NumThreads))
	s.children.Set(float64(smp.Children))

	s.mu.Lock()
	s.last = smp
	s.mu.Unlock()
	return smp
}

// Last returns the most recent sample, or nil.
func (s *Sampler) Last() *Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	c := *s.last
	return &c
}

func (s *Sampler) handleFor(ctx context.Context, pid int32) *process.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != nil && s.proc.Pid == pid {
		return s.proc
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		s.log.Debug("sample process", "pid", pid, "error", err)
		s.proc = nil
		return nil
	}
	s.proc = p
	return p
}

func (s *Sampler) reset() {
	s.cpu.Set(0)
	s.rss.Set(0)
	s.threads.Set(0)
	s.children.Set(0)
	s.mu.Lock()
	s.last = nil
	s.proc = nil
	s.mu.Unlock()
}
