// Package health aggregates dependency health for the /v1/health endpoint.
//
// Dependencies that can be cheaply pinged (PostgreSQL, the vector index)
// register an active CheckFunc. Dependencies whose health is only visible
// through real traffic (embedding and generative model calls) register a
// passive Probe that records the outcome of each upstream call.
package health

import (
	"context"
	"sync"
	"time"
)

// Dependency status values.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusUnknown = "unknown" // passive probe with no traffic yet
)

// Aggregate status values.
const (
	AggregateOK       = "ok"
	AggregateDegraded = "degraded"
)

// checkTimeout bounds each active check so a hung dependency cannot
// stall the health endpoint.
const checkTimeout = 2 * time.Second

// Check is the reported state of a single dependency. Error carries
// upstream detail (hosts, driver messages) for logs and never reaches
// the wire.
type Check struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"-"`
}

// Report is the aggregate health state. Status is "degraded" when any
// dependency is not ok, "ok" otherwise.
type Report struct {
	Status       string           `json:"status"`
	Dependencies map[string]Check `json:"dependencies"`
}

// CheckFunc pings a dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// Registry collects active checks and passive probes.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	probes map[string]*Probe
}

// NewRegistry creates an empty health registry.
func NewRegistry() *Registry {
	return &Registry{
		checks: make(map[string]CheckFunc),
		probes: make(map[string]*Probe),
	}
}

// Register adds an active check under the given dependency name.
func (r *Registry) Register(name string, fn CheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = fn
}

// NewProbe registers and returns a passive probe for the given dependency.
func (r *Registry) NewProbe(name string) *Probe {
	p := &Probe{}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = p
	return p
}

// Report runs all active checks and snapshots all probes. Active checks
// run concurrently, each bounded by checkTimeout.
func (r *Registry) Report(ctx context.Context) Report {
	r.mu.RLock()
	checks := make(map[string]CheckFunc, len(r.checks))
	for name, fn := range r.checks {
		checks[name] = fn
	}
	probes := make(map[string]*Probe, len(r.probes))
	for name, p := range r.probes {
		probes[name] = p
	}
	r.mu.RUnlock()

	deps := make(map[string]Check, len(checks)+len(probes))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			start := time.Now()
			err := fn(checkCtx)
			c := Check{
				Status:    StatusOK,
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				c.Status = StatusError
				c.Error = err.Error()
			}

			mu.Lock()
			deps[name] = c
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	for name, p := range probes {
		deps[name] = p.snapshot()
	}

	status := AggregateOK
	for _, c := range deps {
		if c.Status == StatusError {
			status = AggregateDegraded
			break
		}
	}

	return Report{Status: status, Dependencies: deps}
}

// Probe records the outcome of the most recent upstream call. A probe
// with no observations yet reports "unknown", which does not degrade
// the aggregate status.
type Probe struct {
	mu       sync.Mutex
	observed bool
	lastErr  error
	latency  time.Duration
}

// RecordSuccess notes a successful upstream call.
func (p *Probe) RecordSuccess(latency time.Duration) {
	p.record(latency, nil)
}

// RecordFailure notes a failed upstream call.
func (p *Probe) RecordFailure(latency time.Duration, err error) {
	p.record(latency, err)
}

func (p *Probe) record(latency time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observed = true
	p.latency = latency
	p.lastErr = err
}

func (p *Probe) snapshot() Check {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.observed {
		return Check{Status: StatusUnknown}
	}
	c := Check{
		Status:    StatusOK,
		LatencyMS: p.latency.Milliseconds(),
	}
	if p.lastErr != nil {
		c.Status = StatusError
		c.Error = p.lastErr.Error()
	}
	return c
}
