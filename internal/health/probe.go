package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

type CheckResult struct {
	Name       string `json:"name"`
	Healthy    bool   `json:"healthy"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

type funcChecker struct {
	name string
	fn   func(context.Context) error
}

// NewCheck adapts an error-returning probe such as Store.Ping or
// keys.Manager.Check.
func NewCheck(name string, fn func(context.Context) error) Checker {
	return funcChecker{name: name, fn: fn}
}

func (c funcChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	err := c.fn(ctx)
	res := CheckResult{Name: c.name, Healthy: err == nil, DurationMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// ProbeRunner runs readiness checks concurrently. timeout bounds the whole
// run and perCheck, when positive, bounds each check.
type ProbeRunner struct {
	timeout  time.Duration
	perCheck time.Duration
	checks   []Checker
}

func NewProbeRunner(timeout, perCheck time.Duration, checks ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ProbeRunner{timeout: timeout, perCheck: perCheck, checks: checks}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results := make([]CheckResult, len(p.checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range p.checks {
		g.Go(func() error {
			cctx := gctx
			if p.perCheck > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(gctx, p.perCheck)
				defer cancel()
			}
			results[i] = c.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()

	ready := true
	for _, r := range results {
		if !r.Healthy {
			ready = false
		}
	}
	return ready, results
}
