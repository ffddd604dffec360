// Package probe implements the post-install reachability poll: a bounded
// retry loop that probes the guest's assigned IP until it answers or the
// failure cap is exceeded.
//
// The loop is a two-outcome state machine: probing → alive when a probe
// succeeds, probing → exhausted when the failure counter passes the cap.
// Interval and cap come from the deployment environment rather than being
// baked in.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"time"
)

// ErrExhausted is returned when the failure counter exceeds the attempt cap
// without a single successful probe. The caller must skip post-install
// cleanup in this case so the seed media stays available for debugging.
var ErrExhausted = errors.New("guest still offline after all probe attempts")

// Prober sends a single reachability probe to an address.
// Satisfied by PingProber in production and by fakes in tests.
type Prober interface {
	Probe(ctx context.Context, ip string) error
}

// commandRunner mirrors the exec contract used by PingProber so tests can
// avoid sending real ICMP traffic.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// PingProber probes with a single ICMP echo via the system ping binary.
type PingProber struct {
	runner commandRunner

	// Timeout is the per-probe reply deadline passed to ping -W.
	Timeout time.Duration
}

// NewPingProber creates a PingProber with the given per-probe timeout.
// A zero timeout defaults to 5 seconds.
func NewPingProber(timeout time.Duration) *PingProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PingProber{runner: execRunner{}, Timeout: timeout}
}

// Probe sends one echo request. A non-zero ping exit means unreachable.
func (p *PingProber) Probe(ctx context.Context, ip string) error {
	seconds := int(p.Timeout.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	output, err := p.runner.Run(ctx, "ping", "-c", "1", "-W", strconv.Itoa(seconds), ip)
	if err != nil {
		return fmt.Errorf("probe of %s failed: %w\nOutput: %s", ip, err, string(output))
	}
	return nil
}

// Waiter runs the polling loop.
type Waiter struct {
	Prober Prober

	// Interval is the sleep between probes.
	Interval time.Duration

	// MaxAttempts is the failure cap. The loop gives up when the failure
	// counter exceeds it.
	MaxAttempts int

	// Logf reports each failed attempt. Defaults to log.Printf.
	Logf func(format string, args ...any)

	// sleep is replaceable in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWaiter creates a Waiter with the given prober, interval between
// probes, and failure cap.
func NewWaiter(prober Prober, interval time.Duration, maxAttempts int) *Waiter {
	return &Waiter{
		Prober:      prober,
		Interval:    interval,
		MaxAttempts: maxAttempts,
	}
}

// Wait polls until the address answers a probe or the failure counter
// exceeds MaxAttempts. It returns the number of probes sent. On exhaustion
// the returned error wraps ErrExhausted; a cancelled context aborts the
// wait between probes.
func (w *Waiter) Wait(ctx context.Context, ip string) (int, error) {
	logf := w.Logf
	if logf == nil {
		logf = log.Printf
	}
	sleep := w.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	failures := 0
	for {
		attempt := failures + 1
		if err := w.Prober.Probe(ctx, ip); err == nil {
			return attempt, nil
		}

		failures++
		if failures > w.MaxAttempts {
			return failures, fmt.Errorf("%s unreachable: %w", ip, ErrExhausted)
		}

		logf("Guest %s still offline (attempt %d/%d), retrying in %v...",
			ip, failures, w.MaxAttempts, w.Interval)

		if err := sleep(ctx, w.Interval); err != nil {
			return failures, fmt.Errorf("reachability wait aborted: %w", err)
		}
	}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
