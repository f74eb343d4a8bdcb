// Package dispatch fans commands out to one or many targets with
// per-call timeouts and fault isolation, and aggregates the per-target
// outcomes into a single response.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JamesDodds/ipmi-api-gateway/internal/executor"
	"github.com/JamesDodds/ipmi-api-gateway/internal/target"
)

// Status classifies the result of one command execution.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusFailure         Status = "failure"
	StatusTimeout         Status = "timeout"
	StatusUnreachable     Status = "unreachable"
	StatusUnauthenticated Status = "unauthenticated"
	// StatusCanceled means the caller went away before the command
	// finished. It says nothing about the BMC.
	StatusCanceled Status = "canceled"
)

// Outcome is the classified result of one (target, command) execution.
// Non-success outcomes are values, not errors: a fleet request is never
// failed merely because one member failed.
type Outcome struct {
	Target   string          `json:"target"`
	Address  string          `json:"address"`
	Status   Status          `json:"status"`
	Payload  executor.Result `json:"payload,omitzero"`
	Message  string          `json:"message,omitempty"`
	Duration time.Duration   `json:"-"`
}

// Dispatcher orchestrates command execution across resolved targets.
type Dispatcher struct {
	exec        executor.Executor
	timeout     time.Duration
	maxInFlight int
	logger      *slog.Logger
}

func New(exec executor.Executor, timeout time.Duration, maxInFlight int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		exec:        exec,
		timeout:     timeout,
		maxInFlight: maxInFlight,
		logger:      logger,
	}
}

type reply struct {
	result executor.Result
	err    error
}

// One executes cmd against a single target under the configured
// timeout. On timeout the in-flight call is abandoned: the executor
// goroutine delivers into a buffered channel and exits on its own,
// so a hung call never blocks the response.
func (d *Dispatcher) One(ctx context.Context, t target.Descriptor, cmd executor.Command) Outcome {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ch := make(chan reply, 1)
	go func() {
		result, err := d.exec.Execute(callCtx, t, cmd)
		ch <- reply{result: result, err: err}
	}()

	var out Outcome
	select {
	case r := <-ch:
		out = d.classify(t, r.result, r.err)
	case <-callCtx.Done():
		out = d.classify(t, executor.Result{}, callCtx.Err())
	}
	out.Duration = time.Since(start)

	d.logger.Info("Command executed",
		"target", t.Name,
		"command", cmd.Kind,
		"status", out.Status,
		"duration", out.Duration)
	return out
}

// Fleet executes cmd against every target concurrently, bounded by the
// configured in-flight limit. Each call is isolated; the method returns
// once every target has produced an outcome, with no early exit.
// Outcomes are returned in the order of the given targets.
func (d *Dispatcher) Fleet(ctx context.Context, targets []target.Descriptor, cmd executor.Command) []Outcome {
	outcomes := make([]Outcome, len(targets))

	var wg sync.WaitGroup
	var sem chan struct{}
	if d.maxInFlight > 0 && d.maxInFlight < len(targets) {
		sem = make(chan struct{}, d.maxInFlight)
	}

	for i, t := range targets {
		if sem != nil {
			sem <- struct{}{}
		}
		wg.Add(1)
		go func(i int, t target.Descriptor) {
			defer wg.Done()
			if sem != nil {
				defer func() { <-sem }()
			}
			outcomes[i] = d.One(ctx, t, cmd)
		}(i, t)
	}

	wg.Wait()
	return outcomes
}

func (d *Dispatcher) classify(t target.Descriptor, result executor.Result, err error) Outcome {
	out := Outcome{Target: t.Name, Address: t.Address}
	switch {
	case err == nil:
		out.Status = StatusSuccess
		out.Payload = result
	case errors.Is(err, context.DeadlineExceeded):
		out.Status = StatusTimeout
		out.Message = fmt.Sprintf("command timed out after %s", d.timeout)
	case errors.Is(err, context.Canceled):
		out.Status = StatusCanceled
		out.Message = "command canceled before completion"
	case errors.Is(err, executor.ErrAuthRejected):
		out.Status = StatusUnauthenticated
		out.Message = err.Error()
	case errors.Is(err, executor.ErrConnectFailed):
		out.Status = StatusUnreachable
		out.Message = err.Error()
	default:
		out.Status = StatusFailure
		out.Message = err.Error()
	}
	return out
}
