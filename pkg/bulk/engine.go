// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

// Package bulk applies one DNS record change to every zone of an account in
// fixed-size batches, with a per-zone timeout, cooperative cancellation and
// throttled progress reporting.
package bulk

import (
	"zonesync/pkg/dns"
	"zonesync/pkg/log"

	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBatchSize        = 5
	DefaultItemTimeout      = 20 * time.Second
	DefaultBatchDelay       = time.Second
	DefaultProgressInterval = 3 * time.Second
	DefaultFlushEvery       = 20

	recentLines = 5
)

// ErrNoZonesFound is returned when the credential reaches no zones
var ErrNoZonesFound = errors.New("no domains found for this API token")

// Options tune the engine; zero values take the defaults
type Options struct {
	BatchSize        int
	ItemTimeout      time.Duration
	BatchDelay       time.Duration
	ProgressInterval time.Duration
	FlushEvery       int
	LogLevel         string
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.ItemTimeout <= 0 {
		o.ItemTimeout = DefaultItemTimeout
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	}
	if o.ProgressInterval < 0 {
		o.ProgressInterval = 0
	}
	if o.FlushEvery <= 0 {
		o.FlushEvery = DefaultFlushEvery
	}
	return o
}

// DefaultOptions returns the production tuning
func DefaultOptions() Options {
	return Options{
		BatchSize:        DefaultBatchSize,
		ItemTimeout:      DefaultItemTimeout,
		BatchDelay:       DefaultBatchDelay,
		ProgressInterval: DefaultProgressInterval,
		FlushEvery:       DefaultFlushEvery,
	}
}

// Observer receives run output. OnProgress is throttled by the engine;
// OnResults receives result lines in groups of Options.FlushEvery.
type Observer interface {
	OnProgress(p Progress)
	OnResults(lines []string)
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped
type ObserverFuncs struct {
	Progress func(Progress)
	Results  func([]string)
}

func (f ObserverFuncs) OnProgress(p Progress) {
	if f.Progress != nil {
		f.Progress(p)
	}
}

func (f ObserverFuncs) OnResults(lines []string) {
	if f.Results != nil {
		f.Results(lines)
	}
}

// Engine runs bulk syncs against a DNS provider. An Engine holds no per-run
// state and may serve many conversations at once.
type Engine struct {
	provider dns.Provider
	opts     Options
	logger   *log.ScopedLogger
	now      func() time.Time
}

// New creates an engine
func New(provider dns.Provider, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		provider: provider,
		opts:     opts,
		logger:   log.NewScopedLogger("[bulk]", opts.LogLevel),
		now:      time.Now,
	}
}

// Options returns the effective tuning
func (e *Engine) Options() Options {
	return e.opts
}

// syncRun is the transient state of one Run call
type syncRun struct {
	id           string
	result       *Result
	recent       []string
	pending      []string
	lastProgress time.Time
}

// Run applies req to every zone the credential reaches.
//
// Cancellation of ctx is observed after the zone listing and between batches:
// a dispatched batch always runs to completion or to its per-zone timeout. A
// cancelled run returns the partial result with Cancelled set and a nil error.
func (e *Engine) Run(ctx context.Context, req Request, obs Observer) (*Result, error) {
	if obs == nil {
		obs = ObserverFuncs{}
	}
	run := &syncRun{
		id:           uuid.NewString()[:8],
		lastProgress: e.now(),
	}

	e.logger.Info("Run %s: applying %s -> %s with credential '%s'", run.id, req.Subdomain, req.IP, req.Credential.Name)

	zones, err := e.provider.ListZones(ctx, req.Credential.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	// a cancelled listing returns what it had without an error
	if ctx.Err() != nil {
		e.logger.Info("Run %s cancelled while listing zones", run.id)
		return &Result{Total: len(zones), Cancelled: true}, nil
	}
	if len(zones) == 0 {
		return nil, ErrNoZonesFound
	}

	run.result = &Result{Total: len(zones)}
	e.logger.Verbose("Run %s: %d zones in batches of %d", run.id, len(zones), e.opts.BatchSize)

	for start := 0; start < len(zones); start += e.opts.BatchSize {
		if ctx.Err() != nil {
			run.result.Cancelled = true
			break
		}

		end := min(start+e.opts.BatchSize, len(zones))
		for _, o := range e.runBatch(ctx, req, zones[start:end]) {
			run.result.add(o)
			line := o.Line(req.IP)
			run.pending = append(run.pending, line)
			run.recent = append(run.recent, line)
		}
		if len(run.recent) > recentLines {
			run.recent = run.recent[len(run.recent)-recentLines:]
		}
		e.logger.Debug("Run %s: batch %d-%d done (%d/%d)", run.id, start+1, end, run.result.Processed(), run.result.Total)

		e.reportProgress(run, obs, false)
		if len(run.pending) >= e.opts.FlushEvery {
			obs.OnResults(run.pending)
			run.pending = nil
		}

		if !sleep(ctx, e.opts.BatchDelay) && end < len(zones) {
			run.result.Cancelled = true
			break
		}
	}

	if len(run.pending) > 0 {
		obs.OnResults(run.pending)
		run.pending = nil
	}
	e.reportProgress(run, obs, true)

	if run.result.Cancelled {
		e.logger.Info("Run %s cancelled after %d/%d zones", run.id, run.result.Processed(), run.result.Total)
	} else {
		e.logger.Info("Run %s completed: %d succeeded, %d failed", run.id, run.result.Succeeded, run.result.Failed)
	}
	return run.result, nil
}

// reportProgress delivers a snapshot unless one was delivered less than
// ProgressInterval ago. Forced reports mark the end of the run.
func (e *Engine) reportProgress(run *syncRun, obs Observer, force bool) {
	now := e.now()
	if !force && now.Sub(run.lastProgress) < e.opts.ProgressInterval {
		return
	}
	run.lastProgress = now
	obs.OnProgress(Progress{
		Total:     run.result.Total,
		Processed: run.result.Processed(),
		Succeeded: run.result.Succeeded,
		Failed:    run.result.Failed,
		Recent:    append([]string(nil), run.recent...),
		Done:      force,
	})
}

// runBatch upserts all zones concurrently and waits for every one of them.
// The operations are detached from ctx cancellation.
func (e *Engine) runBatch(ctx context.Context, req Request, zones []dns.Zone) []Outcome {
	opCtx := context.WithoutCancel(ctx)
	outcomes := make([]Outcome, len(zones))

	var wg sync.WaitGroup
	for i, zone := range zones {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = e.upsert(opCtx, req, zone)
		}()
	}
	wg.Wait()
	return outcomes
}

type upsertReply struct {
	ok  bool
	err error
}

// upsert races one provider call against the item timeout
func (e *Engine) upsert(ctx context.Context, req Request, zone dns.Zone) Outcome {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ItemTimeout)
	defer cancel()

	done := make(chan upsertReply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- upsertReply{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		ok, err := e.provider.UpsertRecord(ctx, req.Credential.Token, zone.Name, req.Subdomain, req.IP)
		done <- upsertReply{ok: ok, err: err}
	}()

	select {
	case reply := <-done:
		return e.outcome(zone, req, reply)
	case <-ctx.Done():
		select {
		case reply := <-done:
			return e.outcome(zone, req, reply)
		default:
		}
		e.logger.Warn("Upsert for %s timed out after %v", zone.Name, e.opts.ItemTimeout)
		return Outcome{Zone: zone.Name, Detail: DetailTimeout}
	}
}

func (e *Engine) outcome(zone dns.Zone, req Request, reply upsertReply) Outcome {
	switch {
	case errors.Is(reply.err, context.DeadlineExceeded):
		return Outcome{Zone: zone.Name, Detail: DetailTimeout}
	case reply.err != nil:
		e.logger.Warn("Upsert for %s failed: %v", zone.Name, reply.err)
		return Outcome{Zone: zone.Name, Detail: reply.err.Error()}
	case !reply.ok:
		return Outcome{Zone: zone.Name, Detail: "Failed to create record"}
	default:
		return Outcome{Zone: zone.Name, OK: true, Detail: dns.RecordName(req.Subdomain, zone.Name)}
	}
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
