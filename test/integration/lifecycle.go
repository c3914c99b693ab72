// lifecycle.go contains provider lifecycle tests.
// Tests cover context switching, stale refresh, initialization, shutdown,
// named providers, concurrent init, timeout handling, status atomicity, and
// idempotent operations.
package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-feature/go-sdk/openfeature"

	toggle "github.com/hyphen/toggle-openfeature-go"
)

// initStandalone creates and initializes a provider outside the SDK.
func initStandalone(h *harness, name, targetingKey string, opts ...toggle.Option) (*toggle.Provider, bool) {
	p, err := h.newProvider(opts...)
	if err != nil {
		results.Fail(name+"(create)", fmt.Sprintf("failed to create: %v", err))
		return nil, false
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := p.InitWithContext(initCtx, openfeature.NewEvaluationContext(targetingKey, nil)); err != nil {
		results.Fail(name+"(init)", fmt.Sprintf("init failed: %v", err))
		p.Shutdown()
		return nil, false
	}
	return p, true
}

// waitFor reads provider events until one of type want arrives.
func waitFor(events <-chan openfeature.Event, want openfeature.EventType, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if ev.EventType == want {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

// testContextSwitching tests OnContextChanged moves the bundle to a new subject
func testContextSwitching(ctx context.Context, h *harness) {
	if !h.local() {
		results.Skip("ContextSwitching", "needs two known subjects")
		return
	}

	p, ok := initStandalone(h, "ContextSwitching", "test-user")
	if !ok {
		return
	}
	defer p.Shutdown()

	before := p.StringEvaluation(ctx, "ui_theme", "", openfeature.FlattenedContext{openfeature.TargetingKey: "test-user"})
	results.Check("ContextSwitching(before)", before.Value == "dark", "expected dark, got %q", before.Value)

	err := p.OnContextChanged(ctx,
		openfeature.NewEvaluationContext("test-user", nil),
		openfeature.NewEvaluationContext("beta-user", nil))
	if err != nil {
		results.Fail("ContextSwitching(change)", err.Error())
		return
	}
	results.Check("ContextSwitching(config change event)",
		waitFor(p.EventChannel(), openfeature.ProviderConfigChange, 5*time.Second),
		"no PROVIDER_CONFIGURATION_CHANGED after context change")

	after := p.StringEvaluation(ctx, "ui_theme", "", openfeature.FlattenedContext{openfeature.TargetingKey: "beta-user"})
	results.Check("ContextSwitching(after)", after.Value == "light", "expected light, got %q", after.Value)

	old := p.StringEvaluation(ctx, "ui_theme", "fallback", openfeature.FlattenedContext{openfeature.TargetingKey: "test-user"})
	results.Check("ContextSwitching(old subject)",
		old.ResolutionDetail().ErrorCode == openfeature.InvalidContextCode,
		"expected INVALID_CONTEXT for the previous subject, got %s", old.ResolutionDetail().ErrorCode)
}

// testStaleRefresh tests that reading an expired bundle emits PROVIDER_STALE
// and a background refresh brings the provider back to READY
func testStaleRefresh(ctx context.Context, h *harness) {
	network := h.cfg.Network
	network.CacheTTL = 200 * time.Millisecond
	p, ok := initStandalone(h, "StaleRefresh", "test-user", toggle.WithNetworkOptions(network))
	if !ok {
		return
	}
	defer p.Shutdown()

	time.Sleep(300 * time.Millisecond)
	res := p.BooleanEvaluation(ctx, "feature_boolean_on", false, openfeature.FlattenedContext{openfeature.TargetingKey: "test-user"})
	results.Check("StaleRefresh(stale read answers)",
		res.ResolutionDetail().ErrorCode == "" || res.ResolutionDetail().ErrorCode == openfeature.FlagNotFoundCode,
		"expected the cached answer, got %s", res.ResolutionDetail().ErrorCode)

	events := p.EventChannel()
	results.Check("StaleRefresh(stale event)", waitFor(events, openfeature.ProviderStale, 5*time.Second),
		"no PROVIDER_STALE after reading an expired bundle")
	results.Check("StaleRefresh(ready event)", waitFor(events, openfeature.ProviderReady, 5*time.Second),
		"no PROVIDER_READY after background refresh")
	results.Check("StaleRefresh(status)", p.Status() == openfeature.ReadyState, "expected READY, got %s", p.Status())
}

// testInitAfterShutdown tests that init fails after shutdown
func testInitAfterShutdown(h *harness) {
	p, ok := initStandalone(h, "InitAfterShutdown", "test-user")
	if !ok {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := p.ShutdownWithContext(shutdownCtx); err != nil {
		results.Fail("InitAfterShutdown(shutdown)", fmt.Sprintf("shutdown failed: %v", err))
		return
	}

	initCtx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	err := p.InitWithContext(initCtx, openfeature.NewEvaluationContext("test-user", nil))

	switch {
	case err == nil:
		results.Fail("InitAfterShutdown", "expected error, got nil")
	case !strings.Contains(err.Error(), "cannot initialize provider after shutdown"):
		results.Fail("InitAfterShutdown", fmt.Sprintf("wrong error message: %v", err))
	default:
		results.Pass("InitAfterShutdown")
	}
}

// testNamedProvider tests creating and using a named provider
func testNamedProvider(ctx context.Context, h *harness) {
	namedProvider, err := h.newProvider()
	if err != nil {
		results.Fail("NamedProvider(create)", fmt.Sprintf("failed to create: %v", err))
		return
	}
	defer namedProvider.Shutdown()

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := openfeature.SetNamedProviderWithContextAndWait(initCtx, "test-toggle", namedProvider); err != nil {
		results.Fail("NamedProvider(init)", fmt.Sprintf("failed to initialize: %v", err))
		return
	}
	results.Pass("NamedProvider(init)")

	namedClient := openfeature.NewClient("test-toggle")
	details, _ := namedClient.BooleanValueDetails(ctx, "feature_boolean_on", false, openfeature.EvaluationContext{})
	if h.local() {
		results.Check("NamedProvider(evaluation)", details.Value, "expected true, got %v (%s)", details.Value, details.ErrorCode)
	} else {
		results.Check("NamedProvider(evaluation)", details.ErrorCode != openfeature.ProviderNotReadyCode,
			"provider not ready after init")
	}
}

// testConcurrentInit tests concurrent InitWithContext calls share one fetch
func testConcurrentInit(ctx context.Context, h *harness) {
	p, err := h.newProvider()
	if err != nil {
		results.Fail("ConcurrentInit(create)", fmt.Sprintf("failed to create: %v", err))
		return
	}
	defer p.Shutdown()

	var before int64
	if h.local() {
		before = h.fake.evaluations.Load()
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			errs <- p.InitWithContext(initCtx, openfeature.NewEvaluationContext("test-user", nil))
		}()
	}
	wg.Wait()
	close(errs)

	failures := 0
	for err := range errs {
		if err != nil {
			failures++
		}
	}
	results.Check("ConcurrentInit(errors)", failures == 0, "%d of 10 init calls failed", failures)
	results.Check("ConcurrentInit(status)", p.Status() == openfeature.ReadyState, "expected READY, got %s", p.Status())

	if h.local() {
		fetches := h.fake.evaluations.Load() - before
		results.Check("ConcurrentInit(single fetch)", fetches == 1, "expected 1 evaluate call, got %d", fetches)
	}
}

// testProviderNotReadyError tests PROVIDER_NOT_READY before Init
func testProviderNotReadyError(h *harness) {
	p, err := h.newProvider()
	if err != nil {
		results.Fail("ProviderNotReady(create)", fmt.Sprintf("failed to create: %v", err))
		return
	}
	defer p.Shutdown()

	res := p.BooleanEvaluation(context.Background(), "feature_boolean_on", false,
		openfeature.FlattenedContext{openfeature.TargetingKey: "test-user"})
	results.Check("ProviderNotReady",
		res.ResolutionDetail().ErrorCode == openfeature.ProviderNotReadyCode,
		"expected PROVIDER_NOT_READY, got %s", res.ResolutionDetail().ErrorCode)
}

// testInitWithContextTimeout tests that a slow service ends Init at the
// caller's deadline with the provider in ERROR
func testInitWithContextTimeout(h *harness) {
	if !h.local() {
		results.Skip("InitTimeout", "needs a controllable service")
		return
	}

	h.fake.slow(5 * time.Second)
	defer h.fake.slow(0)

	p, err := h.newProvider()
	if err != nil {
		results.Fail("InitTimeout(create)", fmt.Sprintf("failed to create: %v", err))
		return
	}
	defer p.Shutdown()

	initCtx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = p.InitWithContext(initCtx, openfeature.NewEvaluationContext("test-user", nil))
	elapsed := time.Since(start)

	results.Check("InitTimeout(returns)", err == nil, "fetch failures should not fail init: %v", err)
	results.Check("InitTimeout(deadline)", elapsed < 2*time.Second, "init took %v", elapsed)
	results.Check("InitTimeout(status)", p.Status() == openfeature.ErrorState, "expected ERROR, got %s", p.Status())
}

// testShutdownDuringInit tests shutdown called while Init waits on the service
func testShutdownDuringInit(h *harness) {
	if !h.local() {
		results.Skip("ShutdownDuringInit", "needs a controllable service")
		return
	}

	h.fake.slow(500 * time.Millisecond)
	defer h.fake.slow(0)

	p, err := h.newProvider()
	if err != nil {
		results.Fail("ShutdownDuringInit(create)", fmt.Sprintf("failed to create: %v", err))
		return
	}

	initErr := make(chan error, 1)
	go func() {
		initErr <- p.InitWithContext(context.Background(), openfeature.NewEvaluationContext("test-user", nil))
	}()

	time.Sleep(100 * time.Millisecond)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.ShutdownWithContext(shutdownCtx); err != nil {
		results.Fail("ShutdownDuringInit(shutdown)", err.Error())
	}

	select {
	case err := <-initErr:
		results.Check("ShutdownDuringInit", err != nil && strings.Contains(err.Error(), "shut down"),
			"expected a shutdown error from init, got %v", err)
	case <-time.After(5 * time.Second):
		results.Fail("ShutdownDuringInit", "init did not return")
	}
	results.Check("ShutdownDuringInit(status)", p.Status() == openfeature.NotReadyState,
		"expected NOT_READY, got %s", p.Status())
}

// testStatusAtomicity tests Status() while the provider shuts down
func testStatusAtomicity(h *harness) {
	p, ok := initStandalone(h, "StatusAtomicity", "test-user")
	if !ok {
		return
	}

	var (
		wg      sync.WaitGroup
		invalid sync.Map
	)
	done := make(chan struct{})
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					switch s := p.Status(); s {
					case openfeature.ReadyState, openfeature.NotReadyState:
					default:
						invalid.Store(s, true)
					}
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	p.Shutdown()
	close(done)
	wg.Wait()

	var seen []string
	invalid.Range(func(k, _ any) bool {
		seen = append(seen, string(k.(openfeature.State)))
		return true
	})
	results.Check("StatusAtomicity", len(seen) == 0, "unexpected states observed: %v", seen)
}

// testDoubleShutdown tests shutdown idempotency
func testDoubleShutdown(h *harness) {
	p, ok := initStandalone(h, "DoubleShutdown", "test-user")
	if !ok {
		return
	}

	first := p.ShutdownWithContext(context.Background())
	second := p.ShutdownWithContext(context.Background())
	results.Check("DoubleShutdown", first == nil && second == nil,
		"expected both shutdowns to succeed, got %v and %v", first, second)
}
