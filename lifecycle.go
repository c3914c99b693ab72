package toggle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	of "github.com/open-feature/go-sdk/openfeature"
)

// Init implements StateHandler for backward compatibility.
// Delegates to InitWithContext with a 45 second timeout, enough for the
// default request timeout across the default number of attempts.
func (p *Provider) Init(evaluationContext of.EvaluationContext) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultInitTimeout)
	defer cancel()

	return p.InitWithContext(ctx, evaluationContext)
}

// InitWithContext initializes the provider with context support.
//
// This method implements the ContextAwareStateHandler interface. It fetches
// the evaluation bundle for evaluationContext and starts the background
// monitor that forwards lifecycle signals and refreshes stale bundles.
//
// The initial context must carry a targeting key; without one Init fails
// and emits PROVIDER_ERROR. A failed fetch does not fail Init: the error is
// logged, PROVIDER_ERROR is emitted, Status reports ErrorState, and
// evaluations return their defaults with GENERAL until a later
// OnContextChanged fetch succeeds. With no bundle cached, reads never go
// stale, so there is no background retry.
//
// The context bounds the fetch, retries included. Concurrent calls share a
// single initialization.
func (p *Provider) InitWithContext(ctx context.Context, evaluationContext of.EvaluationContext) error {
	p.initMu.Lock()
	defer p.initMu.Unlock()

	// A shut down provider has a closed event channel and signal
	if atomic.LoadUint32(&p.shutdown) == shutdownStateActive {
		return fmt.Errorf("cannot initialize provider after shutdown: provider has been permanently shut down, create a new provider instance")
	}

	// Fast path: check if already initialized with read lock only
	p.mtx.RLock()
	if p.initialized {
		p.mtx.RUnlock()
		p.logger.Debug("provider already initialized")
		return nil
	}
	p.mtx.RUnlock()

	_, err, _ := p.initGroup.Do("init", func() (any, error) {
		fc := flatten(evaluationContext)
		p.logger.Debug("fetching initial evaluation", "targeting_key", targetingKeyOf(fc))

		if err := p.service.Evaluate(ctx, fc); err != nil {
			errMsg := fmt.Errorf("initial evaluation: %w", err)
			p.emitEvent(&of.Event{
				ProviderName: p.Metadata().Name,
				EventType:    of.ProviderError,
				ProviderEventDetails: of.ProviderEventDetails{
					Message:   errMsg.Error(),
					ErrorCode: errorCodeFor(err),
				},
			})
			return nil, errMsg
		}

		// Subscribing after the first fetch keeps its ContextChanged signal
		// from racing the READY event below.
		events, unsubscribe := p.service.Subscribe(signalBuffer)

		// Check shutdown and start monitoring under the write lock so that
		// Shutdown either sees initialized and waits for monitorDone, or we
		// see the shutdown flag and never start the monitor.
		p.mtx.Lock()
		if atomic.LoadUint32(&p.shutdown) == shutdownStateActive {
			p.mtx.Unlock()
			unsubscribe()
			return nil, fmt.Errorf("provider was shut down during initialization")
		}

		fetchErr := p.service.LastError()
		bundle, _, hasBundle := p.service.Bundle()
		if !hasBundle && fetchErr != nil {
			p.state = of.ErrorState
		} else {
			p.state = of.ReadyState
		}
		p.initialized = true
		go p.monitorEvents(events, unsubscribe)
		p.mtx.Unlock()

		if !hasBundle && fetchErr != nil {
			p.logger.Warn("initial evaluation failed, serving defaults until a fetch succeeds", "error", fetchErr)
			p.emitEvent(&of.Event{
				ProviderName: p.Metadata().Name,
				EventType:    of.ProviderError,
				ProviderEventDetails: of.ProviderEventDetails{
					Message:   fmt.Sprintf("initial evaluation failed: %v", fetchErr),
					ErrorCode: of.GeneralCode,
				},
			})
			return nil, nil
		}

		toggleCount := 0
		if bundle != nil {
			toggleCount = len(bundle.Toggles)
		}

		p.emitEvent(&of.Event{
			ProviderName: p.Metadata().Name,
			EventType:    of.ProviderReady,
			ProviderEventDetails: of.ProviderEventDetails{
				Message: "Toggle provider initialized successfully",
			},
		})

		p.logger.Info("Toggle provider ready", "toggles_loaded", toggleCount)
		return nil, nil
	})

	return err
}

// OnContextChanged re-evaluates flags for newContext.
//
// Drivers that switch subjects (for example a CLI acting for several users,
// or a worker processing one tenant at a time) call it whenever the
// evaluation context changes. The bundle for oldContext keeps answering
// until the new one is cached; it then answers only for the new targeting
// key. A successful fetch emits PROVIDER_CONFIGURATION_CHANGED.
//
// Like Init, only a missing targeting key is returned as an error; fetch
// failures are logged and leave the cached bundle in place.
func (p *Provider) OnContextChanged(ctx context.Context, oldContext, newContext of.EvaluationContext) error {
	if atomic.LoadUint32(&p.shutdown) == shutdownStateActive {
		return fmt.Errorf("cannot change context: provider has been shut down")
	}

	oldFlat, newFlat := flatten(oldContext), flatten(newContext)
	p.logger.Debug("evaluation context changed",
		"old_targeting_key", targetingKeyOf(oldFlat),
		"new_targeting_key", targetingKeyOf(newFlat),
		"equal", contextsEqual(oldFlat, newFlat))

	if err := p.service.Evaluate(ctx, newFlat); err != nil {
		return fmt.Errorf("change context: %w", err)
	}
	return nil
}

// Shutdown implements StateHandler for backward compatibility.
//
// Delegates to ShutdownWithContext with a 30 second timeout.
// See ShutdownWithContext for detailed best effort shutdown semantics.
func (p *Provider) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	_ = p.ShutdownWithContext(ctx) //nolint:errcheck // Shutdown() has no return value per OpenFeature interface
}

// ShutdownWithContext gracefully shuts down the provider with context support.
//
// This method implements the ContextAwareStateHandler interface.
//
// # Return Values
//
// Returns nil if shutdown completes within the context deadline, or ctx.Err()
// if the context expires while waiting for the monitor goroutine. Even when
// an error is returned the provider is logically shut down: the shutdown flag
// is set immediately and new evaluations fail with PROVIDER_NOT_READY.
//
// # Shutdown Behavior
//
//  1. The monitor goroutine is stopped; an in-flight background refresh is canceled
//  2. The event channel is closed
//  3. The service signal is closed, ending every subscription
//
// In-flight telemetry requests are not awaited; they finish or time out on
// their own. Calling ShutdownWithContext more than once is safe.
func (p *Provider) ShutdownWithContext(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&p.shutdown, shutdownStateInactive, shutdownStateActive) {
		p.logger.Debug("provider already shut down")
		return nil
	}

	p.logger.Debug("shutting down Toggle provider")

	var shutdownErr error

	p.mtx.Lock()
	close(p.stopMonitor)
	wasInitialized := p.initialized
	p.mtx.Unlock()

	if wasInitialized {
		p.logger.Debug("waiting for background monitoring to stop")
		select {
		case <-p.monitorDone:
			p.logger.Debug("background monitoring stopped")
		case <-ctx.Done():
			shutdownErr = ctx.Err()
			p.logger.Warn("context deadline exceeded while waiting for monitoring goroutine, forcing shutdown",
				"reason", "monitoring goroutine may still be running",
				"error", shutdownErr)
		}
	} else {
		p.logger.Debug("provider was never initialized, skipping monitoring cleanup")
	}

	p.mtx.Lock()
	close(p.eventStream)
	p.state = of.NotReadyState
	p.mtx.Unlock()

	p.service.close()

	if shutdownErr != nil {
		p.logger.Warn("Toggle provider shutdown completed with errors",
			"error", shutdownErr,
			"note", "provider is logically shut down but cleanup may be incomplete")
		return shutdownErr
	}

	p.logger.Debug("Toggle provider shut down successfully")
	return nil
}

// Status returns the current state of the provider:
//   - NotReadyState: not initialized yet, or shut down
//   - ReadyState: a bundle is cached and fresh
//   - StaleState: a read observed an expired bundle and no fetch has succeeded since
//   - ErrorState: the initial fetch failed and no bundle is cached
func (p *Provider) Status() of.State {
	p.mtx.RLock()
	shutdown := atomic.LoadUint32(&p.shutdown) == shutdownStateActive
	state := p.state
	p.mtx.RUnlock()

	if shutdown {
		return of.NotReadyState
	}
	return state
}

// Metrics returns the current health of the provider for diagnostics:
//   - provider: Provider name
//   - initialized: Whether Init completed
//   - status: Current state
//   - ready: Whether evaluations are being served from a cached bundle
//   - cached_toggles: Number of toggles in the cached bundle (only with a bundle)
//   - expired: Whether the cached bundle is past its TTL (only with a bundle)
//   - targeting_key: Targeting key of the cached bundle (only with a bundle)
//   - last_error: Error of the most recent failed fetch (only after a failure)
//
// Prometheus counters are exposed separately through the registerer given
// to WithMetricsRegisterer.
//
// Example:
//
//	health := provider.Metrics()
//	fmt.Printf("Provider: %s, Status: %s, Toggles: %v\n",
//	    health["provider"], health["status"], health["cached_toggles"])
func (p *Provider) Metrics() map[string]any {
	shutdown := atomic.LoadUint32(&p.shutdown) == shutdownStateActive

	p.mtx.RLock()
	initialized := p.initialized
	p.mtx.RUnlock()

	status := p.Status()
	bundle, expired, hasBundle := p.service.Bundle()

	health := map[string]any{
		"provider":    ProviderName,
		"initialized": initialized && !shutdown,
		"status":      string(status),
		"ready":       !shutdown && hasBundle && (status == of.ReadyState || status == of.StaleState),
	}

	if hasBundle {
		health["cached_toggles"] = len(bundle.Toggles)
		health["expired"] = expired
		health["targeting_key"] = bundle.TargetingKey
	}
	if err := p.service.LastError(); err != nil {
		health["last_error"] = err.Error()
	}

	return health
}

func errorCodeFor(err error) of.ErrorCode {
	if errors.Is(err, ErrTargetingKeyMissing) {
		return of.TargetingKeyMissingCode
	}
	return of.GeneralCode
}
