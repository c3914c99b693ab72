package toggle

import (
	"context"
	"maps"
	"slices"
	"sync/atomic"

	of "github.com/open-feature/go-sdk/openfeature"

	"github.com/hyphen/toggle-openfeature-go/internal/signal"
)

// EventChannel returns a channel for receiving provider lifecycle events.
//
// This method implements the EventHandler interface. The OpenFeature SDK
// uses this channel to receive events about provider state changes.
//
// Events Emitted:
//   - PROVIDER_READY: Init fetched a bundle, or a fetch succeeded after the
//     provider was stale or in error
//   - PROVIDER_ERROR: the initial fetch failed or the initial context has
//     no targeting key
//   - PROVIDER_STALE: a read was served from an expired bundle
//   - PROVIDER_CONFIGURATION_CHANGED: a new bundle was cached, either by
//     OnContextChanged or by a background refresh
//
// PROVIDER_STALE is emitted once per transition, not once per stale read.
//
// The channel is buffered (128 events) to prevent blocking event emission.
// It is closed by Shutdown.
//
// Example:
//
//	openfeature.AddHandler(openfeature.ProviderStale, func(details openfeature.EventDetails) {
//	    log.Println("serving cached flags while the provider refreshes")
//	})
func (p *Provider) EventChannel() <-chan of.Event {
	return p.eventStream
}

// emitEvent sends an event to the event channel without blocking.
//
// If the channel buffer is full, the event is dropped and a warning is logged.
// If the provider is shut down and the channel is closed, the send is silently ignored.
func (p *Provider) emitEvent(event *of.Event) {
	if atomic.LoadUint32(&p.shutdown) == shutdownStateActive {
		return
	}

	p.mtx.RLock()
	defer p.mtx.RUnlock()

	// Double-check shutdown after acquiring lock
	if atomic.LoadUint32(&p.shutdown) == shutdownStateActive {
		return
	}

	select {
	case p.eventStream <- *event:
	default:
		p.logger.Warn("event channel full, dropping event", "eventType", event.EventType)
	}
}

func (p *Provider) emit(eventType of.EventType, message string) {
	p.emitEvent(&of.Event{
		ProviderName: p.Metadata().Name,
		EventType:    eventType,
		ProviderEventDetails: of.ProviderEventDetails{
			Message: message,
		},
	})
}

// setState records a new state and returns the previous one.
func (p *Provider) setState(state of.State) of.State {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	prev := p.state
	p.state = state
	return prev
}

// monitorEvents runs in a background goroutine, translating service signals
// into provider state and OpenFeature events.
//
// On Stale it marks the provider stale and, when refresh on stale is
// enabled, re-evaluates the last known context. On ContextChanged it
// marks the provider ready again.
//
// Panic Recovery:
// If a panic occurs, the goroutine recovers, logs the error, and terminates
// gracefully so that monitorDone is always closed and shutdown never hangs.
func (p *Provider) monitorEvents(events <-chan signal.Event, unsubscribe func()) {
	ctx, cancel := context.WithCancel(context.Background())

	defer func() {
		// Panic recovery MUST be first defer to catch any panic
		// before closing monitorDone
		if r := recover(); r != nil {
			p.logger.Error("monitoring goroutine panicked, terminating gracefully", "panic", r)
		}
		cancel()
		unsubscribe()
		close(p.monitorDone)
		p.logger.Debug("monitoring goroutine stopped")
	}()

	// An in-flight refresh is abandoned on shutdown.
	go func() {
		select {
		case <-p.stopMonitor:
			cancel()
		case <-ctx.Done():
		}
	}()

	p.logger.Debug("starting background event monitoring", "refresh_on_stale", p.refreshOnStale)

	for {
		select {
		case <-p.stopMonitor:
			p.logger.Debug("received shutdown signal, stopping monitoring")
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			switch event {
			case signal.Stale:
				p.handleStale(ctx)
			case signal.ContextChanged:
				p.handleContextChanged()
			}
		}
	}
}

func (p *Provider) handleStale(ctx context.Context) {
	// Signals queued before a refresh landed are obsolete.
	if _, expired, ok := p.service.Bundle(); ok && !expired {
		return
	}

	if prev := p.setState(of.StaleState); prev != of.StaleState {
		p.logger.Info("cached evaluation expired, serving stale values")
		p.emit(of.ProviderStale, "cached evaluation expired")
	}

	if !p.refreshOnStale {
		return
	}

	p.logger.Debug("refreshing stale evaluation")
	if err := p.service.Refresh(ctx); err != nil {
		p.logger.Warn("stale refresh failed", "error", err)
	}
}

func (p *Provider) handleContextChanged() {
	if prev := p.setState(of.ReadyState); prev != of.ReadyState {
		p.emit(of.ProviderReady, "evaluation refreshed")
	}
	bundle, _, _ := p.service.Bundle()
	count := 0
	if bundle != nil {
		count = len(bundle.Toggles)
	}
	p.logger.Debug("evaluation changed", "toggles", count)
	p.emitEvent(&of.Event{
		ProviderName: p.Metadata().Name,
		EventType:    of.ProviderConfigChange,
		ProviderEventDetails: of.ProviderEventDetails{
			Message:     "evaluation updated",
			FlagChanges: toggleKeys(bundle),
		},
	})
}

func toggleKeys(bundle *EvaluationBundle) []string {
	if bundle == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(bundle.Toggles))
}
