// Package main is an end to end test suite for the Toggle OpenFeature provider.
//
// It drives the provider through the OpenFeature SDK the way an application
// would and doubles as a reference for wiring it up:
//
//   - Structured, colored logging with slog and tint
//   - Event handling (PROVIDER_READY, PROVIDER_ERROR, PROVIDER_STALE,
//     PROVIDER_CONFIGURATION_CHANGED)
//   - All evaluation types and evaluation details
//   - Context switching, stale bundles and background refresh
//   - Lifecycle edge cases: concurrent init, init timeout, shutdown during
//     init, double shutdown
//
// Without HYPHEN_PUBLIC_KEY the suite starts an in-process Toggle service
// serving testdata/bundles.json and checks exact values. With a key it talks
// to the hosted service (HYPHEN_APPLICATION and HYPHEN_ENVIRONMENT are then
// required) and only checks behavior that does not depend on flag contents.
//
//	Run against the fake service: go run ./test/integration
//	Run against Toggle:           HYPHEN_PUBLIC_KEY=public_... go run ./test/integration
//
// Exit codes:
//   - 0: All tests passed
//   - 1: One or more tests failed
//   - 2: Timeout or fatal error
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/open-feature/go-sdk/openfeature"
	"github.com/open-feature/go-sdk/openfeature/hooks"

	toggle "github.com/hyphen/toggle-openfeature-go"
)

// harness carries what every test needs to build its own provider.
type harness struct {
	logger *slog.Logger
	cfg    toggle.Config
	fake   *fakeService
}

// local reports whether the suite runs against the fixture service.
func (h *harness) local() bool { return h.fake != nil }

// newProvider returns an uninitialized provider with the suite's config.
func (h *harness) newProvider(opts ...toggle.Option) (*toggle.Provider, error) {
	base := []toggle.Option{toggle.WithLogger(h.logger)}
	if h.local() {
		base = append(base, toggle.WithCustomURLs(h.fake.URL), toggle.WithHTTPClient(h.fake.Client()))
	}
	return toggle.New(h.cfg, append(base, opts...)...)
}

func main() {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("   Toggle OpenFeature Provider - Integration Test Suite")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cleanupSuccess := true
	exitCode := 0

	// ============================================================
	// 1. LOGGING CONFIGURATION (with colored output via tint)
	// ============================================================

	logLevel := toggle.ParseLogLevel(os.Getenv("LOG_LEVEL"))
	baseLogger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.TimeOnly,
	}))
	appLogger := baseLogger.With("source", "app")
	ofLogger := baseLogger.With("source", "openfeature-sdk")
	slog.SetDefault(baseLogger)

	section("LOGGING CONFIGURATION")
	appLogger.Info("logging configured", "format", "tint (colored)", "level", logLevel.String())

	// ============================================================
	// 2. OPENFEATURE LOGGING HOOK
	// ============================================================
	section("OPENFEATURE LOGGING HOOK")
	openfeature.AddHooks(hooks.NewLoggingHook(false, ofLogger))

	// ============================================================
	// 3. EVENT HANDLERS
	// ============================================================
	section("EVENT HANDLERS")

	var eventsReceived sync.Map
	handleEvent := func(eventType openfeature.EventType) openfeature.EventCallback {
		callback := func(details openfeature.EventDetails) {
			val, _ := eventsReceived.LoadOrStore(eventType, new(atomic.Int64))
			count := val.(*atomic.Int64).Add(1)
			slog.Info("event received",
				"type", eventType,
				"provider", details.ProviderName,
				"message", details.Message,
				"flags_changed", len(details.FlagChanges),
				"count", count)
		}
		return &callback
	}
	for _, t := range []openfeature.EventType{
		openfeature.ProviderReady,
		openfeature.ProviderError,
		openfeature.ProviderStale,
		openfeature.ProviderConfigChange,
	} {
		openfeature.AddHandler(t, handleEvent(t))
	}

	// ============================================================
	// 4. TOGGLE CONFIGURATION
	// ============================================================
	section("TOGGLE CONFIGURATION")

	h := &harness{logger: baseLogger}
	cfg, err := toggle.ConfigFromEnv()
	if err != nil {
		appLogger.Error("invalid environment", "error", err)
		os.Exit(2)
	}
	if cfg.PublicKey == "" {
		fake, err := newFakeService(baseLogger.With("source", "fake-service"))
		if err != nil {
			appLogger.Error("failed to start fake service", "error", err)
			os.Exit(2)
		}
		defer fake.Close()
		h.fake = fake

		cfg.PublicKey = "public_aW50ZWdyYXRpb246c2VjcmV0" // integration:secret
		cfg.Application = "integration"
		cfg.Environment = "test"
		cfg.Network.Timeout = 2 * time.Second
		cfg.Network.RetryBaseDelay = 10 * time.Millisecond
		appLogger.Info("no HYPHEN_PUBLIC_KEY provided, using in-process service", "url", fake.URL)
	} else {
		appLogger.Info("using Toggle service", "application", cfg.Application, "environment", cfg.Environment)
	}
	h.cfg = cfg

	// ============================================================
	// 5. PROVIDER CREATION AND INITIALIZATION
	// ============================================================
	section("PROVIDER INITIALIZATION")

	provider, err := h.newProvider()
	if err != nil {
		appLogger.Error("failed to create provider", "error", err)
		os.Exit(2)
	}

	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic during shutdown", "panic", r)
					cleanupSuccess = false
				}
			}()

			fmt.Println()
			fmt.Println(strings.Repeat("─", 60))
			slog.Info("initiating graceful shutdown")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := openfeature.ShutdownWithContext(shutdownCtx); err != nil {
				slog.Error("shutdown error", "error", err)
				cleanupSuccess = false
			}
			slog.Info("graceful shutdown complete")
		})
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The bundle is fetched for the global context, so set it first
	openfeature.SetEvaluationContext(openfeature.NewEvaluationContext("test-user", map[string]any{
		"plan": "premium",
	}))

	initCtx, initCancel := context.WithTimeout(ctx, 15*time.Second)
	defer initCancel()
	if err := openfeature.SetProviderWithContextAndWait(initCtx, provider); err != nil {
		appLogger.Error("failed to initialize provider", "error", err)
		cleanup()
		os.Exit(2)
	}
	appLogger.Info("provider initialized", "status", provider.Status())

	client := openfeature.NewDefaultClient()

	// ============================================================
	// RUN ALL TESTS
	// ============================================================
	section("RUNNING TESTS")
	runTests(ctx, h, client, provider, &eventsReceived)

	results.Summary()

	fmt.Println()
	fmt.Println("Event Statistics:")
	eventsReceived.Range(func(key, value any) bool {
		fmt.Printf("  %s: %d events\n", key.(openfeature.EventType), value.(*atomic.Int64).Load())
		return true
	})
	if h.local() {
		fmt.Printf("Fake service: %d evaluate calls, %d telemetry posts\n",
			h.fake.evaluations.Load(), h.fake.telemetry.Load())
	}

	cleanup()

	switch {
	case !cleanupSuccess, results.total.Load() == 0:
		exitCode = 2
	case results.failed.Load() > 0:
		exitCode = 1
	}
	os.Exit(exitCode)
}

// runTests executes every test. Provider-specific tests build their own
// providers so the shared one stays ready.
func runTests(ctx context.Context, h *harness, client *openfeature.Client, provider *toggle.Provider, eventsReceived *sync.Map) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during test execution", "panic", r)
			results.Fail("panic", fmt.Sprintf("test execution panicked: %v", r))
		}
	}()

	section("BOOLEAN FLAG EVALUATIONS")
	testBooleanEvaluations(ctx, h, client)

	section("STRING FLAG EVALUATIONS")
	testStringEvaluations(ctx, h, client)

	section("NUMERIC FLAG EVALUATIONS")
	testNumericEvaluations(ctx, h, client)

	section("OBJECT FLAG EVALUATIONS")
	testObjectEvaluations(ctx, h, client)

	section("EVALUATION DETAILS")
	testEvaluationDetails(ctx, h, client)

	section("ERROR HANDLING")
	testErrorHandling(ctx, h, client)

	section("CONTEXT CANCELLATION")
	testContextCancellation(client)

	section("CONCURRENT EVALUATIONS")
	testConcurrentEvaluations(ctx, client)

	section("PROVIDER STATUS & HEALTH")
	testProviderHealth(provider)

	section("EVENT TRACKING VALIDATION")
	testEventTracking(eventsReceived)

	section("CONTEXT SWITCHING")
	testContextSwitching(ctx, h)

	section("STALE BUNDLE REFRESH")
	testStaleRefresh(ctx, h)

	section("INIT AFTER SHUTDOWN")
	testInitAfterShutdown(h)

	section("NAMED PROVIDER SUPPORT")
	testNamedProvider(ctx, h)

	section("CONCURRENT INIT CALLS")
	testConcurrentInit(ctx, h)

	section("PROVIDER_NOT_READY ERROR")
	testProviderNotReadyError(h)

	section("INIT TIMEOUT")
	testInitWithContextTimeout(h)

	section("SHUTDOWN DURING INIT")
	testShutdownDuringInit(h)

	section("STATUS ATOMICITY")
	testStatusAtomicity(h)

	section("DOUBLE SHUTDOWN")
	testDoubleShutdown(h)
}
