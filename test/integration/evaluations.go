// evaluations.go contains flag evaluation tests for all types, evaluation
// details, error handling, context cancellation and concurrency.
package main

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/open-feature/go-sdk/openfeature"

	toggle "github.com/hyphen/toggle-openfeature-go"
)

// testBooleanEvaluations tests boolean flag evaluations (on/off)
func testBooleanEvaluations(ctx context.Context, h *harness, client *openfeature.Client) {
	if !h.local() {
		results.Skip("Boolean", "flag contents unknown for the hosted service")
		return
	}

	tests := []struct {
		flag     string
		expected bool
	}{
		{"feature_boolean_on", true},
		{"feature_boolean_off", false},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("Boolean(%s)", tt.flag)
		value, err := client.BooleanValue(ctx, tt.flag, !tt.expected, openfeature.EvaluationContext{})
		if err != nil {
			results.Fail(name, err.Error())
			continue
		}
		results.Check(name, value == tt.expected, "expected %v, got %v", tt.expected, value)
	}
}

// testStringEvaluations tests string flag evaluations
func testStringEvaluations(ctx context.Context, h *harness, client *openfeature.Client) {
	if !h.local() {
		results.Skip("String", "flag contents unknown for the hosted service")
		return
	}

	tests := []struct {
		flag     string
		expected string
	}{
		{"ui_theme", "dark"},
		{"api_version", "v2"},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("String(%s)", tt.flag)
		value, err := client.StringValue(ctx, tt.flag, "", openfeature.EvaluationContext{})
		if err != nil {
			results.Fail(name, err.Error())
			continue
		}
		results.Check(name, value == tt.expected, "expected %q, got %q", tt.expected, value)
	}
}

// testNumericEvaluations tests integer and float flags, including that
// numbers are not converted between the two
func testNumericEvaluations(ctx context.Context, h *harness, client *openfeature.Client) {
	if !h.local() {
		results.Skip("Numeric", "flag contents unknown for the hosted service")
		return
	}

	for flag, expected := range map[string]int64{"max_retries": 5, "page_size": 50} {
		name := fmt.Sprintf("Int(%s)", flag)
		value, err := client.IntValue(ctx, flag, 0, openfeature.EvaluationContext{})
		if err != nil {
			results.Fail(name, err.Error())
			continue
		}
		results.Check(name, value == expected, "expected %d, got %d", expected, value)
	}

	rate, err := client.FloatValue(ctx, "discount_rate", 0, openfeature.EvaluationContext{})
	if err != nil {
		results.Fail("Float(discount_rate)", err.Error())
	} else {
		results.Check("Float(discount_rate)", rate == 0.15, "expected 0.15, got %v", rate)
	}

	details, _ := client.FloatValueDetails(ctx, "max_retries", 1.5, openfeature.EvaluationContext{})
	results.Check("Float(max_retries) is a parse error",
		details.ErrorCode == openfeature.ParseErrorCode && details.Value == 1.5,
		"expected PARSE_ERROR with default, got %s %v", details.ErrorCode, details.Value)
}

// testObjectEvaluations tests structured flags, including objects delivered
// as JSON strings
func testObjectEvaluations(ctx context.Context, h *harness, client *openfeature.Client) {
	if !h.local() {
		results.Skip("Object", "flag contents unknown for the hosted service")
		return
	}

	value, err := client.ObjectValue(ctx, "premium_features", nil, openfeature.EvaluationContext{})
	if err != nil {
		results.Fail("Object(premium_features)", err.Error())
	} else {
		expected := map[string]any{"analytics": true, "seats": int64(25), "regions": []any{"eu", "us"}}
		results.Check("Object(premium_features)", reflect.DeepEqual(value, expected), "expected %v, got %v", expected, value)
	}

	layout, err := client.ObjectValue(ctx, "layout", nil, openfeature.EvaluationContext{})
	if err != nil {
		results.Fail("Object(layout)", err.Error())
	} else {
		expected := map[string]any{"columns": int64(3), "sidebar": "left"}
		results.Check("Object(layout) from JSON string", reflect.DeepEqual(layout, expected), "expected %v, got %v", expected, layout)
	}
}

// testEvaluationDetails tests reason and type metadata on details
func testEvaluationDetails(ctx context.Context, h *harness, client *openfeature.Client) {
	if !h.local() {
		results.Skip("EvaluationDetails", "flag contents unknown for the hosted service")
		return
	}

	details, err := client.BooleanValueDetails(ctx, "feature_boolean_on", false, openfeature.EvaluationContext{})
	if err != nil {
		results.Fail("EvaluationDetails", err.Error())
		return
	}
	results.Check("EvaluationDetails(flagKey)", details.FlagKey == "feature_boolean_on", "got %q", details.FlagKey)
	results.Check("EvaluationDetails(reason)", details.Reason == "rule match", "expected server reason, got %q", details.Reason)

	typ, _ := details.FlagMetadata.GetString(toggle.MetadataTypeKey)
	results.Check("EvaluationDetails(metadata)", typ == "boolean", "expected type boolean, got %q", typ)

	theme, _ := client.StringValueDetails(ctx, "ui_theme", "", openfeature.EvaluationContext{})
	results.Check("EvaluationDetails(default reason)", theme.Reason == openfeature.TargetingMatchReason,
		"expected %s without a server reason, got %q", openfeature.TargetingMatchReason, theme.Reason)
}

// testErrorHandling tests the error codes returned alongside defaults
func testErrorHandling(ctx context.Context, h *harness, client *openfeature.Client) {
	missing, _ := client.StringValueDetails(ctx, "does_not_exist", "fallback", openfeature.EvaluationContext{})
	results.Check("Error(FLAG_NOT_FOUND)",
		missing.ErrorCode == openfeature.FlagNotFoundCode && missing.Value == "fallback",
		"expected FLAG_NOT_FOUND with default, got %s %q", missing.ErrorCode, missing.Value)

	other := openfeature.NewEvaluationContext("someone-else", nil)
	mismatch, _ := client.StringValueDetails(ctx, "ui_theme", "fallback", other)
	results.Check("Error(INVALID_CONTEXT)",
		mismatch.ErrorCode == openfeature.InvalidContextCode && mismatch.Value == "fallback",
		"expected INVALID_CONTEXT for another subject, got %s %q", mismatch.ErrorCode, mismatch.Value)

	if !h.local() {
		results.Skip("Error(PARSE_ERROR)", "flag contents unknown for the hosted service")
		return
	}
	broken, _ := client.BooleanValueDetails(ctx, "broken_boolean", true, openfeature.EvaluationContext{})
	results.Check("Error(PARSE_ERROR)",
		broken.ErrorCode == openfeature.ParseErrorCode && broken.Value,
		"expected PARSE_ERROR with default, got %s %v", broken.ErrorCode, broken.Value)
}

// testContextCancellation tests behavior when context is cancelled
func testContextCancellation(client *openfeature.Client) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	value, _ := client.BooleanValueDetails(ctx, "feature_boolean_on", false, openfeature.EvaluationContext{})
	results.Check("ContextCancellation",
		!value.Value && value.ErrorCode == openfeature.GeneralCode,
		"expected default with GENERAL, got %v %s", value.Value, value.ErrorCode)
}

// testConcurrentEvaluations tests concurrent flag evaluations
func testConcurrentEvaluations(ctx context.Context, client *openfeature.Client) {
	const (
		goroutines = 100
		perRoutine = 10
	)

	var (
		wg     sync.WaitGroup
		errors atomic.Int64
	)
	start := time.Now()
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perRoutine {
				if _, err := client.StringValue(ctx, "ui_theme", "light", openfeature.EvaluationContext{}); err != nil {
					errors.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	results.Check("ConcurrentEvaluations", errors.Load() == 0 || errors.Load() == goroutines*perRoutine,
		"inconsistent results: %d of %d failed", errors.Load(), goroutines*perRoutine)
	results.Check("ConcurrentEvaluations(latency)", elapsed < 5*time.Second,
		"%d evaluations took %v", goroutines*perRoutine, elapsed)
}

// testProviderHealth tests provider status and metrics
func testProviderHealth(provider *toggle.Provider) {
	results.Check("Health(status)", provider.Status() == openfeature.ReadyState,
		"expected READY, got %s", provider.Status())

	health := provider.Metrics()
	results.Check("Health(provider)", health["provider"] == toggle.ProviderName, "got %v", health["provider"])
	results.Check("Health(initialized)", health["initialized"] == true, "got %v", health["initialized"])
	results.Check("Health(targeting_key)", health["targeting_key"] == "test-user", "got %v", health["targeting_key"])
	_, hasCount := health["cached_toggles"]
	results.Check("Health(cached_toggles)", hasCount, "missing cached_toggles in %v", health)
}

// testEventTracking tests that the initial READY event reached the handlers
func testEventTracking(eventsReceived *sync.Map) {
	val, ok := eventsReceived.Load(openfeature.ProviderReady)
	if !ok {
		results.Fail("EventTracking(READY)", "no PROVIDER_READY event received")
		return
	}
	count := val.(*atomic.Int64).Load()
	results.Check("EventTracking(READY)", count >= 1, "expected at least one READY, got %d", count)
}
