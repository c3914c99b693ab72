package toggle

import (
	"context"
	"testing"
	"time"

	of "github.com/open-feature/go-sdk/openfeature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTelemetryHookThroughSDK runs an evaluation through the OpenFeature
// client and checks the usage report it produces.
func TestTelemetryHookThroughSDK(t *testing.T) {
	srv := newToggleServer(t)
	p := newTestProvider(t, srv)

	of.SetEvaluationContext(of.NewEvaluationContext("u1", map[string]any{"plan": "pro"}))
	t.Cleanup(func() { of.SetEvaluationContext(of.EvaluationContext{}) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, of.SetNamedProviderWithContextAndWait(ctx, t.Name(), p))

	client := of.NewClient(t.Name())
	details, err := client.IntValueDetails(context.Background(), "f1", 20, of.EvaluationContext{})
	require.NoError(t, err)
	assert.Equal(t, int64(84), details.Value)
	assert.Equal(t, of.Reason("rule match"), details.Reason)

	var payload map[string]any
	select {
	case payload = <-srv.received:
	case <-time.After(5 * time.Second):
		t.Fatal("no telemetry received")
	}

	data := payload["data"].(map[string]any)["toggle"].(map[string]any)
	assert.Equal(t, "f1", data["key"])
	assert.Equal(t, "number", data["type"], "declared type from flag metadata")
	assert.Equal(t, float64(84), data["value"])
	assert.Equal(t, "rule match", data["reason"])

	evalCtx := payload["context"].(map[string]any)
	assert.Equal(t, "u1", evalCtx["targetingKey"])
	assert.Equal(t, "app", evalCtx["application"])
	custom := evalCtx["customAttributes"].(map[string]any)
	assert.Equal(t, "pro", custom["plan"])
	assert.Equal(t, BuildDebug, custom["buildConfiguration"])
}

// TestTelemetryHookReportsFailedReads verifies reads that fall back to the
// default are reported too, with their error message and the OpenFeature
// type name.
func TestTelemetryHookReportsFailedReads(t *testing.T) {
	srv := newToggleServer(t)
	p := newTestProvider(t, srv)

	of.SetEvaluationContext(of.NewEvaluationContext("u1", nil))
	t.Cleanup(func() { of.SetEvaluationContext(of.EvaluationContext{}) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, of.SetNamedProviderWithContextAndWait(ctx, t.Name(), p))

	client := of.NewClient(t.Name())

	missing, err := client.StringValueDetails(context.Background(), "missing", "fallback", of.EvaluationContext{})
	require.Error(t, err)
	assert.Equal(t, of.FlagNotFoundCode, missing.ErrorCode)

	foreign, err := client.IntValueDetails(context.Background(), "f1", 20, of.NewEvaluationContext("someone-else", nil))
	require.Error(t, err)
	assert.Equal(t, of.InvalidContextCode, foreign.ErrorCode)

	ok, err := client.IntValue(context.Background(), "f1", 20, of.EvaluationContext{})
	require.NoError(t, err)
	assert.Equal(t, int64(84), ok)

	reports := make(map[string]map[string]any)
	for range 3 {
		select {
		case payload := <-srv.received:
			data := payload["data"].(map[string]any)["toggle"].(map[string]any)
			subject := payload["context"].(map[string]any)["targetingKey"].(string)
			reports[data["key"].(string)+"/"+subject] = data
		case <-time.After(5 * time.Second):
			t.Fatalf("received %d of 3 telemetry reports", len(reports))
		}
	}

	require.Contains(t, reports, "missing/u1")
	assert.Equal(t, "string", reports["missing/u1"]["type"])
	assert.Equal(t, "fallback", reports["missing/u1"]["value"])
	assert.NotEmpty(t, reports["missing/u1"]["errorMessage"])

	require.Contains(t, reports, "f1/someone-else")
	assert.Equal(t, "integer", reports["f1/someone-else"]["type"])
	assert.Equal(t, float64(20), reports["f1/someone-else"]["value"])
	assert.NotEmpty(t, reports["f1/someone-else"]["errorMessage"])

	require.Contains(t, reports, "f1/u1")
	assert.Equal(t, float64(84), reports["f1/u1"]["value"])
	assert.Nil(t, reports["f1/u1"]["errorMessage"])
}

// TestTelemetryHookDisabled verifies nothing is sent when usage reporting
// is turned off.
func TestTelemetryHookDisabled(t *testing.T) {
	srv := newToggleServer(t)
	p := newTestProvider(t, srv, WithUsageTelemetry(false))
	initProvider(t, p, "u1")

	hook := newTelemetryHook(p.service, quietLogger())
	hookCtx := of.NewHookContext("f1", of.Int, int64(20),
		of.NewClientMetadata("test"), p.Metadata(), of.NewEvaluationContext("u1", nil))
	hook.Finally(context.Background(), hookCtx, of.InterfaceEvaluationDetails{Value: int64(84)}, of.HookHints{})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, srv.telemetryCount())
}
