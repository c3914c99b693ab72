package commands

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintToFormats(t *testing.T) {
	r := result{Flag: "theme", Type: "string", Value: "dark", Reason: "TARGETING_MATCH"}
	text := func(w io.Writer) error {
		_, err := io.WriteString(w, "text\n")
		return err
	}

	var buf bytes.Buffer
	require.NoError(t, printTo(&buf, r, FormatJSON, text))
	assert.JSONEq(t, `{"flag":"theme","type":"string","value":"dark","reason":"TARGETING_MATCH"}`, buf.String())

	buf.Reset()
	require.NoError(t, printTo(&buf, r, FormatYAML, text))
	assert.Contains(t, buf.String(), "flag: theme\n")
	assert.NotContains(t, buf.String(), "errorCode")

	buf.Reset()
	require.NoError(t, printTo(&buf, r, FormatText, text))
	assert.Equal(t, "text\n", buf.String())

	assert.ErrorContains(t, printTo(&buf, r, "table", text), "unsupported format")
}

func TestContextAttributes(t *testing.T) {
	attrs := contextAttributes(map[string]string{
		"plan":  "pro",
		"seats": "5",
		"beta":  "true",
		"tags":  `["a","b"]`,
	})

	assert.Equal(t, "pro", attrs["plan"])
	assert.Equal(t, float64(5), attrs["seats"])
	assert.Equal(t, true, attrs["beta"])
	assert.Equal(t, []any{"a", "b"}, attrs["tags"])
}

func TestEvaluateRejectsBadInput(t *testing.T) {
	_, err := evaluate(t.Context(), nil, "f", "uuid", "")
	assert.ErrorContains(t, err, "unknown flag type")

	_, err = evaluate(t.Context(), nil, "f", "int", "ten")
	assert.ErrorContains(t, err, "invalid int default")

	_, err = evaluate(t.Context(), nil, "f", "bool", "maybe")
	assert.ErrorContains(t, err, "invalid bool default")

	_, err = evaluate(t.Context(), nil, "f", "object", "{")
	assert.ErrorContains(t, err, "invalid object default")
}
