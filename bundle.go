package toggle

import "github.com/hyphen/toggle-openfeature-go/internal/value"

// EvaluationBundle is the evaluate response: every toggle computed for one
// targeting key. It is never mutated after decoding.
type EvaluationBundle struct {
	ID           string                `json:"id"`
	TargetingKey string                `json:"targetingKey"`
	Toggles      map[string]Evaluation `json:"toggles"`
}

// Evaluation is a single toggle result. Type is the declared kind; Value
// may disagree with it, in which case typed lookups report a parse error.
type Evaluation struct {
	Key          string      `json:"key"`
	Value        value.Value `json:"value"`
	Type         string      `json:"type"`
	Reason       string      `json:"reason,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
}

// TelemetryPayload is the body sent to the telemetry endpoint.
type TelemetryPayload struct {
	Context *EvaluationContext `json:"context"`
	Data    TelemetryData      `json:"data"`
}

// TelemetryData wraps the reported toggle.
type TelemetryData struct {
	Toggle Evaluation `json:"toggle"`
}
