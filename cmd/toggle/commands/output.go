package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatYAML OutputFormat = "yaml"
)

// result is what eval prints.
type result struct {
	Flag         string         `json:"flag" yaml:"flag"`
	Type         string         `json:"type" yaml:"type"`
	Value        any            `json:"value" yaml:"value"`
	Variant      string         `json:"variant,omitempty" yaml:"variant,omitempty"`
	Reason       string         `json:"reason" yaml:"reason"`
	ErrorCode    string         `json:"errorCode,omitempty" yaml:"errorCode,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func printResult(r result, f OutputFormat) error {
	return printTo(os.Stdout, r, f, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s = %v (reason=%s", r.Flag, r.Value, r.Reason)
		if err == nil && r.ErrorCode != "" {
			_, err = fmt.Fprintf(w, ", error=%s: %s", r.ErrorCode, r.ErrorMessage)
		}
		if err == nil {
			_, err = fmt.Fprintln(w, ")")
		}
		return err
	})
}

func printTo(w io.Writer, data any, f OutputFormat, text func(io.Writer) error) error {
	switch f {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		encoder.SetIndent(2)
		return encoder.Encode(data)
	case FormatText:
		return text(w)
	default:
		return fmt.Errorf("unsupported format: %s", f)
	}
}
