package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	of "github.com/open-feature/go-sdk/openfeature"
	"github.com/open-feature/go-sdk/openfeature/hooks"
	"github.com/spf13/cobra"

	toggle "github.com/hyphen/toggle-openfeature-go"
)

const evalDomain = "toggle-cli"

var (
	flagType     string
	targetingKey string
	defaultValue string
	attributes   map[string]string
	initTimeout  time.Duration
)

var evalCmd = &cobra.Command{
	Use:   "eval <flag>",
	Short: "Evaluate a feature flag",
	Long: `Fetch the evaluation bundle for one targeting key and read a flag from it.

The default is parsed according to --type; object defaults are JSON.

Examples:
  toggle eval new-checkout --type bool --targeting-key user-123
  toggle eval max-items --type int --default 10 --targeting-key user-123
  toggle eval layout --type object --default '{}' --targeting-key user-123 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flag := args[0]
		logger := newLogger()

		cfg, err := providerConfig()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		provider, err := toggle.New(cfg, toggle.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create provider: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := of.ShutdownWithContext(shutdownCtx); err != nil {
				logger.Error("shutdown error", "error", err)
			}
		}()

		of.SetEvaluationContext(of.NewEvaluationContext(targetingKey, contextAttributes(attributes)))
		of.AddHooks(hooks.NewLoggingHook(false, logger.With("source", "openfeature-sdk")))

		initCtx, cancel := context.WithTimeout(cmd.Context(), initTimeout)
		defer cancel()
		if err := of.SetNamedProviderWithContextAndWait(initCtx, evalDomain, provider); err != nil {
			return fmt.Errorf("failed to initialize provider: %w", err)
		}

		client := of.NewClient(evalDomain)
		r, err := evaluate(cmd.Context(), client, flag, flagType, defaultValue)
		if err != nil {
			return err
		}
		return printResult(r, OutputFormat(format))
	},
}

func init() {
	evalCmd.Flags().StringVarP(&flagType, "type", "t", "bool", "Flag type (bool, string, int, float, object)")
	evalCmd.Flags().StringVarP(&targetingKey, "targeting-key", "k", "", "Targeting key of the subject")
	evalCmd.Flags().StringVarP(&defaultValue, "default", "d", "", "Default value returned on errors")
	evalCmd.Flags().StringToStringVarP(&attributes, "attr", "a", nil, "Custom attribute as key=value (repeatable)")
	evalCmd.Flags().DurationVar(&initTimeout, "init-timeout", 15*time.Second, "How long to wait for the first fetch")
	_ = evalCmd.MarkFlagRequired("targeting-key")

	rootCmd.AddCommand(evalCmd)
}

// evaluate runs the typed evaluation matching typ. Evaluation errors are
// part of the result, not returned.
func evaluate(ctx context.Context, client *of.Client, flag, typ, def string) (result, error) {
	var (
		details of.InterfaceEvaluationDetails
		err     error
	)
	switch typ {
	case "bool", "boolean":
		d := false
		if def != "" {
			if d, err = strconv.ParseBool(def); err != nil {
				return result{}, fmt.Errorf("invalid bool default %q: %w", def, err)
			}
		}
		var bd of.BooleanEvaluationDetails
		bd, _ = client.BooleanValueDetails(ctx, flag, d, of.EvaluationContext{})
		details = of.InterfaceEvaluationDetails{Value: bd.Value, EvaluationDetails: bd.EvaluationDetails}
	case "string":
		sd, _ := client.StringValueDetails(ctx, flag, def, of.EvaluationContext{})
		details = of.InterfaceEvaluationDetails{Value: sd.Value, EvaluationDetails: sd.EvaluationDetails}
	case "int", "integer":
		var d int64
		if def != "" {
			if d, err = strconv.ParseInt(def, 10, 64); err != nil {
				return result{}, fmt.Errorf("invalid int default %q: %w", def, err)
			}
		}
		id, _ := client.IntValueDetails(ctx, flag, d, of.EvaluationContext{})
		details = of.InterfaceEvaluationDetails{Value: id.Value, EvaluationDetails: id.EvaluationDetails}
	case "float", "double":
		var d float64
		if def != "" {
			if d, err = strconv.ParseFloat(def, 64); err != nil {
				return result{}, fmt.Errorf("invalid float default %q: %w", def, err)
			}
		}
		fd, _ := client.FloatValueDetails(ctx, flag, d, of.EvaluationContext{})
		details = of.InterfaceEvaluationDetails{Value: fd.Value, EvaluationDetails: fd.EvaluationDetails}
	case "object":
		var d any
		if def != "" {
			if err = json.Unmarshal([]byte(def), &d); err != nil {
				return result{}, fmt.Errorf("invalid object default: %w", err)
			}
		}
		details, _ = client.ObjectValueDetails(ctx, flag, d, of.EvaluationContext{})
	default:
		return result{}, fmt.Errorf("unknown flag type %q, valid types: bool, string, int, float, object", typ)
	}

	return result{
		Flag:         flag,
		Type:         typ,
		Value:        details.Value,
		Variant:      details.Variant,
		Reason:       string(details.Reason),
		ErrorCode:    string(details.ErrorCode),
		ErrorMessage: details.ErrorMessage,
		Metadata:     details.FlagMetadata,
	}, nil
}

// contextAttributes turns --attr pairs into evaluation context attributes.
// Values that parse as JSON keep their type; anything else is a string.
func contextAttributes(attrs map[string]string) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, raw := range attrs {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			out[k] = v
			continue
		}
		out[k] = raw
	}
	return out
}
