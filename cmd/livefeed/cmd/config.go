package cmd

import (
	"fmt"
	"io"
	"reflect"

	"github.com/jmylchreest/livefeed/internal/config"
	"github.com/jmylchreest/livefeed/internal/urlutil"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the configuration livefeed would run with, in YAML.

Values come from defaults, the config file and LIVEFEED_* environment
variables, in increasing priority. Redirect the output to create a template:

  livefeed config dump > config.yaml

Environment variables use underscores for nesting.
Example: engine.queue_max_bytes -> LIVEFEED_ENGINE_QUEUE_MAX_BYTES`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return dumpConfig(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

func dumpConfig(w io.Writer, c *config.Config) error {
	redacted := *c
	redacted.Transport.URL = urlutil.Redact(c.Transport.URL)
	if len(c.Transport.Headers) > 0 {
		redacted.Transport.Headers = make(map[string]string, len(c.Transport.Headers))
		for k := range c.Transport.Headers {
			redacted.Transport.Headers[k] = urlutil.Redacted
		}
	}

	data, err := yaml.Marshal(toMap(&redacted))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Fprintln(w, "# livefeed configuration")
	fmt.Fprintln(w, "#")
	fmt.Fprintln(w, "# Duration format: 500ms, 30s, 5m, 720h")
	fmt.Fprintln(w, "# Size format: 512KiB, 10MiB, 1GiB")
	fmt.Fprintln(w)
	_, err = w.Write(data)
	return err
}

// toMap converts a config struct to a map keyed by mapstructure tags, with
// durations and sizes in their human-readable form.
func toMap(v any) map[string]any {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	result := make(map[string]any, val.NumField())
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		key := typ.Field(i).Tag.Get("mapstructure")
		if key == "" {
			key = typ.Field(i).Name
		}

		switch fv := field.Interface().(type) {
		case fmt.Stringer:
			result[key] = fv.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(fv)
			} else {
				result[key] = fv
			}
		}
	}
	return result
}
