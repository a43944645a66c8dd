package cmd

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clipstitch/clipstitch/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for inspecting clipstitch configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration in YAML format.

Redirect the output to a file to create a configuration template:

  clipstitch config dump > config.yaml

Configuration can be set via:
  - Config file (.clipstitch.yaml in $HOME or the working directory, /etc/clipstitch)
  - Environment variables (CLIPSTITCH_SERVER_PORT, CLIPSTITCH_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the CLIPSTITCH_ prefix and underscores for nesting.
Example: server.port -> CLIPSTITCH_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags,
// rendering durations and sizes in their human-readable forms.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		key := typ.Field(i).Tag.Get("mapstructure")
		if key == "" {
			key = strings.ToLower(typ.Field(i).Name)
		}

		switch v := field.Interface().(type) {
		case fmt.Stringer:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The token never leaves the process.
	if cfg.Enhance.APIToken != "" {
		cfg.Enhance.APIToken = "[REDACTED]"
	}

	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# clipstitch configuration")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out, "# Duration format: 30s, 5m, 1h, 30d")
	fmt.Fprintln(out, "# Size format: 5MB, 1GB")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out, "# Environment variable overrides:")
	fmt.Fprintln(out, "#   CLIPSTITCH_SERVER_HOST, CLIPSTITCH_SERVER_PORT")
	fmt.Fprintln(out, "#   CLIPSTITCH_DATABASE_DSN, CLIPSTITCH_STORAGE_OUTPUT_DIR")
	fmt.Fprintln(out, "#   CLIPSTITCH_LOGGING_LEVEL, CLIPSTITCH_LOGGING_FORMAT")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out, "")
	fmt.Fprint(out, string(yamlData))

	return nil
}
