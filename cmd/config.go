package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage bugboard configuration.

Running bare 'bugboard config' is the same as 'bugboard config show'.
Every key can also be set with a BUGBOARD_ environment variable, e.g.
BUGBOARD_SERVER_PORT=8080.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# bugboard configuration
# See: bugboard config show (for effective values and sources)

# State/data directory (default: ~/.config/bugboard)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/bugboard/bugboard.db)
# db_path: {{ .DBPath }}

store:
  # Storage backend: sqlite, postgres or memory (default: sqlite)
  driver: "{{ .StoreDriver }}"

postgres:
  # Connection string, used when store.driver is postgres
  dsn: "{{ .PostgresDSN }}"

server:
  # HTTP port for 'bugboard serve' (default: 5000)
  port: {{ .ServerPort }}

  # Include error detail in API responses (default: false)
  debug: {{ .ServerDebug }}

  # Allowed CORS origins; empty allows any origin
  cors_origins: []

log:
  # development (console) or production (JSON)
  mode: "{{ .LogMode }}"

pagination:
  default_limit: {{ .DefaultLimit }}
  max_limit: {{ .MaxLimit }}

tracing:
  # Export OpenTelemetry spans (stdout unless an OTLP endpoint is set)
  enabled: {{ .TracingEnabled }}
  # endpoint: localhost:4318

anthropic:
  # Model used by 'bugboard bug import' (API key via ANTHROPIC_API_KEY)
  model: "{{ .AnthropicModel }}"
`

type configTemplateData struct {
	StateDir       string
	DBPath         string
	StoreDriver    string
	PostgresDSN    string
	ServerPort     int
	ServerDebug    bool
	LogMode        string
	DefaultLimit   int
	MaxLimit       int
	TracingEnabled bool
	AnthropicModel string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:       viper.GetString("state_dir"),
		DBPath:         viper.GetString("db_path"),
		StoreDriver:    viper.GetString("store.driver"),
		PostgresDSN:    viper.GetString("postgres.dsn"),
		ServerPort:     viper.GetInt("server.port"),
		ServerDebug:    viper.GetBool("server.debug"),
		LogMode:        viper.GetString("log.mode"),
		DefaultLimit:   viper.GetInt("pagination.default_limit"),
		MaxLimit:       viper.GetInt("pagination.max_limit"),
		TracingEnabled: viper.GetBool("tracing.enabled"),
		AnthropicModel: viper.GetString("anthropic.model"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeys lists the keys shown by 'config show', in display order.
var configKeys = []string{
	"state_dir",
	"db_path",
	"store.driver",
	"postgres.dsn",
	"server.port",
	"server.debug",
	"server.cors_origins",
	"log.mode",
	"pagination.default_limit",
	"pagination.max_limit",
	"tracing.enabled",
	"tracing.endpoint",
	"tracing.sample_ratio",
	"anthropic.api_key",
	"anthropic.model",
}

// secretKeys are masked in 'config show'.
var secretKeys = map[string]bool{
	"anthropic.api_key": true,
	"postgres.dsn":      true,
}

// envVarFor returns the environment variable viper consults for key.
func envVarFor(key string) string {
	return "BUGBOARD_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	fileValues := readConfigFileValues(cfgPath)

	table := ui.Table([]string{"Key", "Value", "Source"})
	for _, key := range configKeys {
		val := fmt.Sprint(displayValue(key, viper.Get(key)))
		if err := table.Append([]string{key, val, detectSource(key, envVarFor(key), fileValues)}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	for _, w := range configWarnings() {
		ui.Warning("%s", w)
	}
	return nil
}

// configWarnings reports settings that will fail once a store is opened.
func configWarnings() []string {
	var out []string
	switch driver := strings.ToLower(viper.GetString("store.driver")); driver {
	case "", "sqlite", "memory":
	case "postgres", "postgresql":
		if viper.GetString("postgres.dsn") == "" {
			out = append(out, "store.driver is postgres but postgres.dsn is empty")
		}
	default:
		out = append(out, fmt.Sprintf("unknown store.driver %q", driver))
	}
	if viper.GetInt("pagination.max_limit") > 0 && viper.GetInt("pagination.default_limit") > viper.GetInt("pagination.max_limit") {
		out = append(out, "pagination.default_limit exceeds pagination.max_limit; the default limit will be used")
	}
	return out
}

// displayValue masks secret values.
func displayValue(key string, val any) any {
	if !secretKeys[key] {
		return val
	}
	if s := fmt.Sprint(val); s != "" && s != "<nil>" {
		return "********"
	}
	return val
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'bugboard config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
