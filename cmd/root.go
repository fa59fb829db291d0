package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/bugboard/internal/bugs"
	"github.com/joescharf/bugboard/internal/logger"
	"github.com/joescharf/bugboard/internal/output"
	"github.com/joescharf/bugboard/internal/query"
	"github.com/joescharf/bugboard/internal/store"
)

const appName = "bugboard"

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	log       *logger.Logger
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Bugboard - a small bug tracker with a REST API",
	Long: `bugboard records bug reports and serves them over a JSON REST API.
The same records are reachable from the command line and, for AI agents,
over MCP.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	closeStore()
	if log != nil {
		log.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/bugboard/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BUGBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setDefaults(dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default, rooted at dir.
func setDefaults(dir string) {
	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, appName+".db"))
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("postgres.dsn", "")
	viper.SetDefault("server.port", 5000)
	viper.SetDefault("server.debug", false)
	viper.SetDefault("server.cors_origins", []string{})
	viper.SetDefault("log.mode", "development")
	viper.SetDefault("pagination.default_limit", query.DefaultPaging.Limit)
	viper.SetDefault("pagination.max_limit", query.DefaultPaging.MaxLimit)
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "")
	viper.SetDefault("tracing.sample_ratio", 1.0)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	mode := viper.GetString("log.mode")
	if !verbose && mode == "development" {
		// CLI commands stay quiet unless -v; serve uses the configured mode.
		mode = "off"
	}
	l, err := logger.New(mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logger init failed, logging disabled: %v\n", err)
		l = logger.Nop()
	}
	log = l

	// Store is opened lazily so config/version run without a database.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	var (
		s   store.Store
		err error
	)
	switch driver := strings.ToLower(viper.GetString("store.driver")); driver {
	case "", "sqlite":
		s, err = store.NewSQLiteStore(viper.GetString("db_path"))
	case "postgres", "postgresql":
		dsn := viper.GetString("postgres.dsn")
		if dsn == "" {
			return nil, fmt.Errorf("postgres.dsn is required when store.driver is %q", driver)
		}
		s, err = store.NewPostgresStore(dsn)
	case "memory":
		s = store.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store.driver %q (want sqlite, postgres or memory)", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(cmdContext()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getService wires the bug service onto the shared store.
func getService() (*bugs.Service, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return bugs.NewService(s,
		bugs.WithLogger(log),
		bugs.WithPaging(pagingDefaults()),
	), nil
}

func pagingDefaults() query.Defaults {
	d := query.Defaults{
		Limit:    viper.GetInt("pagination.default_limit"),
		MaxLimit: viper.GetInt("pagination.max_limit"),
	}
	if d.MaxLimit <= 0 {
		d.MaxLimit = query.DefaultPaging.MaxLimit
	}
	if d.Limit <= 0 || d.Limit > d.MaxLimit {
		d.Limit = min(query.DefaultPaging.Limit, d.MaxLimit)
	}
	return d
}

// cmdContext is the root command context, or Background outside Execute.
func cmdContext() context.Context {
	if ctx := rootCmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func closeStore() {
	if dataStore == nil {
		return
	}
	if err := dataStore.Close(); err != nil && log != nil {
		log.Warn("close store", "error", err)
	}
	dataStore = nil
}
