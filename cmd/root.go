// Package cmd contains the comictl CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.aimuz.me/comictl/config"
	"go.aimuz.me/comictl/internal/app"
)

var (
	verbose bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "comictl",
	Short: "Comic image translation orchestrator",
	Long: `comictl sends comic and manga pages to an image-translation backend,
caches the results and hands them to the page for rendering.

Example usage:
  comictl serve                          # Serve the message endpoint
  comictl translate https://x/page1.png  # Translate one page
  comictl batch page1.png page2.png      # Translate pages in chunks
  comictl cache stats                    # Show cached result count
  comictl settings show                  # Print current settings`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initLogger()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string reported by the CLI.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	viper.SetEnvPrefix("COMICTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.String("settings", "", "settings file (default is <user config dir>/comictl/settings.json)")
	flags.String("cache-dir", "", "badger cache directory (default is <user config dir>/comictl/cache)")
	flags.Bool("memory-cache", false, "keep the result cache in memory only")
	flags.String("redis-url", "", "use a Redis result cache instead of badger")
	flags.Int("cache-capacity", 0, "maximum cached results (default 100)")
	flags.Duration("backend-timeout", 0, "per-request backend timeout (0 = none)")
	flags.Duration("timeout", app.DefaultTimeout, "soft per-image timeout")

	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("settings", flags.Lookup("settings"))
	_ = viper.BindPFlag("cache_dir", flags.Lookup("cache-dir"))
	_ = viper.BindPFlag("memory_cache", flags.Lookup("memory-cache"))
	_ = viper.BindPFlag("redis_url", flags.Lookup("redis-url"))
	_ = viper.BindPFlag("cache_capacity", flags.Lookup("cache-capacity"))
	_ = viper.BindPFlag("backend_timeout", flags.Lookup("backend-timeout"))
	_ = viper.BindPFlag("timeout", flags.Lookup("timeout"))
}

func initLogger() {
	level := slog.LevelInfo
	if verbose || viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// serviceOptions builds app.Options from flags and COMICTL_* variables.
func serviceOptions(sender app.Sender) (app.Options, error) {
	opts := app.Options{
		SettingsPath:   viper.GetString("settings"),
		RedisURL:       viper.GetString("redis_url"),
		CacheCapacity:  viper.GetInt("cache_capacity"),
		BackendTimeout: viper.GetDuration("backend_timeout"),
		Timeout:        viper.GetDuration("timeout"),
		Sender:         sender,
	}

	if opts.RedisURL == "" && !viper.GetBool("memory_cache") {
		dir := viper.GetString("cache_dir")
		if dir == "" {
			d, err := config.DefaultCacheDir()
			if err != nil {
				return app.Options{}, err
			}
			dir = d
		}
		opts.CachePath = dir
	}
	return opts, nil
}

func newService(ctx context.Context, sender app.Sender) (*app.Service, error) {
	opts, err := serviceOptions(sender)
	if err != nil {
		return nil, err
	}
	svc, err := app.New(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("start service: %w", err)
	}
	return svc, nil
}

func settingsStore() (*config.Store, error) {
	path := viper.GetString("settings")
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return config.NewStore(path), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// durationMillis formats d for human readers.
func durationMillis(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}
