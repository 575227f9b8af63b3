package cmd

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/slush-dev/push-bridge/apps/go-cli/internal/app"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	sessionDir string
	verbose    bool
	useYAML    bool
)

func defaultSessionDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".push-bridge")
}

var rootCmd = &cobra.Command{
	Use:   "push-bridge",
	Short: "Device-side push notification client and lifecycle bridge",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionDir, "session-dir", defaultSessionDir(), "Directory holding config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&useYAML, "yaml", false, "Print output in YAML format instead of text")

	// Allow env override
	if envDir := os.Getenv("PUSH_BRIDGE_SESSION_DIR"); envDir != "" {
		sessionDir = envDir
	}
}

// SetVersion sets the version string shown by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger logs to stderr at info, or debug with --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// addConfigFlags registers flags that override config.yaml.
func addConfigFlags(fs *pflag.FlagSet) {
	fs.String("sender-id", "", "Provider sender ID (project number)")
	fs.String("app-id", "", "Application ID reported at registration")
	fs.String("hub", "", "SignalR hub URL for a second push transport")
	fs.String("hub-token", "", "Bearer token for the hub")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	fs.String("authorize", "", "Answer the permission request: grant, deny or prompt")
	fs.Bool("require-authorization", false, "Skip device registration unless notifications are authorized")
	fs.String("presentation", "", "Foreground presentation, e.g. banner|list|sound")
	fs.Bool("background", false, "Treat received notifications as background deliveries")
}

// loadConfig reads config.yaml from the session dir and applies any flags
// the user set explicitly.
func loadConfig(fs *pflag.FlagSet) (app.Config, error) {
	cfg, err := app.LoadConfig(sessionDir)
	if err != nil {
		return cfg, err
	}
	strFlags := map[string]*string{
		"sender-id":    &cfg.SenderID,
		"app-id":       &cfg.AppID,
		"hub":          &cfg.HubURL,
		"hub-token":    &cfg.HubToken,
		"metrics-addr": &cfg.MetricsAddr,
		"authorize":    &cfg.Authorization,
		"presentation": &cfg.Presentation,
	}
	for name, dst := range strFlags {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	boolFlags := map[string]*bool{
		"require-authorization": &cfg.RequireAuthorization,
		"background":            &cfg.Background,
	}
	for name, dst := range boolFlags {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			*dst, _ = fs.GetBool(name)
		}
	}
	return cfg, cfg.Validate()
}
