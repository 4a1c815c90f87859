package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/vimsaver/internal/config"
)

// configErr holds the failure to read an explicitly requested config file.
var configErr error

var rootCmd = &cobra.Command{
	Use:   "vimsaver",
	Short: "Save and restore the applications running in a terminal multiplexer",
	Long: `vimsaver snapshots the applications running in the windows of a screen or
tmux session, together with the files each one has open, and replays that
state later into the same session.

Suspended applications are brought to the foreground before they are
queried. Windows that are missing on restore are created.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteContext runs the root command with ctx, which is cancelled on interrupt by main.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/vimsaver/config.yaml)")
	flags.StringP("session", "s", "", "multiplexer session name (default \"vimsaver\")")
	flags.StringP("multiplexer", "m", "", "multiplexer backend: screen or tmux (default \"screen\")")
	flags.StringSliceP("app", "a", nil, "application recognizers to use (default [vim])")
	flags.StringP("bufferlist", "b", "", "vim function returning the buffer list (default \"BufferList\")")
	flags.BoolP("verbose", "v", false, "log debug output")
	flags.String("metrics-file", "", "write Prometheus text metrics to this file")

	bindFlags(flags, map[string]string{
		"config":                    "config",
		"session.name":              "session",
		"multiplexer.backend":       "multiplexer",
		"apps.enabled":              "app",
		"apps.vim.buffer_list_func": "bufferlist",
		"verbose":                   "verbose",
		"metrics.textfile":          "metrics-file",
	})
}

// bindFlags binds each viper key to the named flag. A flag only overrides
// config files and env vars when it is set on the command line.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("VIMSAVER")
	// Replace dots with underscores for nested keys in env vars
	// e.g., VIMSAVER_RECONCILE_MAX_PASSES for reconcile.max_passes
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing default config file is fine; an explicit one must load.
	configErr = nil
	if err := viper.ReadInConfig(); err != nil && viper.GetString("config") != "" {
		configErr = err
	}
}
