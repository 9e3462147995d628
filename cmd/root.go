package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	jsonOut  bool
	noDaemon bool
)

var rootCmd = &cobra.Command{
	Use:   "navi",
	Short: "Semantic code navigation via a warm LSP-backed daemon",
	Long: `navi proxies symbol search, references, file overviews, and pattern
search to a Serena-compatible MCP backend, and layers a hierarchical
memory store over the backend's flat memory namespace.

A per-project daemon keeps the backend connection warm: the first command
starts it transparently, and it shuts itself down after an idle period.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/navi/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output JSON")
	rootCmd.PersistentFlags().BoolVar(&noDaemon, "no-daemon", false, "dispatch in-process instead of through the daemon")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "navi")
		viper.AddConfigPath(configDir)
		viper.SetConfigType("toml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("navi")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("backend.url", "http://localhost:9121/mcp")
	viper.SetDefault("backend.call_timeout", "30s")
	viper.SetDefault("backend.activate_timeout", "120s")
	viper.SetDefault("daemon.host", "127.0.0.1")
	viper.SetDefault("daemon.port", 9232)
	viper.SetDefault("daemon.idle_timeout", "30m")
	viper.SetDefault("daemon.startup_timeout", "10s")
	viper.SetDefault("daemon.probe_timeout", "750ms")
	viper.SetDefault("memory.timestamp", true)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
