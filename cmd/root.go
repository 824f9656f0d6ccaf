package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/velto/internal/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "velto",
	Short: "An embeddable HTTP runtime with live reload",
	Long: `velto serves routes and static files from a single process and, in
development mode, reloads connected browsers whenever a watched file changes.

Quick Start:
  velto serve --static public --dev   Serve ./public with live reload
  velto config show                   Print the effective configuration
  velto version                       Print build information`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .velto.yml, can also use VELTO_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log-level": "logging.level",
	})
}

// initConfig points viper at the config file and the VELTO_ environment.
// A missing file is not an error; defaults apply.
func initConfig() {
	path := cfgFile
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "_CONFIG_FILE")
	}
	config.Bind(viper.GetViper(), path)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
