package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fivetwenty-io/optly/cmd/optly/commands"
	"github.com/fivetwenty-io/optly/internal/constants"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "optly",
	Short: "Optimizely REST and Event API CLI",
	Long: `A command-line interface for the Optimizely REST API and Event API.

List and filter project assets through the search endpoint, and turn CSV
exports of conversion events into Event API payloads.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.optly/config.yml)")
	rootCmd.PersistentFlags().StringP("api", "a", "", "REST API endpoint URL")
	rootCmd.PersistentFlags().String("events-endpoint", "", "Event API URL")
	rootCmd.PersistentFlags().StringP("token", "t", "", "personal access token")
	rootCmd.PersistentFlags().Int64P("project-id", "p", 0, "Optimizely project ID")
	rootCmd.PersistentFlags().Int64("account-id", 0, "Optimizely account ID")
	rootCmd.PersistentFlags().StringP("output", "o", constants.FormatTable, "output format (table, json, yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log HTTP requests and responses")
	rootCmd.PersistentFlags().String("cache", "", "detail cache backend (memory, nats, layered, none)")
	rootCmd.PersistentFlags().String("nats-url", "", "NATS server URL for the nats cache")

	// Bind flags to viper
	for key, flag := range map[string]string{
		"config":          "config",
		"api":             "api",
		"events_endpoint": "events-endpoint",
		"token":           "token",
		"project_id":      "project-id",
		"account_id":      "account-id",
		"output":          "output",
		"log_level":       "log-level",
		"verbose":         "verbose",
		"cache":           "cache",
		"nats_url":        "nats-url",
	} {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}

	// Add commands
	rootCmd.AddCommand(commands.NewVersionCommand(version, commit, date))
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(commands.NewAssetsCommand())
	rootCmd.AddCommand(commands.NewEventsCommand())
}

func initConfig() {
	// A missing .env is fine
	_ = godotenv.Load()

	cfgFile := viper.GetString("config")

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in ~/.optly/config.yml
		viper.AddConfigPath(filepath.Join(home, ".optly"))
		viper.SetConfigType("yml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match, e.g. OPTLY_TOKEN, OPTLY_PROJECT_ID
	viper.SetEnvPrefix("OPTLY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
