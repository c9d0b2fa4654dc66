// Package cli wires cobra/viper commands onto the run controller. It carries
// forward the teacher's own root-command shape from cmd/root.go (godotenv
// then viper env/config-file layering, the same persistent logging flags)
// generalized from that command tree's MCP-agent subcommands to this
// orchestrator's single `run` subcommand.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "loopctl",
	Short: "Iterative code-generation orchestrator",
	Long: `loopctl drives one run of the plan -> generate -> preview -> evaluate ->
patch loop: a planner model turns a task into a todo list, a code-generation
agent fills in the project, a headless browser previews the result, and an
evaluator model scores it against a rubric until it passes or the iteration
budget runs out.`,
}

// Execute adds all child commands to the root command and is called by
// cmd/loopctl's main.main(). It only needs to run once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.loopctl.yaml)")
	rootCmd.PersistentFlags().String("log-file", "", "log file path (optional; when empty, logs go to stdout and logs/mcp-agent-<date>.log)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(runCmd)
}

// initConfig loads .env, then an optional config file, then environment
// variables, matching the teacher's own layering order in cmd/root.go's
// initConfig (godotenv first so ENV vars it sets are visible to
// viper.AutomaticEnv immediately after).
func initConfig() {
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			fmt.Fprintln(os.Stderr, "no .env file found, using system environment variables")
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".loopctl")
	}

	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}
