package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mdorier/mochi-rkv/cmd/kv"
	"github.com/mdorier/mochi-rkv/cmd/util"
	"github.com/mdorier/mochi-rkv/lib/logging"
)

const (
	Version = "0.5.0"
)

var (
	logLevel  string
	logFormat string

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "rkv",
		Short: "embedded key-value storage toolkit",
		Long: fmt.Sprintf(`rkv (v%s)

A batched, buffer-oriented key-value storage abstraction over pluggable
embedded engines (in-memory hash map, ordered map, leveldb, bolt, pebble).
This tool opens a backend locally and runs operations against it.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of rkv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rkv v%s\n", Version)
		},
	}
)

// initLogging configures the loggers once flags are parsed. Registered
// with cobra.OnInitialize so it runs for every subcommand.
func initLogging() {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q, falling back to warn\n", logLevel)
		level = zerolog.WarnLevel
	}
	format := logging.ConsoleLogger
	if logFormat == "json" {
		format = logging.JSONLogger
	}
	logging.Init(logging.Options{Level: level, Type: format})
}

func init() {
	cobra.OnInitialize(initLogging)

	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn",
		util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
	RootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console",
		util.WrapString("Log output format (console, json)"))

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(kv.KvCmd)
	RootCmd.AddCommand(kv.BenchCmd)
	RootCmd.AddCommand(kv.MigrateCmd)
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
