package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string

	// Version, Commit and Date are set by the release build via ldflags.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "agentmaild",
	Short: "Multi-agent coordination mail server",
	Long: `agentmaild runs the agent mail server that lets concurrent coding
agents working in the same project register, send mail, reserve files, and
coordinate handoffs through a shared SQLite + Git archive store.

Quick Start:
  agentmaild migrate                 # apply pending schema migrations
  agentmaild serve                   # start the JSON-RPC and REST listeners`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config.toml (default ~/.config/agentmaild/config.toml)")
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute runs the root command, the cobra entrypoint main calls.
func Execute() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
	return rootCmd.Execute()
}
