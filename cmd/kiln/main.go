package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "kiln",
		Short: "Kiln - Autonomous issue worker orchestrator",
		Long: `Kiln watches GitHub repositories for labelled candidate issues and
dispatches each one to a containerized coding agent. It polls container
liveness, finalizes results from pull request state, and records every
decision in an append-only event log.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
