package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	verbose  bool
	basePort int
)

var rootCmd = &cobra.Command{
	Use:   "polyserve",
	Short: "polyserve - multi-protocol server harness",
	Long: `polyserve is a demonstration wrapper around the multi-protocol server
harness. Its run command starts one HTTP/1.1 server with a connection pool,
the unified monitoring scheduler and the supervisor health surface.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().IntVarP(&basePort, "port", "p", 3000, "base port; protocols bind to port, port+1, ...")
}
