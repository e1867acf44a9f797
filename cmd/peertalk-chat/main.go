package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
)

var (
	flagName          string
	flagConfig        string
	flagPort          uint16
	flagDiscoveryPort uint16
	flagLogLevel      string
	flagNoColor       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "peertalk-chat",
	Short: "LAN peer discovery and chat over peertalk",
	Long: "peertalk-chat discovers other instances of itself on the local\n" +
		"network and exchanges chat messages with them. It is a sample\n" +
		"application for the peertalk library, not a production chat client.",
}

var listenCmd = &cobra.Command{
	Use:     "listen",
	Aliases: []string{"run"},
	Short:   "start discovery, accept inbound peers, and open an interactive chat prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("peertalk-chat %s (%s)\n", version, commit)
		fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagName, "name", "", "local display name (default: $USER or hostname)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().Uint16Var(&flagPort, "port", 0, "TCP port to listen on (0 = library default)")
	rootCmd.PersistentFlags().Uint16Var(&flagDiscoveryPort, "discovery-port", 0, "UDP discovery port (0 = library default)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "debug, info, warn, protocol, or error")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(listenCmd, versionCmd)
	rootCmd.RunE = listenCmd.RunE
}
