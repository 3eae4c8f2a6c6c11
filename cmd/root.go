// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "strix",
	Short: "strix - streaming network packet dissection engine",
	Long: `strix captures link-layer frames from a live interface or a pcap
file, decodes them through a chain of protocol modules (Ethernet, ARP,
IPv4, ICMP, UDP, TCP), tracks TCP sessions with reassembly, and fires
named events (new_session, established, closed) to registered handlers.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml",
		"config file path")
}
