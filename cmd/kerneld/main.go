package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile   string
	controlAddr  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kerneld",
		Short: "domaincore - RISC-V domain isolation and fault-recovery core",
		Long:  "Boots the domain core (proxy layer, resource ledger, capability surface) and exposes an operator control plane over it.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to boot config file (optional, env/defaults apply otherwise)")
	rootCmd.PersistentFlags().StringVar(&controlAddr, "control-addr", "http://localhost:7070", "Address of a running kernel core's control-plane HTTP API")

	rootCmd.AddCommand(
		bootCmd(),
		domainsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("kerneld (domaincore) dev")
			return nil
		},
	}
}
