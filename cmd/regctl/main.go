// Command regctl is the operator tool of the registration service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "regctl",
		Short:         "Operator tool for the registration service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(publicIDCmd())
	root.AddCommand(webhookCmd())
	return root
}
