// Package commands contains the operator commands for the ledger node.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var url string

func init() {
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:9080", "Url of the node's private API.")
}

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operator tooling for the audit ledger node",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
