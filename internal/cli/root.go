package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "splitlab",
	Short: "A/B experimentation service",
	Long: `splitlab assigns users of an online experiment to one variant exactly
once, serves that assignment consistently under concurrent requests, and
computes post-hoc conversion statistics.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
