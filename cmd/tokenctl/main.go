package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const programName = "tokenctl"

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           programName,
		Short:         "Operator tooling for the token ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(merkleCommand(), callerTokenCommand())
	return cmd
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
